package main

import (
	"strings"
	"testing"
)

func TestRegisterUsernameValidation(t *testing.T) {
	users := newDirectory()

	if _, err := users.Register("a"); err != errUsernameLength {
		t.Fatalf("expected errUsernameLength for short name, got %v", err)
	}
	if _, err := users.Register(strings.Repeat("z", 21)); err != errUsernameLength {
		t.Fatalf("expected errUsernameLength for long name, got %v", err)
	}

	rec, err := users.Register("  alice  ")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if rec.Username != "alice" {
		t.Fatalf("expected trimmed username, got %q", rec.Username)
	}

	if _, err := users.Register("alice"); err != errUsernameTaken {
		t.Fatalf("expected errUsernameTaken, got %v", err)
	}

	username, err := users.ResolveUsername(rec.ID)
	if err != nil || username != "alice" {
		t.Fatalf("ResolveUsername = %q, %v", username, err)
	}
	if _, err := users.ResolveUsername("missing"); err != errUserNotFound {
		t.Fatalf("expected errUserNotFound, got %v", err)
	}
}

func TestLobbyCreateClampsCapacities(t *testing.T) {
	lobbies := newLobbyStore()

	lobby := lobbies.Create("Clamped", 100, 100, false)
	if lobby.MaxHumans != 20 || lobby.MaxBots != 5 {
		t.Fatalf("expected capacities clamped to 20/5, got %d/%d", lobby.MaxHumans, lobby.MaxBots)
	}

	lobby = lobbies.Create("Clamped Low", 0, -1, false)
	if lobby.MaxHumans != 1 || lobby.MaxBots != 0 {
		t.Fatalf("expected capacities clamped to 1/0, got %d/%d", lobby.MaxHumans, lobby.MaxBots)
	}

	if len(lobby.InviteCode) != 8 || lobby.InviteCode != strings.ToUpper(lobby.InviteCode) {
		t.Fatalf("expected 8-char uppercase invite code, got %q", lobby.InviteCode)
	}
}

func TestFindByInviteIsCaseInsensitive(t *testing.T) {
	lobbies := newLobbyStore()
	lobby := lobbies.Create("Invited", 5, 0, true)

	id, err := lobbies.FindByInvite(strings.ToLower(lobby.InviteCode))
	if err != nil || id != lobby.ID {
		t.Fatalf("FindByInvite = %q, %v", id, err)
	}

	if _, err := lobbies.FindByInvite("XXXXXXXX"); err != errLobbyNotFound {
		t.Fatalf("expected errLobbyNotFound, got %v", err)
	}
}

func TestJoinAndLeave(t *testing.T) {
	lobbies := newLobbyStore()
	lobby := lobbies.Create("Joinable", 2, 0, false)

	rejoined, err := lobbies.Join(lobby.ID, "alice")
	if err != nil || rejoined {
		t.Fatalf("Join = %v, %v", rejoined, err)
	}

	got, _ := lobbies.Get(lobby.ID)
	if got.Creator != "alice" {
		t.Fatalf("expected first member to become creator, got %q", got.Creator)
	}

	rejoined, err = lobbies.Join(lobby.ID, "alice")
	if err != nil || !rejoined {
		t.Fatalf("expected rejoin to be reported, got %v, %v", rejoined, err)
	}

	if _, err := lobbies.Join(lobby.ID, "bob"); err != nil {
		t.Fatalf("Join returned error: %v", err)
	}
	if _, err := lobbies.Join(lobby.ID, "carol"); err != errLobbyFull {
		t.Fatalf("expected errLobbyFull, got %v", err)
	}

	if err := lobbies.Leave(lobby.ID, "carol"); err != errNotMember {
		t.Fatalf("expected errNotMember, got %v", err)
	}
	if err := lobbies.Leave(lobby.ID, "bob"); err != nil {
		t.Fatalf("Leave returned error: %v", err)
	}

	if _, err := lobbies.Join("missing", "alice"); err != errLobbyNotFound {
		t.Fatalf("expected errLobbyNotFound, got %v", err)
	}
}

func TestRemoveClearsInviteCode(t *testing.T) {
	lobbies := newLobbyStore()
	lobby := lobbies.Create("Doomed", 5, 0, false)

	lobbies.Remove(lobby.ID)

	if lobbies.LobbyExists(lobby.ID) {
		t.Fatal("expected lobby to be gone")
	}
	if _, err := lobbies.FindByInvite(lobby.InviteCode); err != errLobbyNotFound {
		t.Fatalf("expected invite mapping to be removed, got %v", err)
	}
	if lobbies.Count() != 0 {
		t.Fatalf("expected empty store, got %d", lobbies.Count())
	}
}
