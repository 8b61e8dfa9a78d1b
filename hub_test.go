package main

import (
	"strings"
	"testing"
	"time"
)

func testConfig() *Config {
	return &Config{
		bind:           "127.0.0.1",
		port:           8080,
		triviaInterval: 8,
		triviaDuration: 30 * time.Millisecond,
		triviaWarmup:   5 * time.Millisecond,
		historyLimit:   1000,
		welcomeHistory: 20,
		botSkipChance:  0,
		botDelayMin:    time.Millisecond,
		botDelayMax:    2 * time.Millisecond,
		reapGrace:      25 * time.Millisecond,
	}
}

func newTestHub(t *testing.T, cfg *Config) (*LobbyStore, *LobbyManager, *LobbyHub) {
	t.Helper()

	lobbies := newLobbyStore()
	lm := newLobbyManager(cfg, newDirectory(), lobbies)
	lm.purge = lobbies.Remove

	lobby := lobbies.Create("Test Lobby", 10, 5, false)
	hub := lm.Hub(lobby.ID)
	if hub == nil {
		t.Fatal("expected a hub for a created lobby")
	}
	return lobbies, lm, hub
}

func addClient(h *LobbyHub, username string, buffer int) *Client {
	c := &Client{
		send:     make(chan Message, buffer),
		userID:   username,
		username: username,
	}
	h.handleRegister(c)
	return c
}

func recvMessage(t *testing.T, c *Client) Message {
	t.Helper()

	select {
	case m := <-c.send:
		return m
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a message")
		return Message{}
	}
}

func drainMessages(c *Client) []Message {
	var out []Message
	for {
		select {
		case m := <-c.send:
			out = append(out, m)
		default:
			return out
		}
	}
}

func TestRegisterSendsWelcomeAndReplay(t *testing.T) {
	_, _, hub := newTestHub(t, testConfig())

	alice := addClient(hub, "alice", 64)

	welcome := recvMessage(t, alice)
	if welcome.Type != msgTypeSystem || !strings.Contains(welcome.Message, "Welcome to 'Test Lobby'") {
		t.Fatalf("expected welcome message, got %q (%s)", welcome.Message, welcome.Type)
	}
	if len(drainMessages(alice)) != 0 {
		t.Fatal("first connection should not see a join notice")
	}

	if _, err := hub.PostMessage("alice", "first", ""); err != nil {
		t.Fatalf("PostMessage returned error: %v", err)
	}
	if _, err := hub.PostMessage("alice", "second", ""); err != nil {
		t.Fatalf("PostMessage returned error: %v", err)
	}
	drainMessages(alice)

	bob := addClient(hub, "bob", 64)

	got := drainMessages(bob)
	if len(got) != 4 {
		t.Fatalf("expected welcome, 2 replayed messages and a join notice, got %d messages", len(got))
	}
	if !strings.Contains(got[0].Message, "Welcome to 'Test Lobby'") {
		t.Fatalf("expected welcome first, got %q", got[0].Message)
	}
	if got[1].Message != "first" || got[2].Message != "second" {
		t.Fatalf("expected replay in log order, got %q then %q", got[1].Message, got[2].Message)
	}
	if !strings.Contains(got[3].Message, "joined the chat") {
		t.Fatalf("expected join notice last, got %q", got[3].Message)
	}

	aliceGot := drainMessages(alice)
	if len(aliceGot) != 1 || !strings.Contains(aliceGot[0].Message, "**bob** joined") {
		t.Fatalf("expected alice to see bob's join notice, got %v", aliceGot)
	}
}

func TestSecondDeviceDoesNotAnnounce(t *testing.T) {
	_, _, hub := newTestHub(t, testConfig())

	dev1 := addClient(hub, "alice", 64)
	drainMessages(dev1)

	dev2 := addClient(hub, "alice", 64)
	drainMessages(dev2)

	for _, m := range drainMessages(dev1) {
		if strings.Contains(m.Message, "joined the chat") {
			t.Fatalf("extra device triggered a join notice: %q", m.Message)
		}
	}
}

func TestBroadcastDropsFullClient(t *testing.T) {
	_, lm, hub := newTestHub(t, testConfig())

	alice := addClient(hub, "alice", 64)
	drainMessages(alice)

	// Buffer of 2 is exactly consumed by the welcome and bob's own join
	// notice, so the next broadcast cannot be queued.
	bob := addClient(hub, "bob", 2)
	drainMessages(alice)

	if _, err := hub.PostMessage("alice", "hello", ""); err != nil {
		t.Fatalf("PostMessage returned error: %v", err)
	}

	got := drainMessages(alice)
	if len(got) != 1 || got[0].Message != "hello" {
		t.Fatalf("expected alice to still receive the broadcast, got %v", got)
	}

	if lm.DroppedSends() != 1 {
		t.Fatalf("expected 1 dropped send, got %d", lm.DroppedSends())
	}

	hub.mu.RLock()
	_, stillThere := hub.clients[bob]
	_, stillPresent := hub.presence["bob"]
	hub.mu.RUnlock()
	if stillThere || stillPresent {
		t.Fatal("expected the unresponsive client to be removed")
	}
}

func TestRegistrationBurstFitsSendBuffer(t *testing.T) {
	cfg := testConfig()
	_, _, hub := newTestHub(t, cfg)

	addClient(hub, "alice", 64)
	for i := 0; i < cfg.welcomeHistory+10; i++ {
		if _, err := hub.PostMessage("alice", "backlog", ""); err != nil {
			t.Fatalf("PostMessage returned error: %v", err)
		}
	}

	// A new connection is handed to the hub before its write pump drains
	// anything, so the full burst (welcome, replay, join notice) must fit
	// in the buffer a real connection is created with.
	bob := addClient(hub, "bob", sendBufferSize(cfg))

	hub.mu.RLock()
	registered := hub.clients[bob]
	hub.mu.RUnlock()
	if !registered {
		t.Fatal("fresh client dropped during welcome replay")
	}

	got := drainMessages(bob)
	want := 1 + cfg.welcomeHistory + 1
	if len(got) != want {
		t.Fatalf("expected %d queued messages, got %d", want, len(got))
	}
	if !strings.Contains(got[0].Message, "Welcome to 'Test Lobby'") {
		t.Fatalf("expected welcome first, got %q", got[0].Message)
	}
	if !strings.Contains(got[want-1].Message, "joined the chat") {
		t.Fatalf("expected join notice last, got %q", got[want-1].Message)
	}
}

func TestUnregisterIsIdempotent(t *testing.T) {
	_, _, hub := newTestHub(t, testConfig())

	alice := addClient(hub, "alice", 64)

	hub.handleUnregister(alice)
	hub.handleUnregister(alice)

	snap := hub.Snapshot()
	if snap.Connections != 0 || len(snap.ActiveUsers) != 0 {
		t.Fatalf("expected empty hub, got %+v", snap)
	}
}

func TestLeaveNoticeWaitsForLastDevice(t *testing.T) {
	_, _, hub := newTestHub(t, testConfig())

	bob := addClient(hub, "bob", 64)
	dev1 := addClient(hub, "alice", 64)
	dev2 := addClient(hub, "alice", 64)
	drainMessages(bob)

	hub.handleUnregister(dev1)
	for _, m := range drainMessages(bob) {
		if strings.Contains(m.Message, "left the chat") {
			t.Fatal("leave notice sent while another device is connected")
		}
	}

	hub.handleUnregister(dev2)
	got := drainMessages(bob)
	if len(got) != 1 || !strings.Contains(got[0].Message, "**alice** left") {
		t.Fatalf("expected a single leave notice, got %v", got)
	}
}

func TestPostMessageValidation(t *testing.T) {
	_, _, hub := newTestHub(t, testConfig())
	addClient(hub, "alice", 64)

	if _, err := hub.PostMessage("alice", "   ", ""); err != errMessageEmpty {
		t.Fatalf("expected errMessageEmpty, got %v", err)
	}
	if _, err := hub.PostMessage("alice", strings.Repeat("x", 1001), ""); err != errMessageTooLong {
		t.Fatalf("expected errMessageTooLong, got %v", err)
	}
	if _, err := hub.PostMessage("alice", "hi", "no-such-id"); err != errReplyNotFound {
		t.Fatalf("expected errReplyNotFound, got %v", err)
	}

	first, err := hub.PostMessage("alice", "original", "")
	if err != nil {
		t.Fatalf("PostMessage returned error: %v", err)
	}
	reply, err := hub.PostMessage("alice", "reply", first.MessageID)
	if err != nil {
		t.Fatalf("PostMessage returned error: %v", err)
	}
	if reply.ReplyTo != first.MessageID || reply.RepliedMessage == nil || reply.RepliedMessage.Message != "original" {
		t.Fatalf("expected embedded replied message, got %+v", reply)
	}
}

func TestReaperPurgesEmptyLobby(t *testing.T) {
	lobbies, lm, hub := newTestHub(t, testConfig())
	lobbyID := hub.id

	alice := addClient(hub, "alice", 64)
	hub.handleUnregister(alice)

	time.Sleep(100 * time.Millisecond)

	if lm.Peek(lobbyID) != nil {
		t.Fatal("expected hub to be purged after grace period")
	}
	if _, ok := lobbies.Get(lobbyID); ok {
		t.Fatal("expected lobby record to be removed on purge")
	}
	if _, err := hub.PostMessage("alice", "too late", ""); err != errLobbyNotFound {
		t.Fatalf("expected errLobbyNotFound on purged hub, got %v", err)
	}

	// The record is removed in the same critical section as the hub, so a
	// lookup after the purge must not mint a hub for the dead lobby.
	if lm.Hub(lobbyID) != nil {
		t.Fatal("expected no hub to be created for a purged lobby")
	}
	if len(lm.Snapshots()) != 0 {
		t.Fatalf("expected no live hubs after purge, got %d", len(lm.Snapshots()))
	}
}

func TestReaperAbandonsWhenUserReturns(t *testing.T) {
	_, lm, hub := newTestHub(t, testConfig())
	lobbyID := hub.id

	alice := addClient(hub, "alice", 64)
	hub.handleUnregister(alice)

	addClient(hub, "alice", 64)

	time.Sleep(100 * time.Millisecond)

	if lm.Peek(lobbyID) != hub {
		t.Fatal("expected reap to be abandoned while a user is present")
	}
}

func TestHubForUnknownLobby(t *testing.T) {
	cfg := testConfig()
	lobbies := newLobbyStore()
	lm := newLobbyManager(cfg, newDirectory(), lobbies)

	if hub := lm.Hub("nope"); hub != nil {
		t.Fatal("expected nil hub for unknown lobby")
	}
}
