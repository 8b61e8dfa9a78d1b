package main

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Lobby holds the metadata record for one chat lobby: identity, capacity,
// privacy, and the persistent member list. Live-connection state is owned by
// the hub, not here.
type Lobby struct {
	ID         string    `json:"lobby_id"`
	Name       string    `json:"name"`
	MaxHumans  int       `json:"max_humans"`
	MaxBots    int       `json:"max_bots"`
	Private    bool      `json:"is_private"`
	InviteCode string    `json:"invite_code"`
	Creator    string    `json:"creator,omitempty"`
	Members    []string  `json:"users"`
	CreatedAt  time.Time `json:"created_at"`
}

// LobbyStore is the lobby-metadata collaborator. The hub consumes it only
// through the LobbyInfo interface.
type LobbyStore struct {
	mu       sync.RWMutex
	lobbies  map[string]*Lobby
	byInvite map[string]string // invite code -> lobby id
}

func newLobbyStore() *LobbyStore {
	return &LobbyStore{
		lobbies:  make(map[string]*Lobby),
		byInvite: make(map[string]string),
	}
}

func newInviteCode() string {
	return strings.ToUpper(uuid.New().String()[:8])
}

// Create registers a new lobby. Human capacity is clamped to 1-20, bot
// capacity to 0-5.
func (s *LobbyStore) Create(name string, maxHumans, maxBots int, private bool) Lobby {
	name = strings.TrimSpace(name)
	maxHumans = min(max(maxHumans, 1), 20)
	maxBots = min(max(maxBots, 0), 5)

	s.mu.Lock()
	defer s.mu.Unlock()

	lobby := &Lobby{
		ID:         uuid.New().String(),
		Name:       name,
		MaxHumans:  maxHumans,
		MaxBots:    maxBots,
		Private:    private,
		InviteCode: newInviteCode(),
		CreatedAt:  time.Now(),
	}
	s.lobbies[lobby.ID] = lobby
	s.byInvite[lobby.InviteCode] = lobby.ID

	return *lobby
}

// Get returns a copy of the lobby record.
func (s *LobbyStore) Get(lobbyID string) (Lobby, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lobby, ok := s.lobbies[lobbyID]
	if !ok {
		return Lobby{}, false
	}
	return s.copyLocked(lobby), true
}

func (s *LobbyStore) copyLocked(lobby *Lobby) Lobby {
	out := *lobby
	out.Members = make([]string, len(lobby.Members))
	copy(out.Members, lobby.Members)
	return out
}

// List returns copies of every lobby record.
func (s *LobbyStore) List() []Lobby {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Lobby, 0, len(s.lobbies))
	for _, lobby := range s.lobbies {
		out = append(out, s.copyLocked(lobby))
	}
	return out
}

// FindByInvite resolves an invite code (case-insensitive) to a lobby id.
func (s *LobbyStore) FindByInvite(code string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byInvite[strings.ToUpper(code)]
	if !ok {
		return "", errLobbyNotFound
	}
	return id, nil
}

// Join adds a username to the member list. Rejoining is a no-op; the first
// member becomes the lobby creator. Returns true if the user was already a
// member.
func (s *LobbyStore) Join(lobbyID, username string) (rejoined bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lobby, ok := s.lobbies[lobbyID]
	if !ok {
		return false, errLobbyNotFound
	}

	for _, member := range lobby.Members {
		if member == username {
			return true, nil
		}
	}

	if len(lobby.Members) >= lobby.MaxHumans {
		return false, errLobbyFull
	}

	lobby.Members = append(lobby.Members, username)
	if len(lobby.Members) == 1 {
		lobby.Creator = username
	}

	return false, nil
}

// Leave removes a username from the member list.
func (s *LobbyStore) Leave(lobbyID, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lobby, ok := s.lobbies[lobbyID]
	if !ok {
		return errLobbyNotFound
	}

	for i, member := range lobby.Members {
		if member == username {
			lobby.Members = append(lobby.Members[:i], lobby.Members[i+1:]...)
			return nil
		}
	}
	return errNotMember
}

// Remove deletes the lobby record entirely. Called by the reaper once a
// lobby's hub state has been purged.
func (s *LobbyStore) Remove(lobbyID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lobby, ok := s.lobbies[lobbyID]; ok {
		delete(s.byInvite, lobby.InviteCode)
		delete(s.lobbies, lobbyID)
	}
}

// Count returns the number of lobbies.
func (s *LobbyStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lobbies)
}

// LobbyInfo implementation, consumed by the hub.

func (s *LobbyStore) LobbyExists(lobbyID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.lobbies[lobbyID]
	return ok
}

func (s *LobbyStore) LobbyCapacity(lobbyID string) (maxHumans, maxBots int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if lobby, ok := s.lobbies[lobbyID]; ok {
		return lobby.MaxHumans, lobby.MaxBots
	}
	return 0, 0
}

func (s *LobbyStore) IsPrivate(lobbyID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if lobby, ok := s.lobbies[lobbyID]; ok {
		return lobby.Private
	}
	return false
}

func (s *LobbyStore) LobbyTitle(lobbyID string) (name, creator string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if lobby, ok := s.lobbies[lobbyID]; ok {
		return lobby.Name, lobby.Creator
	}
	return "", ""
}
