// Lobby Broadcast & Event Hub
//
// One LobbyHub owns all live state for a single lobby: the set of connected
// clients, per-username presence, the bounded message log, the trivia round,
// and the bot roster. Connection events flow through the hub's run loop;
// timer-driven work (trivia deadlines, bot thinking delays, reap grace
// periods) runs in goroutines that sleep, re-acquire the hub lock, and
// re-validate state before acting. Hubs for different lobbies never share
// state and never contend.

package main

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// UserResolver is the user-directory collaborator.
type UserResolver interface {
	ResolveUsername(userID string) (string, error)
}

// LobbyInfo is the lobby-metadata collaborator.
type LobbyInfo interface {
	LobbyExists(lobbyID string) bool
	LobbyCapacity(lobbyID string) (maxHumans, maxBots int)
	IsPrivate(lobbyID string) bool
	LobbyTitle(lobbyID string) (name, creator string)
}

type inboundChat struct {
	client  *Client
	text    string
	replyTo string
}

type LobbyHub struct {
	id      string
	cfg     *Config
	manager *LobbyManager

	register chan *Client
	unreg    chan *Client
	inbound  chan inboundChat
	done     chan struct{}

	mu       sync.RWMutex
	clients  map[*Client]bool
	presence map[string]int // username -> open connection count
	log      messageLog
	msgCount int
	bots     []string

	triviaActive   bool
	triviaQuestion triviaQuestion
	triviaAnswers  map[string]int

	createdAt  time.Time
	lastActive time.Time
	purged     bool
}

func newLobbyHub(lobbyID string, manager *LobbyManager) *LobbyHub {
	now := time.Now()
	return &LobbyHub{
		id:         lobbyID,
		cfg:        manager.cfg,
		manager:    manager,
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		inbound:    make(chan inboundChat),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		presence:   make(map[string]int),
		log:        newMessageLog(manager.cfg.historyLimit),
		createdAt:  now,
		lastActive: now,
	}
}

func (h *LobbyHub) run() {
	for {
		select {
		case <-h.done:
			return
		case c := <-h.register:
			h.handleRegister(c)
		case c := <-h.unreg:
			h.handleUnregister(c)
		case in := <-h.inbound:
			h.handleChat(in)
		}
	}
}

// Register hands a connection to the hub's run loop.
func (h *LobbyHub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		close(c.send)
	}
}

// Unregister is idempotent; removing an already-absent connection is a no-op.
func (h *LobbyHub) Unregister(c *Client) {
	select {
	case h.unreg <- c:
	case <-h.done:
	}
}

// Chat hands an inbound client message to the run loop.
func (h *LobbyHub) Chat(in inboundChat) {
	select {
	case h.inbound <- in:
	case <-h.done:
	}
}

func (h *LobbyHub) handleRegister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.purged {
		close(c.send)
		return
	}

	h.lastActive = time.Now()

	wasFirst := len(h.presence) == 0
	newUser := h.presence[c.username] == 0

	h.clients[c] = true
	h.presence[c.username]++

	h.sendWelcomeLocked(c)

	// A fresh lobby has nobody to notify, and extra devices of an
	// already-present user should not re-announce.
	if !wasFirst && newUser {
		joined := newSystemMessage(fmt.Sprintf("👋 **%s** joined the chat", c.username))
		h.log.append(joined)
		h.broadcastLocked(joined)
	}

	logf(h.cfg, "HUB: %q connected to lobby %s", c.username, h.id)
}

func (h *LobbyHub) sendWelcomeLocked(c *Client) {
	name, creator := h.manager.info.LobbyTitle(h.id)
	if creator == "" {
		creator = "Unknown"
	}

	welcome := newSystemMessage(fmt.Sprintf(
		"🎮 Welcome to '%s', %s!\n\n👑 Created by: %s\n👥 Active users: %d\n🤖 AI bots: %d\n\n💬 Start chatting to activate the bots!",
		name, c.username, creator, len(h.presence), len(h.bots),
	))
	if !h.trySendLocked(c, welcome) {
		return
	}

	if h.cfg.welcomeHistory < 1 {
		return
	}
	for _, m := range h.log.tail(h.cfg.welcomeHistory) {
		if !h.trySendLocked(c, m) {
			return
		}
	}
}

func (h *LobbyHub) handleUnregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[c] {
		return
	}

	delete(h.clients, c)
	close(c.send)
	h.lastActive = time.Now()

	h.presence[c.username]--
	if h.presence[c.username] > 0 {
		return
	}
	delete(h.presence, c.username)

	if len(h.presence) > 0 {
		left := newSystemMessage(fmt.Sprintf("👋 **%s** left the chat", c.username))
		h.log.append(left)
		h.broadcastLocked(left)
	} else {
		h.manager.ScheduleReap(h.id)
	}

	logf(h.cfg, "HUB: %q disconnected from lobby %s", c.username, h.id)
}

func (h *LobbyHub) handleChat(in inboundChat) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := h.postMessageLocked(in.client.username, in.text, in.replyTo, false); err != nil {
		h.trySendLocked(in.client, newMessage(msgTypeError, "system", err.Error()))
	}
}

// PostMessage appends and broadcasts a human chat message, then triggers the
// trivia counter and the bot reply scheduler. Validation errors are returned
// before any state is mutated.
func (h *LobbyHub) PostMessage(username, text, replyTo string) (Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.postMessageLocked(username, text, replyTo, true)
}

func (h *LobbyHub) postMessageLocked(username, text, replyTo string, strictReply bool) (Message, error) {
	if h.purged {
		return Message{}, errLobbyNotFound
	}

	text = trimMessage(text)
	if text == "" {
		return Message{}, errMessageEmpty
	}
	if len(text) > maxMessageLength {
		return Message{}, errMessageTooLong
	}

	var replied *Message
	if replyTo != "" {
		replied = h.log.find(replyTo)
		if replied == nil {
			if strictReply {
				return Message{}, errReplyNotFound
			}
			replyTo = ""
		}
	}

	m := newMessage(msgTypeUser, username, text)
	m.ReplyTo = replyTo
	if replied != nil {
		cp := *replied
		cp.RepliedMessage = nil
		m.RepliedMessage = &cp
	}

	h.lastActive = time.Now()
	h.log.append(m)
	h.broadcastLocked(m)

	h.msgCount++
	h.maybeStartTriviaLocked()
	h.scheduleBotReplyLocked(text, username)

	return m, nil
}

// Broadcast delivers a message to every live connection in the lobby.
// Best-effort: a peer that will not accept the message is dropped and
// delivery continues to the rest.
func (h *LobbyHub) Broadcast(m Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcastLocked(m)
}

func (h *LobbyHub) broadcastLocked(m Message) {
	for c := range h.clients {
		h.trySendLocked(c, m)
	}
}

// trySendLocked queues a message for one client, dropping the client if its
// send buffer is full. Reports whether the client is still registered.
func (h *LobbyHub) trySendLocked(c *Client, m Message) bool {
	if !h.clients[c] {
		return false
	}

	select {
	case c.send <- m:
		return true
	default:
		h.dropClientLocked(c)
		return false
	}
}

// dropClientLocked removes a connection that failed to accept a send. No
// leave notice is broadcast; the drop is counted for observability instead.
func (h *LobbyHub) dropClientLocked(c *Client) {
	delete(h.clients, c)
	close(c.send)
	h.manager.droppedSends.Add(1)

	h.presence[c.username]--
	if h.presence[c.username] <= 0 {
		delete(h.presence, c.username)
	}
	if len(h.presence) == 0 {
		h.manager.ScheduleReap(h.id)
	}

	logf(h.cfg, "HUB: Dropped unresponsive connection for %q in lobby %s", c.username, h.id)
}

// RelayTyping forwards a typing indicator to every other connection. Typing
// traffic is never logged.
func (h *LobbyHub) RelayTyping(from *Client, isTyping bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	m := newMessage(msgTypeTyping, from.username, "")
	m.IsTyping = isTyping

	for c := range h.clients {
		if c == from {
			continue
		}
		select {
		case c.send <- m:
		default:
		}
	}
}

// History returns up to limit messages; offset pages back from the newest.
func (h *LobbyHub) History(limit, offset int) ([]Message, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.log.recent(limit, offset), h.log.len()
}

// HubSnapshot is a point-in-time view of one lobby's live state.
type HubSnapshot struct {
	LobbyID      string
	ActiveUsers  []string
	Connections  int
	Bots         []string
	MessageCount int
	LogLen       int
	TriviaActive bool
	LastActive   time.Time
}

func (h *LobbyHub) Snapshot() HubSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := make([]string, 0, len(h.presence))
	for username := range h.presence {
		users = append(users, username)
	}
	sort.Strings(users)

	bots := make([]string, len(h.bots))
	copy(bots, h.bots)

	return HubSnapshot{
		LobbyID:      h.id,
		ActiveUsers:  users,
		Connections:  len(h.clients),
		Bots:         bots,
		MessageCount: h.msgCount,
		LogLen:       h.log.len(),
		TriviaActive: h.triviaActive,
		LastActive:   h.lastActive,
	}
}

// LobbyManager owns one hub per lobby id, creating them on demand and
// purging them once the reaper finds them empty.
type LobbyManager struct {
	cfg       *Config
	users     UserResolver
	info      LobbyInfo
	generator replyGenerator
	purge     func(lobbyID string)

	mu   sync.Mutex
	hubs map[string]*LobbyHub

	droppedSends atomic.Uint64
}

func newLobbyManager(cfg *Config, users UserResolver, info LobbyInfo) *LobbyManager {
	lm := &LobbyManager{
		cfg:   cfg,
		users: users,
		info:  info,
		hubs:  make(map[string]*LobbyHub),
	}
	if cfg.ollamaURL != "" {
		lm.generator = newOllamaGenerator(cfg.ollamaURL)
	}
	return lm
}

// Hub returns the hub for a lobby, creating it if the lobby exists in the
// metadata store. Returns nil for unknown lobbies. The existence check runs
// under the manager lock so a concurrent reap cannot slip between the check
// and the insert.
func (lm *LobbyManager) Hub(lobbyID string) *LobbyHub {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if hub, ok := lm.hubs[lobbyID]; ok {
		return hub
	}

	if !lm.info.LobbyExists(lobbyID) {
		return nil
	}

	hub := newLobbyHub(lobbyID, lm)
	lm.hubs[lobbyID] = hub
	go hub.run()
	return hub
}

// Peek returns the hub for a lobby without creating one.
func (lm *LobbyManager) Peek(lobbyID string) *LobbyHub {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.hubs[lobbyID]
}

// ScheduleReap arms a grace-period timer for a lobby whose presence just
// emptied. When the timer fires, emptiness is re-checked before anything is
// purged, so overlapping schedules and mid-grace arrivals are harmless.
func (lm *LobbyManager) ScheduleReap(lobbyID string) {
	go lm.reap(lobbyID)
}

func (lm *LobbyManager) reap(lobbyID string) {
	time.Sleep(lm.cfg.reapGrace)

	lm.mu.Lock()
	hub, ok := lm.hubs[lobbyID]
	if !ok {
		lm.mu.Unlock()
		return
	}

	hub.mu.Lock()
	if len(hub.presence) > 0 || len(hub.clients) > 0 {
		hub.mu.Unlock()
		lm.mu.Unlock()
		return
	}
	hub.purged = true
	close(hub.done)
	hub.mu.Unlock()

	delete(lm.hubs, lobbyID)

	// The metadata record goes away in the same critical section, so Hub
	// cannot observe the lobby as existing and recreate it mid-purge.
	if lm.purge != nil {
		lm.purge(lobbyID)
	}
	lm.mu.Unlock()

	logf(lm.cfg, "REAP: Purged empty lobby %s", lobbyID)
}

// Snapshots returns a point-in-time view of every live hub.
func (lm *LobbyManager) Snapshots() []HubSnapshot {
	lm.mu.Lock()
	hubs := make([]*LobbyHub, 0, len(lm.hubs))
	for _, hub := range lm.hubs {
		hubs = append(hubs, hub)
	}
	lm.mu.Unlock()

	out := make([]HubSnapshot, 0, len(hubs))
	for _, hub := range hubs {
		out = append(out, hub.Snapshot())
	}
	return out
}

// DroppedSends reports how many connections have been dropped for failing to
// accept a broadcast.
func (lm *LobbyManager) DroppedSends() uint64 {
	return lm.droppedSends.Load()
}
