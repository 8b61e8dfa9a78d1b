package main

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// UserRecord is one registered username.
type UserRecord struct {
	ID         string    `json:"user_id"`
	Username   string    `json:"username"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

// Directory maps usernames to identities. It is the hub's user-lookup
// collaborator; the hub only ever calls ResolveUsername.
type Directory struct {
	mu     sync.RWMutex
	byID   map[string]*UserRecord
	byName map[string]*UserRecord
}

func newDirectory() *Directory {
	return &Directory{
		byID:   make(map[string]*UserRecord),
		byName: make(map[string]*UserRecord),
	}
}

// Register creates a new user. Usernames are trimmed, must be 2-20
// characters, and must be unique.
func (d *Directory) Register(username string) (UserRecord, error) {
	username = strings.TrimSpace(username)
	if len(username) < 2 || len(username) > 20 {
		return UserRecord{}, errUsernameLength
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.byName[username]; ok {
		return UserRecord{}, errUsernameTaken
	}

	now := time.Now()
	rec := &UserRecord{
		ID:         uuid.New().String(),
		Username:   username,
		CreatedAt:  now,
		LastActive: now,
	}
	d.byID[rec.ID] = rec
	d.byName[username] = rec

	return *rec, nil
}

// ResolveUsername returns the username for a user id.
func (d *Directory) ResolveUsername(userID string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.byID[userID]
	if !ok {
		return "", errUserNotFound
	}
	return rec.Username, nil
}

// Get returns a copy of the record for a user id.
func (d *Directory) Get(userID string) (UserRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.byID[userID]
	if !ok {
		return UserRecord{}, errUserNotFound
	}
	return *rec, nil
}

// Touch updates the user's last-active timestamp.
func (d *Directory) Touch(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if rec, ok := d.byID[userID]; ok {
		rec.LastActive = time.Now()
	}
}

// Count returns the number of registered users.
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byID)
}
