// Package user provides the user record model and stores.
//
// Users are provisioned out-of-band at startup; the API never creates
// them. Disabling a user blocks authentication but keeps the record.
package user

import (
	"context"
	"errors"
	"sync"
)

// ErrUserNotFound is returned when no record exists for a user ID.
var ErrUserNotFound = errors.New("user not found")

// User is one provisioned account.
type User struct {
	UserID         string
	HashedPassword string
	Disabled       bool
}

// Store defines user record persistence.
type Store interface {
	// Get retrieves a user by ID, or ErrUserNotFound.
	Get(ctx context.Context, userID string) (*User, error)

	// Upsert creates or replaces a user record. Idempotent.
	Upsert(ctx context.Context, u *User) error
}

// InMemoryStore implements Store with a mutex-guarded map. Used for
// testing and development.
type InMemoryStore struct {
	mu    sync.RWMutex
	users map[string]*User
}

// NewInMemoryStore creates an empty in-memory user store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{users: make(map[string]*User)}
}

// Get retrieves a user by ID, or ErrUserNotFound.
func (s *InMemoryStore) Get(ctx context.Context, userID string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

// Upsert creates or replaces a user record.
func (s *InMemoryStore) Upsert(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *u
	s.users[u.UserID] = &copied
	return nil
}
