// Package credential stores the single API key the extraction backend is
// initialised with.
package credential

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var (
	// ErrNotFound is returned by [Store.Get] when no key is stored.
	ErrNotFound = errors.New("credential: not found")

	// ErrInvalid is returned by [Store.Save] for keys that fail [Validate].
	ErrInvalid = errors.New("credential: invalid key")
)

// keyPrefix is the prefix every accepted key carries.
const keyPrefix = "sk-"

// minKeyLength is exclusive: keys must be longer than this.
const minKeyLength = 20

// Validate reports whether key looks like an API key: it must start with
// "sk-" and be longer than 20 characters.
func Validate(key string) bool {
	return strings.HasPrefix(key, keyPrefix) && len(key) > minKeyLength
}

// Store persists one API key.
type Store interface {
	// Save stores key, replacing any previous one. Invalid keys yield
	// [ErrInvalid] and leave the store unchanged.
	Save(ctx context.Context, key string) error

	// Get returns the stored key or [ErrNotFound].
	Get(ctx context.Context) (string, error)

	// Remove deletes the stored key. Removing from an empty store is not an
	// error.
	Remove(ctx context.Context) error
}

// Mask shortens key for display, keeping the prefix and the last four
// characters.
func Mask(key string) string {
	if len(key) <= len(keyPrefix)+4 {
		return strings.Repeat("*", len(key))
	}
	return key[:len(keyPrefix)] + "…" + key[len(key)-4:]
}

// MemoryStore keeps the key in process memory.
type MemoryStore struct {
	mu  sync.Mutex
	key string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save implements [Store].
func (s *MemoryStore) Save(_ context.Context, key string) error {
	if !Validate(key) {
		return ErrInvalid
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = key
	return nil
}

// Get implements [Store].
func (s *MemoryStore) Get(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == "" {
		return "", ErrNotFound
	}
	return s.key, nil
}

// Remove implements [Store].
func (s *MemoryStore) Remove(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = ""
	return nil
}
