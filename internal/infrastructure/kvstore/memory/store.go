// Package memory provides an in-process kvstore.Store.
package memory

import (
	"context"
	"sync"

	"github.com/copilot-mastery/mastery/internal/infrastructure/kvstore"
)

// Store keeps entries in a map guarded by a RWMutex.
type Store struct {
	mu      sync.RWMutex
	entries map[string]string
	closed  bool
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]string),
	}
}

// Get implements kvstore.Store.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if err := kvstore.ValidateKey(key); err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", kvstore.ErrClosed
	}
	v, ok := s.entries[key]
	if !ok {
		return "", kvstore.ErrNotFound
	}
	return v, nil
}

// Set implements kvstore.Store.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := kvstore.ValidateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return kvstore.ErrClosed
	}
	s.entries[key] = value
	return nil
}

// Delete implements kvstore.Store.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := kvstore.ValidateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return kvstore.ErrClosed
	}
	delete(s.entries, key)
	return nil
}

// Close implements kvstore.Store. Further calls fail with kvstore.ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
