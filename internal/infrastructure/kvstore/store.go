// Package kvstore defines the key-value storage abstraction the progress
// repository is built on. Backends live in subpackages:
//
//   - memory: process-local map, used by tests and the --store=memory CLI mode
//   - sqlitestore: single-file local database, the default for the CLI
//   - redisstore: Redis strings
//   - pgstore: a PostgreSQL key/value table
package kvstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when the key does not exist.
	ErrNotFound = errors.New("kvstore: key not found")

	// ErrKeyEmpty is returned when an empty key is provided.
	ErrKeyEmpty = errors.New("kvstore: key cannot be empty")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("kvstore: store is closed")
)

// Store is a string-to-string key-value store. Implementations must be safe
// for concurrent use.
type Store interface {
	// Get returns the value stored under key or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the underlying resources.
	Close() error
}

// ValidateKey returns ErrKeyEmpty for the empty key.
func ValidateKey(key string) error {
	if key == "" {
		return ErrKeyEmpty
	}
	return nil
}
