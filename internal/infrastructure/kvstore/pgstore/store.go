package pgstore

import (
	"context"
	"fmt"

	"github.com/copilot-mastery/mastery/internal/infrastructure/kvstore"
)

// Store is a kvstore.Store backed by the kv_entries table.
// Run Migrator.Migrate before first use.
type Store struct {
	conn *Connection
}

// NewStore wraps an open connection.
func NewStore(conn *Connection) *Store {
	return &Store{conn: conn}
}

// Get implements kvstore.Store.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if err := kvstore.ValidateKey(key); err != nil {
		return "", err
	}

	var value string
	err := s.conn.QueryRow(ctx, `SELECT value FROM kv_entries WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if IsNoRows(err) {
			return "", kvstore.ErrNotFound
		}
		return "", fmt.Errorf("pgstore: get %q: %w", key, err)
	}
	return value, nil
}

// Set implements kvstore.Store.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := kvstore.ValidateKey(key); err != nil {
		return err
	}

	_, err := s.conn.Exec(ctx, `
		INSERT INTO kv_entries (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		key, value)
	if err != nil {
		return fmt.Errorf("pgstore: set %q: %w", key, err)
	}
	return nil
}

// Delete implements kvstore.Store.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := kvstore.ValidateKey(key); err != nil {
		return err
	}

	if _, err := s.conn.Exec(ctx, `DELETE FROM kv_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("pgstore: delete %q: %w", key, err)
	}
	return nil
}

// Close implements kvstore.Store by closing the pool.
func (s *Store) Close() error {
	s.conn.Close()
	return nil
}
