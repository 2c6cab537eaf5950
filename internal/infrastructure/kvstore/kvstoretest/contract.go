// Package kvstoretest holds the behaviour every kvstore.Store backend must share.
package kvstoretest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copilot-mastery/mastery/internal/infrastructure/kvstore"
)

// RunContract exercises a fresh store returned by newStore.
func RunContract(t *testing.T, newStore func(t *testing.T) kvstore.Store) {
	t.Helper()

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), "progress_nobody")
		assert.ErrorIs(t, err, kvstore.ErrNotFound)
	})

	t.Run("SetGet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Set(ctx, "current_user", "ada"))
		got, err := s.Get(ctx, "current_user")
		require.NoError(t, err)
		assert.Equal(t, "ada", got)
	})

	t.Run("Overwrite", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Set(ctx, "k", "first"))
		require.NoError(t, s.Set(ctx, "k", "second"))
		got, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "second", got)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Set(ctx, "k", "v"))
		require.NoError(t, s.Delete(ctx, "k"))
		_, err := s.Get(ctx, "k")
		assert.ErrorIs(t, err, kvstore.ErrNotFound)

		assert.NoError(t, s.Delete(ctx, "never-set"))
	})

	t.Run("EmptyKey", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.Get(ctx, "")
		assert.ErrorIs(t, err, kvstore.ErrKeyEmpty)
		assert.ErrorIs(t, s.Set(ctx, "", "v"), kvstore.ErrKeyEmpty)
		assert.ErrorIs(t, s.Delete(ctx, ""), kvstore.ErrKeyEmpty)
	})

	t.Run("UnicodeKeysAndValues", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Set(ctx, "progress_Әлия", `{"unlocked":["1"],"active":"1"}`))
		got, err := s.Get(ctx, "progress_Әлия")
		require.NoError(t, err)
		assert.Equal(t, `{"unlocked":["1"],"active":"1"}`, got)
	})
}
