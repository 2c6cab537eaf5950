package progress

import (
	"context"
)

// Repository stores one Record per username.
// Implementations live in infrastructure/persistence.
type Repository interface {
	// Load returns the stored record for user.
	// Returns ErrProgressNotFound if nothing has been stored yet.
	Load(ctx context.Context, user Username) (Record, error)

	// Save overwrites the stored record for user.
	Save(ctx context.Context, user Username, record Record) error
}

// SessionStore keeps the pointer to the user of the current session.
type SessionStore interface {
	// CurrentUser returns the logged-in user or ErrNoSession.
	CurrentUser(ctx context.Context) (Username, error)

	// SetCurrentUser records user as logged in.
	SetCurrentUser(ctx context.Context, user Username) error

	// ClearCurrentUser forgets the session pointer. Stored progress is kept.
	ClearCurrentUser(ctx context.Context) error
}
