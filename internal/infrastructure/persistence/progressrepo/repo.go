// Package progressrepo implements progress.Repository and progress.SessionStore
// on top of any kvstore.Store, using the layout:
//
//	current_user        -> username
//	progress_<username> -> {"unlocked":["1","2"],"active":"2"}
package progressrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/copilot-mastery/mastery/internal/domain/curriculum"
	"github.com/copilot-mastery/mastery/internal/domain/progress"
	"github.com/copilot-mastery/mastery/internal/domain/shared"
	"github.com/copilot-mastery/mastery/internal/infrastructure/kvstore"
)

// Key layout.
const (
	CurrentUserKey    = "current_user"
	ProgressKeyPrefix = "progress_"
)

// ProgressKey returns the store key holding user's record.
func ProgressKey(user progress.Username) string {
	return ProgressKeyPrefix + user.String()
}

// recordDTO is the stored JSON shape.
type recordDTO struct {
	Unlocked []string `json:"unlocked"`
	Active   string   `json:"active"`
}

// Encode serializes a record into its stored JSON form.
func Encode(r progress.Record) (string, error) {
	topics := r.Unlocked.Topics()
	dto := recordDTO{
		Unlocked: make([]string, 0, len(topics)),
		Active:   r.Active.String(),
	}
	for _, t := range topics {
		dto.Unlocked = append(dto.Unlocked, t.String())
	}

	data, err := json.Marshal(dto)
	if err != nil {
		return "", fmt.Errorf("progressrepo: encode: %w", err)
	}
	return string(data), nil
}

// Decode parses a stored record. Unknown topic ids are skipped and the result
// is normalized; only JSON that cannot be parsed at all is an error.
func Decode(data string) (progress.Record, error) {
	var dto recordDTO
	if err := json.Unmarshal([]byte(data), &dto); err != nil {
		return progress.Record{}, shared.WrapError("progress", "Decode", shared.ErrInvalidFormat, "stored progress is not valid", err)
	}

	var r progress.Record
	for _, id := range dto.Unlocked {
		if t, err := curriculum.Parse(id); err == nil {
			r.Unlocked = r.Unlocked.With(t)
		}
	}
	if t, err := curriculum.Parse(dto.Active); err == nil {
		r.Active = t
	}

	return r.Normalize(), nil
}

// Repository stores progress records and the session pointer in a kvstore.Store.
type Repository struct {
	store kvstore.Store
}

// New creates a Repository over store.
func New(store kvstore.Store) *Repository {
	return &Repository{store: store}
}

// Load implements progress.Repository.
func (r *Repository) Load(ctx context.Context, user progress.Username) (progress.Record, error) {
	data, err := r.store.Get(ctx, ProgressKey(user))
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return progress.Record{}, shared.ErrProgressNotFound
		}
		return progress.Record{}, fmt.Errorf("progressrepo: load %q: %w", user, err)
	}
	return Decode(data)
}

// Save implements progress.Repository.
func (r *Repository) Save(ctx context.Context, user progress.Username, record progress.Record) error {
	data, err := Encode(record)
	if err != nil {
		return err
	}
	if err := r.store.Set(ctx, ProgressKey(user), data); err != nil {
		return fmt.Errorf("progressrepo: save %q: %w", user, err)
	}
	return nil
}

// CurrentUser implements progress.SessionStore.
func (r *Repository) CurrentUser(ctx context.Context) (progress.Username, error) {
	name, err := r.store.Get(ctx, CurrentUserKey)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return "", shared.ErrNoSession
		}
		return "", fmt.Errorf("progressrepo: current user: %w", err)
	}

	user, err := progress.ParseUsername(name)
	if err != nil {
		// A pointer we would not have written ourselves counts as no session.
		return "", shared.ErrNoSession
	}
	return user, nil
}

// SetCurrentUser implements progress.SessionStore.
func (r *Repository) SetCurrentUser(ctx context.Context, user progress.Username) error {
	if err := r.store.Set(ctx, CurrentUserKey, user.String()); err != nil {
		return fmt.Errorf("progressrepo: set current user: %w", err)
	}
	return nil
}

// ClearCurrentUser implements progress.SessionStore.
func (r *Repository) ClearCurrentUser(ctx context.Context) error {
	if err := r.store.Delete(ctx, CurrentUserKey); err != nil {
		return fmt.Errorf("progressrepo: clear current user: %w", err)
	}
	return nil
}
