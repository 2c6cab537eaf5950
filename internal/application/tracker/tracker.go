// Package tracker coordinates progress records with their storage, the session
// pointer and the event publisher.
package tracker

import (
	"context"
	"fmt"

	"github.com/copilot-mastery/mastery/internal/domain/curriculum"
	"github.com/copilot-mastery/mastery/internal/domain/progress"
	"github.com/copilot-mastery/mastery/internal/domain/shared"
	"github.com/copilot-mastery/mastery/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRACKER
// ══════════════════════════════════════════════════════════════════════════════

// Tracker loads, transitions and persists progress records.
// It is meant for a single writer; the stores underneath handle their own locking.
type Tracker struct {
	repo      progress.Repository
	sessions  progress.SessionStore
	publisher shared.EventPublisher // optional
	logger    *logger.Logger
}

// New creates a Tracker. publisher and log may be nil.
func New(
	repo progress.Repository,
	sessions progress.SessionStore,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *Tracker {
	if log == nil {
		log = logger.Nop()
	}
	return &Tracker{
		repo:      repo,
		sessions:  sessions,
		publisher: publisher,
		logger:    log.With(logger.Component("tracker")),
	}
}

// LoadProgress returns the stored record for user. A missing or unreadable
// record yields progress.Default().
func (t *Tracker) LoadProgress(ctx context.Context, user progress.Username) progress.Record {
	record, err := t.repo.Load(ctx, user)
	if err == nil {
		return record
	}

	if !shared.IsNotFound(err) {
		t.logger.Warn("failed to load progress, using defaults",
			logger.Username(user.String()),
			logger.Err(err),
		)
	}
	return progress.Default()
}

// SelectTopic returns record with topic active if topic is unlocked.
func (t *Tracker) SelectTopic(record progress.Record, topic curriculum.Topic) progress.Record {
	return record.Select(topic)
}

// CompleteTopic returns record with the successor of topic unlocked.
func (t *Tracker) CompleteTopic(record progress.Record, topic curriculum.Topic) progress.Record {
	return record.Complete(topic)
}

// Persist stores record for user. Failures are logged and dropped.
func (t *Tracker) Persist(ctx context.Context, user progress.Username, record progress.Record) {
	if err := t.repo.Save(ctx, user, record); err != nil {
		t.logger.Warn("failed to persist progress",
			logger.Username(user.String()),
			logger.Topic(record.Active.String()),
			logger.Err(err),
		)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// FLOWS
// ══════════════════════════════════════════════════════════════════════════════

// CompleteResult describes the outcome of Complete.
type CompleteResult struct {
	Record progress.Record

	// Unlocked is the newly unlocked topic, or 0 when nothing changed.
	Unlocked curriculum.Topic

	// Finished is true only for the completion that unlocked the last topic.
	Finished bool
}

// Complete loads user's record, marks topic complete and persists the result.
// TopicCompleted is published only for a topic the learner had unlocked.
func (t *Tracker) Complete(ctx context.Context, user progress.Username, topic curriculum.Topic) CompleteResult {
	log := t.logger.With(logger.Operation("complete"), logger.Username(user.String()))

	before := t.LoadProgress(ctx, user)
	unlocked, ok := before.Unlocks(topic)
	after := t.CompleteTopic(before, topic)

	if before.IsUnlocked(topic) {
		t.publish(progress.NewTopicCompletedEvent(user, topic))
	} else {
		log.Debug("completed a locked topic", logger.Topic(topic.String()))
	}

	result := CompleteResult{Record: after}
	if !ok {
		return result
	}

	t.Persist(ctx, user, after)
	result.Unlocked = unlocked
	log.Info("topic unlocked",
		logger.Topic(unlocked.String()),
		logger.String("by", topic.String()),
	)
	t.publish(progress.NewTopicUnlockedEvent(user, unlocked, topic))

	if after.IsFinished() && !before.IsFinished() {
		result.Finished = true
		t.publish(progress.NewCurriculumFinishedEvent(user))
	}
	return result
}

// Select loads user's record, activates topic and persists the result.
// The bool reports whether topic was unlocked and is now active.
func (t *Tracker) Select(ctx context.Context, user progress.Username, topic curriculum.Topic) (progress.Record, bool) {
	before := t.LoadProgress(ctx, user)
	after := t.SelectTopic(before, topic)

	if !after.IsUnlocked(topic) {
		t.logger.Debug("ignored selection of locked topic",
			logger.Operation("select"),
			logger.Username(user.String()),
			logger.Topic(topic.String()),
		)
		return after, false
	}

	if after != before {
		t.Persist(ctx, user, after)
		t.publish(progress.NewTopicSelectedEvent(user, topic, before.Active))
	}
	return after, true
}

// TopicView is one row of a progress listing.
type TopicView struct {
	Topic curriculum.Topic
	State progress.State
}

// Overview lists every topic in curriculum order with its state in record.
func (t *Tracker) Overview(record progress.Record) []TopicView {
	all := curriculum.All()
	out := make([]TopicView, 0, len(all))
	for _, topic := range all {
		out = append(out, TopicView{Topic: topic, State: record.State(topic)})
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION
// ══════════════════════════════════════════════════════════════════════════════

// Login validates name, makes it the current user and returns its record.
func (t *Tracker) Login(ctx context.Context, name string) (progress.Username, progress.Record, error) {
	user, err := progress.ParseUsername(name)
	if err != nil {
		return "", progress.Record{}, err
	}

	if err := t.sessions.SetCurrentUser(ctx, user); err != nil {
		return "", progress.Record{}, fmt.Errorf("login: %w", err)
	}

	record := t.LoadProgress(ctx, user)
	t.logger.Info("logged in",
		logger.Operation("login"),
		logger.Username(user.String()),
		logger.Topic(record.Active.String()),
	)
	t.publish(progress.NewLoggedInEvent(user))
	return user, record, nil
}

// Logout forgets the current user. Stored progress is left in place.
func (t *Tracker) Logout(ctx context.Context) error {
	user, hadSession := t.CurrentUser(ctx)

	if err := t.sessions.ClearCurrentUser(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}

	if hadSession {
		t.logger.Info("logged out", logger.Operation("logout"), logger.Username(user.String()))
		t.publish(progress.NewLoggedOutEvent(user))
	}
	return nil
}

// CurrentUser returns the user of the stored session, if any.
func (t *Tracker) CurrentUser(ctx context.Context) (progress.Username, bool) {
	user, err := t.sessions.CurrentUser(ctx)
	if err == nil {
		return user, true
	}

	if !shared.IsNotFound(err) {
		t.logger.Warn("failed to read session", logger.Err(err))
	}
	return "", false
}

func (t *Tracker) publish(event shared.Event) {
	if t.publisher == nil {
		return
	}
	if err := t.publisher.Publish(event); err != nil {
		t.logger.Warn("failed to publish event",
			logger.String("event_type", string(event.EventType())),
			logger.Err(err),
		)
	}
}
