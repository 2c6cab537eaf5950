package tracker

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copilot-mastery/mastery/internal/domain/curriculum"
	"github.com/copilot-mastery/mastery/internal/domain/progress"
	"github.com/copilot-mastery/mastery/internal/domain/shared"
	"github.com/copilot-mastery/mastery/internal/infrastructure/kvstore"
	"github.com/copilot-mastery/mastery/internal/infrastructure/kvstore/memory"
	"github.com/copilot-mastery/mastery/internal/infrastructure/persistence/progressrepo"
	"github.com/copilot-mastery/mastery/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

type recordingPublisher struct {
	events []shared.Event
}

func (p *recordingPublisher) Publish(event shared.Event) error {
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []shared.EventType {
	out := make([]shared.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

// brokenStore fails every call.
type brokenStore struct{}

var errBroken = errors.New("disk on fire")

func (brokenStore) Get(context.Context, string) (string, error) { return "", errBroken }
func (brokenStore) Set(context.Context, string, string) error   { return errBroken }
func (brokenStore) Delete(context.Context, string) error        { return errBroken }
func (brokenStore) Close() error                                { return nil }

type fixture struct {
	tracker *Tracker
	store   kvstore.Store
	events  *recordingPublisher
	logs    *bytes.Buffer
}

func newFixture(t *testing.T, store kvstore.Store) fixture {
	t.Helper()
	if store == nil {
		store = memory.NewStore()
	}
	var buf bytes.Buffer
	log := logger.New(logger.Options{Output: &buf, Level: logger.LevelDebug, Format: "json"})
	repo := progressrepo.New(store)
	events := &recordingPublisher{}

	return fixture{
		tracker: New(repo, repo, events, log),
		store:   store,
		events:  events,
		logs:    &buf,
	}
}

func unlocked(topics ...curriculum.Topic) progress.TopicSet {
	return progress.NewTopicSet(topics...)
}

// ══════════════════════════════════════════════════════════════════════════════
// CORE OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

func TestLoadProgress_FreshUserGetsDefault(t *testing.T) {
	f := newFixture(t, nil)

	got := f.tracker.LoadProgress(context.Background(), "newbie")

	assert.Equal(t, progress.Default(), got)
	assert.Empty(t, f.logs.String(), "a missing record is not worth a warning")
}

func TestLoadProgress_StoreFailureGetsDefault(t *testing.T) {
	f := newFixture(t, brokenStore{})

	got := f.tracker.LoadProgress(context.Background(), "ada")

	assert.Equal(t, progress.Default(), got)
	assert.Contains(t, f.logs.String(), "failed to load progress")
}

func TestLoadProgress_CorruptRecordGetsDefault(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.store.Set(ctx, progressrepo.ProgressKey("ada"), "{not json"))

	assert.Equal(t, progress.Default(), f.tracker.LoadProgress(ctx, "ada"))
}

func TestCompleteTopic(t *testing.T) {
	f := newFixture(t, nil)
	r := f.tracker.CompleteTopic(progress.Default(), curriculum.TopicOne)

	assert.True(t, r.IsUnlocked(curriculum.TopicOne))
	assert.True(t, r.IsUnlocked(curriculum.TopicTwo))
	assert.Equal(t, curriculum.TopicOne, r.Active, "completion does not move the active topic")

	again := f.tracker.CompleteTopic(r, curriculum.TopicOne)
	if diff := cmp.Diff(r, again); diff != "" {
		t.Errorf("second completion changed the record (-want +got):\n%s", diff)
	}
}

func TestSelectTopic(t *testing.T) {
	f := newFixture(t, nil)
	r := progress.Record{Unlocked: unlocked(curriculum.TopicOne, curriculum.TopicTwo), Active: curriculum.TopicOne}

	assert.Equal(t, curriculum.TopicTwo, f.tracker.SelectTopic(r, curriculum.TopicTwo).Active)
	assert.Equal(t, r, f.tracker.SelectTopic(r, curriculum.TopicFive))
}

func TestPersist_RoundTrip(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	want := progress.Record{
		Unlocked: unlocked(curriculum.TopicOne, curriculum.TopicTwo, curriculum.TopicThree),
		Active:   curriculum.TopicThree,
	}

	f.tracker.Persist(ctx, "ada", want)

	if diff := cmp.Diff(want, f.tracker.LoadProgress(ctx, "ada")); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	raw, err := f.store.Get(ctx, "progress_ada")
	require.NoError(t, err)
	assert.JSONEq(t, `{"unlocked":["1","2","3"],"active":"3"}`, raw)
}

func TestPersist_FailureIsSwallowed(t *testing.T) {
	f := newFixture(t, brokenStore{})

	assert.NotPanics(t, func() {
		f.tracker.Persist(context.Background(), "ada", progress.Default())
	})
	assert.Contains(t, f.logs.String(), `"level":"WARN"`)
	assert.Contains(t, f.logs.String(), "failed to persist progress")
}

// Fresh user completes topic 1, selects 2, then tries the locked topic 5.
func TestScenario_CompleteThenSelect(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	r := f.tracker.LoadProgress(ctx, "ada")
	r = f.tracker.CompleteTopic(r, curriculum.TopicOne)
	r = f.tracker.SelectTopic(r, curriculum.TopicTwo)
	f.tracker.Persist(ctx, "ada", r)

	want := progress.Record{Unlocked: unlocked(curriculum.TopicOne, curriculum.TopicTwo), Active: curriculum.TopicTwo}
	assert.Equal(t, want, r)

	r = f.tracker.SelectTopic(r, curriculum.TopicFive)
	assert.Equal(t, want, r)
	assert.Equal(t, want, f.tracker.LoadProgress(ctx, "ada"))
}

// ══════════════════════════════════════════════════════════════════════════════
// FLOWS
// ══════════════════════════════════════════════════════════════════════════════

func TestComplete_PersistsAndPublishes(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res := f.tracker.Complete(ctx, "ada", curriculum.TopicOne)

	assert.Equal(t, curriculum.TopicTwo, res.Unlocked)
	assert.False(t, res.Finished)
	assert.True(t, f.tracker.LoadProgress(ctx, "ada").IsUnlocked(curriculum.TopicTwo))
	assert.Equal(t, []shared.EventType{shared.EventTopicCompleted, shared.EventTopicUnlocked}, f.events.types())
}

func TestComplete_RepeatUnlocksNothing(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.tracker.Complete(ctx, "ada", curriculum.TopicOne)
	res := f.tracker.Complete(ctx, "ada", curriculum.TopicOne)

	assert.Zero(t, res.Unlocked)
	assert.Equal(t, []shared.EventType{
		shared.EventTopicCompleted, shared.EventTopicUnlocked,
		shared.EventTopicCompleted,
	}, f.events.types())
}

func TestComplete_LockedTopicIsNotReportedCompleted(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res := f.tracker.Complete(ctx, "ada", curriculum.TopicFive)

	assert.Equal(t, curriculum.TopicSix, res.Unlocked)
	assert.Equal(t, []shared.EventType{shared.EventTopicUnlocked}, f.events.types())
	assert.Contains(t, f.logs.String(), `"operation":"complete"`)
	assert.Contains(t, f.logs.String(), "completed a locked topic")
}

func TestComplete_WholeCurriculum(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	var last CompleteResult
	var finishedBy []curriculum.Topic
	for _, topic := range curriculum.All() {
		last = f.tracker.Complete(ctx, "ada", topic)
		if last.Finished {
			finishedBy = append(finishedBy, topic)
		}
	}
	assert.Equal(t, []curriculum.Topic{curriculum.TopicTen}, finishedBy)

	r := f.tracker.LoadProgress(ctx, "ada")
	assert.True(t, r.IsFinished())
	assert.Equal(t, curriculum.Count, r.Unlocked.Len())
	assert.Zero(t, last.Unlocked, "the last topic has no successor")

	finished := 0
	for _, e := range f.events.events {
		if e.EventType() == shared.EventCurriculumDone {
			finished++
		}
	}
	assert.Equal(t, 1, finished)
}

func TestSelect_Flow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.tracker.Complete(ctx, "ada", curriculum.TopicOne)
	f.events.events = nil

	r, ok := f.tracker.Select(ctx, "ada", curriculum.TopicTwo)
	require.True(t, ok)
	assert.Equal(t, curriculum.TopicTwo, r.Active)
	assert.Equal(t, curriculum.TopicTwo, f.tracker.LoadProgress(ctx, "ada").Active)
	require.Len(t, f.events.events, 1)
	assert.Equal(t, "1", f.events.events[0].Payload()["previous"])

	_, ok = f.tracker.Select(ctx, "ada", curriculum.TopicFive)
	assert.False(t, ok)
	assert.Equal(t, curriculum.TopicTwo, f.tracker.LoadProgress(ctx, "ada").Active)

	_, ok = f.tracker.Select(ctx, "ada", curriculum.TopicTwo)
	assert.True(t, ok)
	assert.Len(t, f.events.events, 1, "reselecting the active topic publishes nothing")
}

func TestOverview(t *testing.T) {
	f := newFixture(t, nil)
	r := progress.Record{Unlocked: unlocked(curriculum.TopicOne, curriculum.TopicTwo), Active: curriculum.TopicTwo}

	rows := f.tracker.Overview(r)

	require.Len(t, rows, curriculum.Count)
	assert.Equal(t, TopicView{Topic: curriculum.TopicOne, State: progress.StateUnlocked}, rows[0])
	assert.Equal(t, TopicView{Topic: curriculum.TopicTwo, State: progress.StateActive}, rows[1])
	assert.Equal(t, TopicView{Topic: curriculum.TopicEleven, State: progress.StateLocked}, rows[10])
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION
// ══════════════════════════════════════════════════════════════════════════════

func TestLogin(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	user, r, err := f.tracker.Login(ctx, "  ada  ")
	require.NoError(t, err)
	assert.Equal(t, progress.Username("ada"), user)
	assert.Equal(t, progress.Default(), r)

	current, ok := f.tracker.CurrentUser(ctx)
	assert.True(t, ok)
	assert.Equal(t, user, current)
	assert.Equal(t, []shared.EventType{shared.EventUserLoggedIn}, f.events.types())
}

func TestLogin_RejectsShortName(t *testing.T) {
	f := newFixture(t, nil)

	_, _, err := f.tracker.Login(context.Background(), " a ")

	assert.ErrorIs(t, err, shared.ErrInvalidUsername)
	assert.True(t, shared.IsValidation(err))
	_, ok := f.tracker.CurrentUser(context.Background())
	assert.False(t, ok)
}

func TestLogin_ResumesStoredProgress(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.tracker.Complete(ctx, "ada", curriculum.TopicOne)
	f.tracker.Select(ctx, "ada", curriculum.TopicTwo)

	_, r, err := f.tracker.Login(ctx, "ada")

	require.NoError(t, err)
	assert.Equal(t, curriculum.TopicTwo, r.Active)
}

func TestLogout_KeepsProgress(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, _, err := f.tracker.Login(ctx, "ada")
	require.NoError(t, err)
	f.tracker.Complete(ctx, "ada", curriculum.TopicOne)

	require.NoError(t, f.tracker.Logout(ctx))

	_, ok := f.tracker.CurrentUser(ctx)
	assert.False(t, ok)
	assert.True(t, f.tracker.LoadProgress(ctx, "ada").IsUnlocked(curriculum.TopicTwo))
	assert.Contains(t, f.events.types(), shared.EventUserLoggedOut)
}

func TestLogout_WithoutSession(t *testing.T) {
	f := newFixture(t, nil)

	require.NoError(t, f.tracker.Logout(context.Background()))
	assert.Empty(t, f.events.events)
}

func TestSession_StoreFailure(t *testing.T) {
	f := newFixture(t, brokenStore{})
	ctx := context.Background()

	_, _, err := f.tracker.Login(ctx, "ada")
	assert.ErrorIs(t, err, errBroken)

	_, ok := f.tracker.CurrentUser(ctx)
	assert.False(t, ok)
	assert.Contains(t, f.logs.String(), "failed to read session")

	assert.ErrorIs(t, f.tracker.Logout(ctx), errBroken)
}

func TestNew_NilPublisherAndLogger(t *testing.T) {
	repo := progressrepo.New(memory.NewStore())
	tr := New(repo, repo, nil, nil)

	assert.NotPanics(t, func() {
		tr.Complete(context.Background(), "ada", curriculum.TopicOne)
	})
}
