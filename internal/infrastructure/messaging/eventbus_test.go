package messaging

import (
	"bytes"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/copilot-mastery/mastery/internal/domain/curriculum"
	"github.com/copilot-mastery/mastery/internal/domain/progress"
	"github.com/copilot-mastery/mastery/internal/domain/shared"
	"github.com/copilot-mastery/mastery/pkg/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPublish_Sync(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())
	defer bus.Close()

	var got []shared.Event
	require.NoError(t, bus.Subscribe(shared.EventTopicUnlocked, func(e shared.Event) error {
		got = append(got, e)
		return nil
	}))

	require.NoError(t, bus.Publish(progress.NewTopicUnlockedEvent("ada", curriculum.TopicTwo, curriculum.TopicOne)))
	require.NoError(t, bus.Publish(progress.NewTopicSelectedEvent("ada", curriculum.TopicTwo, curriculum.TopicOne)))

	require.Len(t, got, 1)
	assert.Equal(t, "ada", got[0].AggregateID())
	assert.Equal(t, "2", got[0].Payload()["topic"])
	assert.Equal(t, 1, bus.Metrics().Published(shared.EventTopicUnlocked))
}

func TestPublish_HandlerErrorCounted(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())
	defer bus.Close()

	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		return errors.New("handler failed")
	}))

	assert.NoError(t, bus.Publish(progress.NewTopicCompletedEvent("ada", curriculum.TopicOne)))
	assert.Equal(t, 1, bus.Metrics().Failed(shared.EventTopicCompleted))
}

func TestPublish_AsyncDrainsOnClose(t *testing.T) {
	cfg := DefaultInMemoryEventBusConfig()
	cfg.AsyncMode = true
	cfg.WorkerPoolSize = 2
	bus := NewInMemoryEventBus(cfg)

	var handled atomic.Int32
	var wg sync.WaitGroup
	wg.Add(10)
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		defer wg.Done()
		handled.Add(1)
		return nil
	}))

	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(progress.NewTopicCompletedEvent("ada", curriculum.TopicOne)))
	}
	wg.Wait()
	require.NoError(t, bus.Close())

	assert.Equal(t, int32(10), handled.Load())
}

func TestClosedBus(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close(), "close is idempotent")

	assert.ErrorIs(t, bus.Publish(progress.NewLoggedInEvent("ada")), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventUserLoggedIn, func(shared.Event) error { return nil }), ErrEventBusClosed)
}

func TestPublish_RejectsNil(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())
	defer bus.Close()

	assert.Error(t, bus.Publish(nil))
	assert.Error(t, bus.Subscribe(shared.EventTopicSelected, nil))
}

func TestLogHandler(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Options{Output: &buf, Format: "json"})

	require.NoError(t, LogHandler(log)(progress.NewTopicSelectedEvent("grace", curriculum.TopicThree, curriculum.TopicOne)))

	out := buf.String()
	assert.Contains(t, out, `"event_type":"progress.topic_selected"`)
	assert.Contains(t, out, `"user":"grace"`)
	assert.Contains(t, out, `"previous":"1"`)
}

func TestPublish_RecoversPanics(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())
	defer bus.Close()

	var after bool
	require.NoError(t, bus.Subscribe(shared.EventTopicCompleted, func(shared.Event) error {
		panic("boom")
	}))
	require.NoError(t, bus.Subscribe(shared.EventTopicCompleted, func(shared.Event) error {
		after = true
		return nil
	}))

	assert.NotPanics(t, func() {
		_ = bus.Publish(progress.NewTopicCompletedEvent("ada", curriculum.TopicOne))
	})
	assert.True(t, after, "later handlers still run")
	assert.Equal(t, 1, bus.Metrics().Failed(shared.EventTopicCompleted))
}

func TestChain_Order(t *testing.T) {
	var calls []string
	mw := func(name string) Middleware {
		return func(next shared.EventHandler) shared.EventHandler {
			return func(e shared.Event) error {
				calls = append(calls, name)
				return next(e)
			}
		}
	}

	h := Chain(func(shared.Event) error {
		calls = append(calls, "handler")
		return nil
	}, mw("outer"), mw("inner"))

	require.NoError(t, h(progress.NewLoggedOutEvent("ada")))
	assert.Equal(t, []string{"outer", "inner", "handler"}, calls)
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Options{Output: &buf, Level: logger.LevelDebug, Format: "json"})

	cfg := DefaultInMemoryEventBusConfig()
	cfg.Middlewares = []Middleware{LoggingMiddleware(log)}
	bus := NewInMemoryEventBus(cfg)
	defer bus.Close()

	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { return nil }))
	require.NoError(t, bus.Publish(progress.NewLoggedInEvent("ada")))

	assert.Contains(t, buf.String(), `"message":"handler completed"`)
	assert.Contains(t, buf.String(), `"ok":true`)
}
