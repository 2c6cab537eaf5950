// Package messaging implements an in-memory event bus for progress and session
// events. Handlers run synchronously by default or on a bounded worker pool.
package messaging

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/copilot-mastery/mastery/internal/domain/shared"
	"github.com/copilot-mastery/mastery/pkg/logger"
)

// ErrEventBusClosed is returned by Subscribe and Publish after Close.
var ErrEventBusClosed = errors.New("event bus is closed")

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// InMemoryEventBus is a process-local implementation of shared.EventPublisher.
type InMemoryEventBus struct {
	mu          sync.RWMutex
	handlers    map[shared.EventType][]shared.EventHandler
	allHandlers []shared.EventHandler
	asyncMode   bool
	workerPool  chan struct{}
	logger      *logger.Logger
	metrics     *EventBusMetrics
	middlewares []Middleware
	closed      bool
	closeCh     chan struct{}
	wg          sync.WaitGroup
}

// InMemoryEventBusConfig contains configuration for InMemoryEventBus.
type InMemoryEventBusConfig struct {
	// AsyncMode enables asynchronous event processing
	AsyncMode bool

	// WorkerPoolSize is the number of concurrent workers for async processing
	WorkerPoolSize int

	// Logger for structured logging
	Logger *logger.Logger

	// Middlewares wrap every subscribed handler, first one outermost.
	// RecoveryMiddleware is always applied outside of these.
	Middlewares []Middleware
}

// DefaultInMemoryEventBusConfig returns sensible defaults. The CLI handles one
// command per process, so delivery is synchronous.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{
		AsyncMode:      false,
		WorkerPoolSize: 4,
	}
}

// NewInMemoryEventBus creates a new in-memory event bus.
func NewInMemoryEventBus(config InMemoryEventBusConfig) *InMemoryEventBus {
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 4
	}

	log := config.Logger.With(logger.Component("eventbus"))
	middlewares := append([]Middleware{RecoveryMiddleware(log)}, config.Middlewares...)

	return &InMemoryEventBus{
		handlers:    make(map[shared.EventType][]shared.EventHandler),
		allHandlers: make([]shared.EventHandler, 0),
		asyncMode:   config.AsyncMode,
		workerPool:  make(chan struct{}, config.WorkerPoolSize),
		logger:      log,
		metrics:     NewEventBusMetrics(),
		middlewares: middlewares,
		closeCh:     make(chan struct{}),
	}
}

// Subscribe registers a handler for a specific event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}

	b.handlers[eventType] = append(b.handlers[eventType], Chain(handler, b.middlewares...))
	return nil
}

// SubscribeAll registers a handler for all events.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}

	b.allHandlers = append(b.allHandlers, Chain(handler, b.middlewares...))
	return nil
}

// Publish sends an event to all subscribed handlers. Handler errors are
// logged and counted, never returned.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}

	handlers := make([]shared.EventHandler, 0, len(b.handlers[event.EventType()])+len(b.allHandlers))
	handlers = append(handlers, b.handlers[event.EventType()]...)
	handlers = append(handlers, b.allHandlers...)

	// Registered under the read lock so Close cannot start waiting before we Add.
	if b.asyncMode {
		b.wg.Add(len(handlers))
	}
	b.mu.RUnlock()

	b.metrics.RecordPublish(event.EventType())
	deliveryID := uuid.NewString()

	for _, handler := range handlers {
		if b.asyncMode {
			go b.executeAsync(deliveryID, event, handler)
			continue
		}
		b.execute(deliveryID, event, handler)
	}

	return nil
}

// executeAsync runs a handler once a worker slot is free.
func (b *InMemoryEventBus) executeAsync(deliveryID string, event shared.Event, handler shared.EventHandler) {
	defer b.wg.Done()

	select {
	case b.workerPool <- struct{}{}:
		defer func() { <-b.workerPool }()
	case <-b.closeCh:
		b.logger.Warn("dropped event on close",
			logger.String("event_type", string(event.EventType())),
			logger.String("delivery_id", deliveryID),
		)
		return
	}

	b.execute(deliveryID, event, handler)
}

func (b *InMemoryEventBus) execute(deliveryID string, event shared.Event, handler shared.EventHandler) {
	start := time.Now()
	err := handler(event)
	duration := time.Since(start)

	b.metrics.RecordHandlerExecution(event.EventType(), err == nil)

	if err != nil {
		b.logger.Error("handler error",
			logger.String("event_type", string(event.EventType())),
			logger.String("delivery_id", deliveryID),
			logger.Latency(duration),
			logger.Err(err),
		)
	}
}

// Close stops accepting events and waits for in-flight handlers.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.closeCh)
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

// Metrics returns the bus counters.
func (b *InMemoryEventBus) Metrics() *EventBusMetrics {
	return b.metrics
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// EventBusMetrics counts published events and handler outcomes per type.
type EventBusMetrics struct {
	mu        sync.Mutex
	published map[shared.EventType]int
	handled   map[shared.EventType]int
	failed    map[shared.EventType]int
}

// NewEventBusMetrics creates empty counters.
func NewEventBusMetrics() *EventBusMetrics {
	return &EventBusMetrics{
		published: make(map[shared.EventType]int),
		handled:   make(map[shared.EventType]int),
		failed:    make(map[shared.EventType]int),
	}
}

// RecordPublish counts one published event.
func (m *EventBusMetrics) RecordPublish(eventType shared.EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published[eventType]++
}

// RecordHandlerExecution counts one handler run.
func (m *EventBusMetrics) RecordHandlerExecution(eventType shared.EventType, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ok {
		m.handled[eventType]++
	} else {
		m.failed[eventType]++
	}
}

// Published returns how many events of eventType were published.
func (m *EventBusMetrics) Published(eventType shared.EventType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.published[eventType]
}

// Failed returns how many handler runs for eventType returned an error.
func (m *EventBusMetrics) Failed(eventType shared.EventType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failed[eventType]
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// LogHandler returns a handler that writes every event to log.
func LogHandler(log *logger.Logger) shared.EventHandler {
	return func(event shared.Event) error {
		fields := []logger.Field{
			logger.String("event_type", string(event.EventType())),
			logger.Username(event.AggregateID()),
		}
		for k, v := range event.Payload() {
			fields = append(fields, logger.Any(k, v))
		}
		log.Info("event", fields...)
		return nil
	}
}
