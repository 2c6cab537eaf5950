package progress

import (
	"github.com/copilot-mastery/mastery/internal/domain/curriculum"
	"github.com/copilot-mastery/mastery/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS EVENTS
// ══════════════════════════════════════════════════════════════════════════════

// TopicCompletedEvent is emitted whenever a topic screen reports completion,
// including repeated completions that unlock nothing.
type TopicCompletedEvent struct {
	shared.BaseEvent
	Topic curriculum.Topic `json:"topic"`
}

// Payload implements shared.Event.
func (e TopicCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"topic": e.Topic.String(),
	}
}

// NewTopicCompletedEvent creates a new TopicCompletedEvent.
func NewTopicCompletedEvent(user Username, topic curriculum.Topic) TopicCompletedEvent {
	return TopicCompletedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventTopicCompleted, user.String()),
		Topic:     topic,
	}
}

// TopicUnlockedEvent is emitted when a completion unlocks a new topic.
type TopicUnlockedEvent struct {
	shared.BaseEvent
	Topic curriculum.Topic `json:"topic"`
	By    curriculum.Topic `json:"by"`
}

// Payload implements shared.Event.
func (e TopicUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"topic": e.Topic.String(),
		"by":    e.By.String(),
	}
}

// NewTopicUnlockedEvent creates a new TopicUnlockedEvent.
func NewTopicUnlockedEvent(user Username, topic, by curriculum.Topic) TopicUnlockedEvent {
	return TopicUnlockedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventTopicUnlocked, user.String()),
		Topic:     topic,
		By:        by,
	}
}

// TopicSelectedEvent is emitted when the active topic changes.
type TopicSelectedEvent struct {
	shared.BaseEvent
	Topic    curriculum.Topic `json:"topic"`
	Previous curriculum.Topic `json:"previous"`
}

// Payload implements shared.Event.
func (e TopicSelectedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"topic":    e.Topic.String(),
		"previous": e.Previous.String(),
	}
}

// NewTopicSelectedEvent creates a new TopicSelectedEvent.
func NewTopicSelectedEvent(user Username, topic, previous curriculum.Topic) TopicSelectedEvent {
	return TopicSelectedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventTopicSelected, user.String()),
		Topic:     topic,
		Previous:  previous,
	}
}

// CurriculumFinishedEvent is emitted once, when the last topic gets unlocked.
type CurriculumFinishedEvent struct {
	shared.BaseEvent
}

// Payload implements shared.Event.
func (e CurriculumFinishedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"topics": curriculum.Count,
	}
}

// NewCurriculumFinishedEvent creates a new CurriculumFinishedEvent.
func NewCurriculumFinishedEvent(user Username) CurriculumFinishedEvent {
	return CurriculumFinishedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventCurriculumDone, user.String()),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION EVENTS
// ══════════════════════════════════════════════════════════════════════════════

// SessionEvent is emitted on login and logout.
type SessionEvent struct {
	shared.BaseEvent
}

// Payload implements shared.Event.
func (e SessionEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user": e.AggregateId,
	}
}

// NewLoggedInEvent creates a login SessionEvent.
func NewLoggedInEvent(user Username) SessionEvent {
	return SessionEvent{BaseEvent: shared.NewBaseEvent(shared.EventUserLoggedIn, user.String())}
}

// NewLoggedOutEvent creates a logout SessionEvent.
func NewLoggedOutEvent(user Username) SessionEvent {
	return SessionEvent{BaseEvent: shared.NewBaseEvent(shared.EventUserLoggedOut, user.String())}
}
