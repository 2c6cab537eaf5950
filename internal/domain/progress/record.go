// Package progress models a learner's position in the curriculum: which topics
// are unlocked and which one is active. Transitions are pure functions on
// Record values; loading and persisting belong to the Repository.
package progress

import (
	"math/bits"

	"github.com/copilot-mastery/mastery/internal/domain/curriculum"
)

// ══════════════════════════════════════════════════════════════════════════════
// TOPIC SET
// ══════════════════════════════════════════════════════════════════════════════

// TopicSet is an unordered set of topics stored as a bitmask (bit n = topic n).
// The zero value is the empty set.
type TopicSet uint32

// NewTopicSet builds a set from the given topics. Invalid topics are ignored.
func NewTopicSet(topics ...curriculum.Topic) TopicSet {
	var s TopicSet
	for _, t := range topics {
		s = s.With(t)
	}
	return s
}

// Has reports whether t is a member.
func (s TopicSet) Has(t curriculum.Topic) bool {
	if !t.Valid() {
		return false
	}
	return s&(1<<t) != 0
}

// With returns s plus t. Invalid topics leave s unchanged.
func (s TopicSet) With(t curriculum.Topic) TopicSet {
	if !t.Valid() {
		return s
	}
	return s | 1<<t
}

// Len returns the number of members.
func (s TopicSet) Len() int {
	return bits.OnesCount32(uint32(s))
}

// Topics returns the members in curriculum order.
func (s TopicSet) Topics() []curriculum.Topic {
	out := make([]curriculum.Topic, 0, s.Len())
	for _, t := range curriculum.All() {
		if s.Has(t) {
			out = append(out, t)
		}
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORD
// ══════════════════════════════════════════════════════════════════════════════

// State is the per-topic view of a record.
type State string

const (
	StateLocked   State = "locked"
	StateUnlocked State = "unlocked"
	StateActive   State = "active"
)

// Record is the persisted unlocked-set and active-topic pair for one user.
// Active is expected to be unlocked but this is not enforced.
type Record struct {
	Unlocked TopicSet
	Active   curriculum.Topic
}

// Default returns the record every new user starts with: only the first
// topic unlocked and active.
func Default() Record {
	return Record{
		Unlocked: NewTopicSet(curriculum.First),
		Active:   curriculum.First,
	}
}

// Normalize restores the invariants a decoded record may have lost: the first
// topic is always unlocked and an invalid active topic falls back to the first.
func (r Record) Normalize() Record {
	r.Unlocked = r.Unlocked.With(curriculum.First)
	if !r.Active.Valid() {
		r.Active = curriculum.First
	}
	return r
}

// IsUnlocked reports whether t can be selected.
func (r Record) IsUnlocked(t curriculum.Topic) bool {
	return r.Unlocked.Has(t)
}

// Select makes t the active topic if it is unlocked. Locked or invalid
// topics leave the record unchanged.
func (r Record) Select(t curriculum.Topic) Record {
	if !r.Unlocked.Has(t) {
		return r
	}
	r.Active = t
	return r
}

// Complete unlocks the successor of t. The active topic is not changed.
// Completing the last topic, an invalid topic, or a topic whose successor is
// already unlocked is a no-op, so Complete is idempotent.
func (r Record) Complete(t curriculum.Topic) Record {
	if n, ok := r.Unlocks(t); ok {
		r.Unlocked = r.Unlocked.With(n)
	}
	return r
}

// Unlocks returns the topic that completing t would newly unlock.
func (r Record) Unlocks(t curriculum.Topic) (curriculum.Topic, bool) {
	n, ok := t.Next()
	if !ok || r.Unlocked.Has(n) {
		return 0, false
	}
	return n, true
}

// State returns the per-topic state used by listings.
func (r Record) State(t curriculum.Topic) State {
	switch {
	case !r.Unlocked.Has(t):
		return StateLocked
	case r.Active == t:
		return StateActive
	default:
		return StateUnlocked
	}
}

// IsFinished reports whether every topic is unlocked.
func (r Record) IsFinished() bool {
	return r.Unlocked.Len() == curriculum.Count
}
