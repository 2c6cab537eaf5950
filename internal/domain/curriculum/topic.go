// Package curriculum defines the fixed, ordered sequence of topics a learner
// works through. Topic identity is a typed ordinal; the decimal string form
// ("1".."11") exists only at the persistence and CLI boundaries.
package curriculum

import (
	"strconv"
	"strings"

	"github.com/copilot-mastery/mastery/internal/domain/shared"
)

// Topic is one curriculum unit. The zero value is not a valid topic.
type Topic uint8

// Curriculum topics in learning order.
const (
	TopicOne Topic = iota + 1
	TopicTwo
	TopicThree
	TopicFour
	TopicFive
	TopicSix
	TopicSeven
	TopicEight
	TopicNine
	TopicTen
	TopicEleven
)

// First is where every learner starts; it is always unlocked.
const First = TopicOne

// Count is the number of defined topics and therefore the unlock ceiling.
const Count = int(TopicEleven)

// next is the successor table. The last topic maps to nothing.
var next = map[Topic]Topic{
	TopicOne:   TopicTwo,
	TopicTwo:   TopicThree,
	TopicThree: TopicFour,
	TopicFour:  TopicFive,
	TopicFive:  TopicSix,
	TopicSix:   TopicSeven,
	TopicSeven: TopicEight,
	TopicEight: TopicNine,
	TopicNine:  TopicTen,
	TopicTen:   TopicEleven,
}

// All returns every topic in curriculum order.
func All() []Topic {
	topics := make([]Topic, 0, Count)
	for t := First; t.Valid(); t++ {
		topics = append(topics, t)
	}
	return topics
}

// Valid reports whether t is a defined topic.
func (t Topic) Valid() bool {
	return t >= TopicOne && t <= TopicEleven
}

// Next returns the topic unlocked by completing t.
// ok is false for the last topic and for invalid topics.
func (t Topic) Next() (Topic, bool) {
	n, ok := next[t]
	return n, ok
}

// IsLast reports whether t is the final topic.
func (t Topic) IsLast() bool {
	return t == TopicEleven
}

// String returns the decimal id used in storage ("1".."11").
func (t Topic) String() string {
	return strconv.Itoa(int(t))
}

// MarshalText encodes the topic as its decimal id.
func (t Topic) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, shared.ErrUnknownTopic
	}
	return []byte(t.String()), nil
}

// UnmarshalText decodes a decimal id.
func (t *Topic) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Parse converts a decimal id into a Topic. Out-of-range and malformed
// ids return ErrUnknownTopic.
func Parse(s string) (Topic, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, shared.WrapError("curriculum", "ParseTopic", shared.ErrUnknownTopic, "unknown topic "+strconv.Quote(s), err)
	}
	t := Topic(n)
	if n < 1 || n > Count || !t.Valid() {
		return 0, shared.WrapError("curriculum", "ParseTopic", shared.ErrUnknownTopic, "unknown topic "+strconv.Quote(s), shared.ErrValueOutOfRange)
	}
	return t, nil
}
