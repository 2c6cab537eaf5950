package curriculum

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copilot-mastery/mastery/internal/domain/shared"
)

func TestAll_Ordered(t *testing.T) {
	topics := All()

	require.Len(t, topics, Count)
	assert.Equal(t, First, topics[0])
	assert.Equal(t, TopicEleven, topics[len(topics)-1])
	for i := 1; i < len(topics); i++ {
		assert.Less(t, int(topics[i-1]), int(topics[i]))
	}
}

func TestNext_Chain(t *testing.T) {
	for _, topic := range All() {
		n, ok := topic.Next()
		if topic.IsLast() {
			assert.False(t, ok, "last topic has no successor")
			continue
		}
		require.True(t, ok, "topic %s", topic)
		assert.Equal(t, topic+1, n)
	}
}

func TestNext_InvalidTopic(t *testing.T) {
	_, ok := Topic(0).Next()
	assert.False(t, ok)

	_, ok = Topic(12).Next()
	assert.False(t, ok)
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Topic
		wantErr bool
	}{
		{in: "1", want: TopicOne},
		{in: "6", want: TopicSix},
		{in: "11", want: TopicEleven},
		{in: " 7 ", want: TopicSeven},
		{in: "0", wantErr: true},
		{in: "12", wantErr: true},
		{in: "-3", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, shared.ErrInvalidID)
				assert.ErrorIs(t, err, shared.ErrUnknownTopic)
				assert.True(t, shared.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTextEncoding(t *testing.T) {
	b, err := TopicTen.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "10", string(b))

	var decoded Topic
	require.NoError(t, decoded.UnmarshalText([]byte("10")))
	assert.Equal(t, TopicTen, decoded)

	_, err = Topic(0).MarshalText()
	assert.Error(t, err)
}
