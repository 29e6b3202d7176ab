package streaming

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerminal(t *testing.T) {
	assert.True(t, EventResult.Terminal())
	assert.True(t, EventError.Terminal())

	for _, et := range []EventType{
		EventStatus, EventTextChunk, EventToolUse,
		EventReasoning, EventCycleStart, EventMessage, EventCitations,
	} {
		assert.False(t, et.Terminal(), "%s must not be terminal", et)
	}
}

func TestMarshal(t *testing.T) {
	ev := NewEvent(EventTextChunk, map[string]string{"text": "hello"})
	raw := ev.Marshal()

	var decoded struct {
		Type    string            `json:"type"`
		Payload map[string]string `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "text_chunk", decoded.Type)
	assert.Equal(t, "hello", decoded.Payload["text"])
	assert.False(t, ev.Timestamp.IsZero())
}
