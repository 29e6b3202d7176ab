// Package streaming defines the typed events that make up one live agent
// response and the stream abstraction the relay consumes.
package streaming

import (
	"encoding/json"
	"time"
)

// EventType tags one unit of a streamed response.
type EventType string

const (
	EventStatus     EventType = "status"
	EventTextChunk  EventType = "text_chunk"
	EventToolUse    EventType = "tool_use"
	EventReasoning  EventType = "reasoning"
	EventCycleStart EventType = "cycle_start"
	EventMessage    EventType = "message"
	EventCitations  EventType = "citations"
	EventResult     EventType = "result"
	EventError      EventType = "error"
)

// Terminal reports whether this event ends a response lifecycle. Streaming
// clients always receive exactly one terminal event per response.
func (t EventType) Terminal() bool {
	return t == EventResult || t == EventError
}

// Event is one unit of a live agent response, consumed exactly once by the
// relay in production order.
type Event struct {
	Type      EventType `json:"type"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent stamps an event with the current time.
func NewEvent(t EventType, payload any) Event {
	return Event{Type: t, Payload: payload, Timestamp: time.Now()}
}

// Marshal returns the wire JSON for the event.
func (e Event) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}
