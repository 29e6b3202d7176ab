package session

import (
	"errors"
	"time"
)

var (
	// ErrSessionNotFound is returned when no session exists for a connection.
	ErrSessionNotFound = errors.New("session not found")
)

// Session is the per-connection agent state: which client it belongs to and
// the conversation so far. One session exists per live connection and is
// torn down when the connection terminates.
type Session struct {
	ConnectionID string         `json:"connection_id"`
	Domain       string         `json:"domain,omitempty"`
	Stage        string         `json:"stage,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	History      []Message      `json:"history"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Message is one conversation turn in the session history.
type Message struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Agent     string    `json:"agent,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AddMessage appends a turn, capping history length.
func (s *Session) AddMessage(msg Message) {
	const maxHistory = 100
	s.History = append(s.History, msg)
	if len(s.History) > maxHistory {
		s.History = s.History[len(s.History)-maxHistory:]
	}
	s.UpdatedAt = time.Now()
}
