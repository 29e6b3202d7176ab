// Package session keys agent conversation state by connection identity.
// State lives in Redis with a local write-through cache and is evicted when
// the connection terminates, so a long-lived process never accumulates
// sessions for dead clients.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Ammar793/realestate-backend/internal/metrics"
)

const defaultTTL = 2 * time.Hour

// Manager handles per-connection session state.
type Manager struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration

	mu    sync.RWMutex
	local map[string]*Session
}

// NewManager creates a session manager over an existing Redis client.
func NewManager(client *redis.Client, logger *zap.Logger) *Manager {
	return &Manager{
		client: client,
		logger: logger,
		ttl:    defaultTTL,
		local:  make(map[string]*Session),
	}
}

// GetOrCreate returns the session for a connection, creating it on first
// use.
func (m *Manager) GetOrCreate(ctx context.Context, connectionID string) (*Session, error) {
	if s, err := m.Get(ctx, connectionID); err == nil {
		return s, nil
	}

	s := &Session{
		ConnectionID: connectionID,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
		History:      make([]Message, 0),
	}
	if err := m.save(ctx, s); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.local[connectionID] = s
	metrics.SessionsActive.Set(float64(len(m.local)))
	m.mu.Unlock()

	m.logger.Info("Created agent session", zap.String("connection_id", connectionID))
	return s, nil
}

// Get returns the session for a connection or ErrSessionNotFound.
func (m *Manager) Get(ctx context.Context, connectionID string) (*Session, error) {
	m.mu.RLock()
	if s, ok := m.local[connectionID]; ok {
		m.mu.RUnlock()
		return s, nil
	}
	m.mu.RUnlock()

	data, err := m.client.Get(ctx, m.key(connectionID)).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	} else if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}

	m.mu.Lock()
	m.local[connectionID] = &s
	metrics.SessionsActive.Set(float64(len(m.local)))
	m.mu.Unlock()
	return &s, nil
}

// AddMessage appends a conversation turn and persists the session.
func (m *Manager) AddMessage(ctx context.Context, connectionID string, msg Message) error {
	s, err := m.GetOrCreate(ctx, connectionID)
	if err != nil {
		return err
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	s.AddMessage(msg)
	return m.save(ctx, s)
}

// Evict tears down the session for a terminated connection. Called from the
// connection registry's eviction hook; safe when no session exists.
func (m *Manager) Evict(ctx context.Context, connectionID string) {
	m.mu.Lock()
	_, had := m.local[connectionID]
	delete(m.local, connectionID)
	metrics.SessionsActive.Set(float64(len(m.local)))
	m.mu.Unlock()

	if err := m.client.Del(ctx, m.key(connectionID)).Err(); err != nil {
		m.logger.Warn("Failed to delete session from store",
			zap.String("connection_id", connectionID),
			zap.Error(err),
		)
	}
	if had {
		metrics.SessionsEvicted.Inc()
		m.logger.Info("Evicted agent session", zap.String("connection_id", connectionID))
	}
}

func (m *Manager) key(connectionID string) string {
	return "session:conn:" + connectionID
}

func (m *Manager) save(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := m.client.Set(ctx, m.key(s.ConnectionID), data, m.ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}
