package transport

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Ammar793/realestate-backend/internal/metrics"
)

const writeTimeout = 10 * time.Second

// Registry tracks live WebSocket connections owned by this process and
// implements Pusher against them. Entries are removed on disconnect or on a
// failed write, so the registry never grows past the set of live sockets.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*entry
	logger *zap.Logger

	// onEvict hooks tear down per-connection state elsewhere (agent
	// sessions) when a connection is removed.
	onEvict []func(connectionID string)
}

type entry struct {
	conn *websocket.Conn
	// gorilla allows one concurrent writer per connection
	writeMu sync.Mutex
}

// NewRegistry creates an empty connection registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		conns:  make(map[string]*entry),
		logger: logger,
	}
}

// OnEvict registers a hook invoked whenever a connection is removed.
func (r *Registry) OnEvict(fn func(connectionID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEvict = append(r.onEvict, fn)
}

// Register adds a connection under the given id.
func (r *Registry) Register(connectionID string, conn *websocket.Conn) {
	r.mu.Lock()
	r.conns[connectionID] = &entry{conn: conn}
	metrics.ConnectionsActive.Set(float64(len(r.conns)))
	r.mu.Unlock()

	r.logger.Info("Client connected", zap.String("connection_id", connectionID))
}

// Unregister removes a connection and fires eviction hooks.
func (r *Registry) Unregister(connectionID string) {
	r.mu.Lock()
	e, ok := r.conns[connectionID]
	if ok {
		delete(r.conns, connectionID)
	}
	metrics.ConnectionsActive.Set(float64(len(r.conns)))
	hooks := make([]func(string), len(r.onEvict))
	copy(hooks, r.onEvict)
	r.mu.Unlock()

	if !ok {
		return
	}
	_ = e.conn.Close()
	for _, fn := range hooks {
		fn(connectionID)
	}
	r.logger.Info("Client disconnected", zap.String("connection_id", connectionID))
}

// Post writes one payload to the identified connection. Unknown or dead
// connections return ErrConnectionGone.
func (r *Registry) Post(ctx context.Context, connectionID string, payload []byte) error {
	r.mu.RLock()
	e, ok := r.conns[connectionID]
	r.mu.RUnlock()
	if !ok {
		return ErrConnectionGone
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = e.conn.SetWriteDeadline(deadline)

	if err := e.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		// A failed write means the socket is unusable; evict it.
		r.Unregister(connectionID)
		return ErrConnectionGone
	}
	return nil
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
