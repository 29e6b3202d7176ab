package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Ammar793/realestate-backend/internal/queue"
	"github.com/Ammar793/realestate-backend/internal/transport"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // secured via proxy in prod
}

// invoke rate limit per connection: sustained 1/s with a small burst
const (
	invokeRate  = rate.Limit(1)
	invokeBurst = 5
)

// Enqueuer queues asynchronous query jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, job queue.Job) (string, error)
}

// WSHandler owns the WebSocket control routes: connect, disconnect, and the
// application-level invoke action. Invoke enqueues the query and
// acknowledges immediately; results stream back through the relay.
type WSHandler struct {
	registry *transport.Registry
	queue    Enqueuer
	stage    string
	logger   *zap.Logger
}

// NewWSHandler builds the WebSocket handler. stage tags queued jobs with the
// deployment stage they entered through.
func NewWSHandler(registry *transport.Registry, q Enqueuer, stage string, logger *zap.Logger) *WSHandler {
	return &WSHandler{registry: registry, queue: q, stage: stage, logger: logger}
}

// RegisterRoutes registers /ws on mux.
func (h *WSHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.handleWS)
}

// inbound is one client frame on the socket.
type inbound struct {
	Action    string `json:"action"`
	Question  string `json:"question"`
	Context   string `json:"context"`
	QueryType string `json:"query_type"`
}

// ack is the immediate response to an accepted or rejected frame.
type ack struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	JobID   string `json:"job_id,omitempty"`
}

func (h *WSHandler) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	connectionID := uuid.New().String()
	h.registry.Register(connectionID, conn)
	defer h.registry.Unregister(connectionID)

	limiter := rate.NewLimiter(invokeRate, invokeBurst)

	conn.SetReadLimit(64 * 1024)
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Minute))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(10 * time.Minute))
	})

	for {
		var msg inbound
		if err := conn.ReadJSON(&msg); err != nil {
			return // disconnect; deferred Unregister evicts state
		}
		_ = conn.SetReadDeadline(time.Now().Add(10 * time.Minute))

		switch msg.Action {
		case "invoke":
			h.handleInvoke(r.Context(), connectionID, r.Host, limiter, msg)
		case "ping":
			h.send(connectionID, ack{Type: "pong"})
		default:
			h.logger.Warn("Unrecognized WebSocket action",
				zap.String("connection_id", connectionID),
				zap.String("action", msg.Action),
			)
			h.send(connectionID, ack{Type: "error", Message: "Unrecognized action"})
		}
	}
}

func (h *WSHandler) handleInvoke(ctx context.Context, connectionID, domain string, limiter *rate.Limiter, msg inbound) {
	if msg.Question == "" {
		h.send(connectionID, ack{Type: "error", Message: "Question is required"})
		return
	}
	if !limiter.Allow() {
		h.send(connectionID, ack{Type: "error", Message: "Too many requests"})
		return
	}

	queryType := msg.QueryType
	if queryType == "" {
		queryType = "general"
	}

	jobID, err := h.queue.Enqueue(ctx, queue.Job{
		ConnectionID: connectionID,
		Domain:       domain,
		Stage:        h.stage,
		Question:     msg.Question,
		Context:      msg.Context,
		QueryType:    queryType,
		Timestamp:    time.Now().UnixMilli(),
	})
	if err != nil {
		h.logger.Error("Failed to enqueue query",
			zap.String("connection_id", connectionID),
			zap.Error(err),
		)
		h.send(connectionID, ack{Type: "error", Message: "Failed to queue query"})
		return
	}

	h.send(connectionID, ack{Type: "status", Message: "Query queued for processing", JobID: jobID})
}

// send routes acks through the registry so all writes to one socket share
// the same writer lock as relayed events.
func (h *WSHandler) send(connectionID string, a ack) {
	payload, err := json.Marshal(a)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.registry.Post(ctx, connectionID, payload); err != nil {
		h.logger.Warn("Failed to write ack",
			zap.String("connection_id", connectionID),
			zap.Error(err),
		)
	}
}
