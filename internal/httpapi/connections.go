package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/Ammar793/realestate-backend/internal/transport"
)

// ConnectionsHandler serves the managed connection endpoint the worker pushes
// stream events through. POST /@connections/{id} writes the body to the
// identified WebSocket; an unknown or closed connection answers 410 so the
// pusher stops delivering to it.
type ConnectionsHandler struct {
	registry *transport.Registry
	logger   *zap.Logger
}

// NewConnectionsHandler builds the push endpoint handler.
func NewConnectionsHandler(registry *transport.Registry, logger *zap.Logger) *ConnectionsHandler {
	return &ConnectionsHandler{registry: registry, logger: logger}
}

// RegisterRoutes registers /@connections/ on mux.
func (h *ConnectionsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/@connections/", h.handlePost)
}

func (h *ConnectionsHandler) handlePost(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required", "")
		return
	}
	connectionID := strings.TrimPrefix(r.URL.Path, "/@connections/")
	if connectionID == "" || strings.Contains(connectionID, "/") {
		writeError(w, http.StatusBadRequest, "Connection id required", "")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body", "")
		return
	}

	if err := h.registry.Post(r.Context(), connectionID, payload); err != nil {
		if errors.Is(err, transport.ErrConnectionGone) {
			w.WriteHeader(http.StatusGone)
			return
		}
		h.logger.Warn("Push to connection failed",
			zap.String("connection_id", connectionID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "Failed to deliver payload", "")
		return
	}
	w.WriteHeader(http.StatusOK)
}
