package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ammar793/realestate-backend/internal/transport"
)

// registeredClient opens a WebSocket registered under a known id and returns
// the client side plus a mux serving the push endpoint over the same
// registry.
func registeredClient(t *testing.T) (*websocket.Conn, *http.ServeMux) {
	t.Helper()
	registry := transport.NewRegistry(zap.NewNop())

	up := websocket.Upgrader{}
	wsSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		require.NoError(t, err)
		registry.Register("conn-1", conn)
	}))
	t.Cleanup(wsSrv.Close)

	url := "ws" + strings.TrimPrefix(wsSrv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	require.Eventually(t, func() bool { return registry.Len() == 1 }, time.Second, 10*time.Millisecond)

	mux := http.NewServeMux()
	NewConnectionsHandler(registry, zap.NewNop()).RegisterRoutes(mux)
	return client, mux
}

func TestConnectionsPostDeliversToSocket(t *testing.T) {
	client, mux := registeredClient(t)

	req := httptest.NewRequest(http.MethodPost, "/@connections/conn-1", strings.NewReader(`{"type":"text_chunk"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	_ = client.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"text_chunk"}`, string(msg))
}

func TestConnectionsPostUnknownConnectionReturnsGone(t *testing.T) {
	_, mux := registeredClient(t)

	req := httptest.NewRequest(http.MethodPost, "/@connections/ghost", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestConnectionsPostRequiresID(t *testing.T) {
	_, mux := registeredClient(t)

	req := httptest.NewRequest(http.MethodPost, "/@connections/", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConnectionsPostRejectsGet(t *testing.T) {
	_, mux := registeredClient(t)

	req := httptest.NewRequest(http.MethodGet, "/@connections/conn-1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
