package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// dialRegistered spins up a server that registers every accepted socket
// under the given id and returns the client side of the connection.
func dialRegistered(t *testing.T, r *Registry, connectionID string) *websocket.Conn {
	t.Helper()
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := up.Upgrade(w, req, nil)
		require.NoError(t, err)
		r.Register(connectionID, conn)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	// Wait for the server side to land in the registry.
	require.Eventually(t, func() bool { return r.Len() == 1 }, time.Second, 10*time.Millisecond)
	return client
}

func TestRegistryPostDeliversToClient(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	client := dialRegistered(t, r, "conn-1")

	require.NoError(t, r.Post(context.Background(), "conn-1", []byte(`{"type":"status"}`)))

	_ = client.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"status"}`, string(msg))
}

func TestRegistryPostUnknownConnection(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	err := r.Post(context.Background(), "ghost", []byte("{}"))
	assert.ErrorIs(t, err, ErrConnectionGone)
}

func TestRegistryUnregisterFiresEvictionHooks(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	evicted := make(chan string, 1)
	r.OnEvict(func(id string) { evicted <- id })

	dialRegistered(t, r, "conn-1")
	r.Unregister("conn-1")

	select {
	case id := <-evicted:
		assert.Equal(t, "conn-1", id)
	case <-time.After(time.Second):
		t.Fatal("eviction hook did not fire")
	}
	assert.Zero(t, r.Len())

	// Double unregister is safe and does not re-fire hooks.
	r.Unregister("conn-1")
	select {
	case <-evicted:
		t.Fatal("hook fired for already-removed connection")
	default:
	}
}

func TestRegistryPostAfterClientCloseEvicts(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	client := dialRegistered(t, r, "conn-1")
	client.Close()

	// The write may not fail until the close propagates; keep posting
	// until the registry notices.
	require.Eventually(t, func() bool {
		err := r.Post(context.Background(), "conn-1", []byte("{}"))
		return err != nil
	}, 2*time.Second, 50*time.Millisecond)

	assert.Zero(t, r.Len())
	assert.ErrorIs(t, r.Post(context.Background(), "conn-1", []byte("{}")), ErrConnectionGone)
}
