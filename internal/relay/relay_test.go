package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ammar793/realestate-backend/internal/streaming"
	"github.com/Ammar793/realestate-backend/internal/transport"
)

// fakePusher records delivered payloads and can be scripted to fail.
type fakePusher struct {
	mu        sync.Mutex
	delivered [][]byte
	failAfter int // fail every Post once this many have succeeded; -1 disables
	failWith  error
}

func newFakePusher() *fakePusher {
	return &fakePusher{failAfter: -1}
}

func (p *fakePusher) Post(_ context.Context, _ string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAfter >= 0 && len(p.delivered) >= p.failAfter {
		return p.failWith
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	p.delivered = append(p.delivered, cp)
	return nil
}

func (p *fakePusher) types(t *testing.T) []string {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.delivered))
	for _, raw := range p.delivered {
		var ev struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(raw, &ev))
		out = append(out, ev.Type)
	}
	return out
}

func sendEvents(evs ...streaming.Event) <-chan streaming.Event {
	ch := make(chan streaming.Event, len(evs))
	for _, ev := range evs {
		ch <- ev
	}
	close(ch)
	return ch
}

func TestRunDeliversInOrderUntilTerminal(t *testing.T) {
	pusher := newFakePusher()
	r := New(pusher, time.Minute, zap.NewNop())

	err := r.Run(context.Background(), "conn-1", sendEvents(
		streaming.NewEvent(streaming.EventStatus, map[string]string{"status": "processing"}),
		streaming.NewEvent(streaming.EventTextChunk, map[string]string{"text": "hello"}),
		streaming.NewEvent(streaming.EventCitations, nil),
		streaming.NewEvent(streaming.EventResult, map[string]string{"content": "hello"}),
	))
	require.NoError(t, err)

	assert.Equal(t, []string{"status", "text_chunk", "citations", "result"}, pusher.types(t))
}

func TestRunStopsConsumingAfterTerminal(t *testing.T) {
	pusher := newFakePusher()
	r := New(pusher, time.Minute, zap.NewNop())

	// The channel never closes: Run must stop at the terminal event rather
	// than wait for close.
	ch := make(chan streaming.Event, 2)
	ch <- streaming.NewEvent(streaming.EventTextChunk, map[string]string{"text": "a"})
	ch <- streaming.NewEvent(streaming.EventError, map[string]string{"error": "boom"})

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background(), "conn-1", ch) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not stop at terminal event")
	}
	assert.Equal(t, []string{"text_chunk", "error"}, pusher.types(t))
}

func TestRunGoneConnectionStopsDeliverySilently(t *testing.T) {
	pusher := newFakePusher()
	pusher.failAfter = 1
	pusher.failWith = transport.ErrConnectionGone
	r := New(pusher, time.Minute, zap.NewNop())

	err := r.Run(context.Background(), "conn-1", sendEvents(
		streaming.NewEvent(streaming.EventStatus, nil),
		streaming.NewEvent(streaming.EventTextChunk, map[string]string{"text": "a"}),
		streaming.NewEvent(streaming.EventTextChunk, map[string]string{"text": "b"}),
		streaming.NewEvent(streaming.EventResult, nil),
	))

	assert.ErrorIs(t, err, transport.ErrConnectionGone)
	// Only the first event made it; the rest were drained, not delivered.
	assert.Equal(t, []string{"status"}, pusher.types(t))
}

func TestRunTransientFailureContinues(t *testing.T) {
	pusher := &fakePusher{failAfter: -1}
	calls := 0
	flaky := pusherFunc(func(ctx context.Context, id string, payload []byte) error {
		calls++
		if calls == 2 {
			return errors.New("temporary network blip")
		}
		return pusher.Post(ctx, id, payload)
	})
	r := New(flaky, time.Minute, zap.NewNop())

	err := r.Run(context.Background(), "conn-1", sendEvents(
		streaming.NewEvent(streaming.EventStatus, nil),
		streaming.NewEvent(streaming.EventTextChunk, map[string]string{"text": "lost"}),
		streaming.NewEvent(streaming.EventResult, nil),
	))
	require.NoError(t, err)

	// The failed chunk is skipped; later events still flow.
	assert.Equal(t, []string{"status", "result"}, pusher.types(t))
}

func TestRunDeadlineEmitsTerminalError(t *testing.T) {
	pusher := newFakePusher()
	r := New(pusher, 50*time.Millisecond, zap.NewNop())

	// A stream that never produces a terminal event.
	ch := make(chan streaming.Event)
	defer close(ch)

	err := r.Run(context.Background(), "conn-1", ch)
	require.NoError(t, err)

	types := pusher.types(t)
	require.NotEmpty(t, types)
	assert.Equal(t, "error", types[len(types)-1])
}

func TestRunDeadlineTerminalSurvivesFullBuffer(t *testing.T) {
	pusher := newFakePusher()
	slow := pusherFunc(func(ctx context.Context, id string, payload []byte) error {
		time.Sleep(5 * time.Millisecond)
		return pusher.Post(ctx, id, payload)
	})
	r := New(slow, 50*time.Millisecond, zap.NewNop())

	// A producer fast enough to keep the delivery buffer saturated while
	// the slow pusher drains it, so the deadline fires with the buffer
	// full.
	events := make(chan streaming.Event)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case events <- streaming.NewEvent(streaming.EventTextChunk, map[string]string{"text": "x"}):
			case <-stop:
				return
			}
		}
	}()

	err := r.Run(context.Background(), "conn-1", events)
	require.NoError(t, err)

	types := pusher.types(t)
	require.NotEmpty(t, types)
	assert.Equal(t, "error", types[len(types)-1])
}

type pusherFunc func(ctx context.Context, connectionID string, payload []byte) error

func (f pusherFunc) Post(ctx context.Context, connectionID string, payload []byte) error {
	return f(ctx, connectionID, payload)
}
