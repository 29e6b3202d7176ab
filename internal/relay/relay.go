// Package relay forwards one response's stream events to one client
// connection, in order, without letting slow delivery stall stream
// consumption, and under a single end-to-end deadline.
package relay

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Ammar793/realestate-backend/internal/metrics"
	"github.com/Ammar793/realestate-backend/internal/streaming"
	"github.com/Ammar793/realestate-backend/internal/transport"
)

// DefaultDeadline bounds one response's generation plus relay.
const DefaultDeadline = 5 * time.Minute

// deliveryBuffer decouples event consumption from delivery I/O while
// preserving per-connection ordering through the single writer goroutine.
const deliveryBuffer = 64

// Relay streams events for one response lifecycle to one connection.
type Relay struct {
	pusher   transport.Pusher
	deadline time.Duration
	logger   *zap.Logger
}

// New creates a relay. deadline <= 0 uses the default.
func New(pusher transport.Pusher, deadline time.Duration, logger *zap.Logger) *Relay {
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	return &Relay{pusher: pusher, deadline: deadline, logger: logger}
}

// Run consumes events until the channel closes, a terminal event is sent, or
// the deadline expires, delivering each to connectionID. On deadline expiry
// a terminal error event is emitted and relaying stops. A gone connection
// terminates delivery silently. Run never returns a client-visible error;
// the returned error only reports whether the connection died.
func (r *Relay) Run(ctx context.Context, connectionID string, events <-chan streaming.Event) error {
	ctx, cancel := context.WithTimeout(ctx, r.deadline)
	defer cancel()

	out := make(chan streaming.Event, deliveryBuffer)
	done := make(chan error, 1)
	go func() {
		done <- r.deliver(ctx, connectionID, out)
	}()

	terminalSeen := false

consume:
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				break consume
			}
			if ev.Type.Terminal() {
				terminalSeen = true
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				break consume
			}
			if terminalSeen {
				break consume
			}
		case <-ctx.Done():
			break consume
		}
	}

	expired := ctx.Err() != nil && !terminalSeen
	if expired {
		metrics.RelayDeadlinesExceeded.Inc()
		// The client must still see a defined end of stream. The deliver
		// goroutine drains out until close, so this send cannot block
		// forever even when the buffer is full.
		out <- streaming.NewEvent(streaming.EventError, map[string]string{
			"error": "response deadline exceeded",
		})
	}
	close(out)

	err := <-done
	if errors.Is(err, transport.ErrConnectionGone) {
		metrics.ConnectionsGone.Inc()
		r.logger.Info("Connection gone during relay",
			zap.String("connection_id", connectionID),
		)
		return err
	}
	return err
}

// deliver is the single writer: it serializes and posts events in order.
// Transient failures are logged and skipped; a gone connection stops all
// further delivery.
func (r *Relay) deliver(ctx context.Context, connectionID string, events <-chan streaming.Event) error {
	gone := false
	for ev := range events {
		if gone {
			continue // drain without delivering
		}
		// Delivery must be allowed to flush terminal events even after the
		// generation deadline fired, so it gets its own short grace context.
		postCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		err := r.pusher.Post(postCtx, connectionID, ev.Marshal())
		cancel()

		switch {
		case err == nil:
			metrics.StreamEventsRelayed.WithLabelValues(string(ev.Type)).Inc()
		case errors.Is(err, transport.ErrConnectionGone):
			metrics.RelayDeliveryFailures.WithLabelValues("gone").Inc()
			gone = true
		default:
			metrics.RelayDeliveryFailures.WithLabelValues("transient").Inc()
			r.logger.Warn("Event delivery failed, continuing",
				zap.String("connection_id", connectionID),
				zap.String("event_type", string(ev.Type)),
				zap.Error(err),
			)
		}
	}
	if gone {
		return transport.ErrConnectionGone
	}
	return nil
}
