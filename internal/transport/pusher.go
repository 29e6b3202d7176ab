// Package transport delivers serialized stream events to addressable client
// connections. Two implementations exist: an HTTP client for a managed
// connection endpoint (worker side) and an in-process WebSocket registry
// (gateway side).
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrConnectionGone signals that the client connection no longer exists and
// no further delivery should be attempted to it.
var ErrConnectionGone = errors.New("connection gone")

// Pusher sends one payload to one connection.
type Pusher interface {
	Post(ctx context.Context, connectionID string, payload []byte) error
}

// HTTPPusher posts payloads to a managed connection endpoint
// (POST {endpoint}/@connections/{id}). A 410 response maps to
// ErrConnectionGone.
type HTTPPusher struct {
	endpoint string
	headers  func(ctx context.Context) (map[string]string, error)
	logger   *zap.Logger

	mu         sync.Mutex
	httpClient *http.Client
}

// NewHTTPPusher creates a pusher for the given management endpoint. headers
// may be nil when the endpoint needs no authentication.
func NewHTTPPusher(endpoint string, headers func(ctx context.Context) (map[string]string, error), logger *zap.Logger) *HTTPPusher {
	return &HTTPPusher{
		endpoint:   endpoint,
		headers:    headers,
		logger:     logger,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Post delivers one payload. Transport-level failures recreate the client
// once before giving up, covering a suspected-stale endpoint.
func (p *HTTPPusher) Post(ctx context.Context, connectionID string, payload []byte) error {
	err := p.post(ctx, connectionID, payload)
	if err == nil || errors.Is(err, ErrConnectionGone) {
		return err
	}

	p.mu.Lock()
	p.httpClient = &http.Client{Timeout: 10 * time.Second}
	p.mu.Unlock()
	p.logger.Warn("Push delivery failed, retrying with fresh client",
		zap.String("connection_id", connectionID),
		zap.Error(err),
	)
	return p.post(ctx, connectionID, payload)
}

func (p *HTTPPusher) post(ctx context.Context, connectionID string, payload []byte) error {
	url := fmt.Sprintf("%s/@connections/%s", p.endpoint, connectionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.headers != nil {
		hdrs, err := p.headers(ctx)
		if err != nil {
			return fmt.Errorf("push auth headers: %w", err)
		}
		for k, v := range hdrs {
			req.Header.Set(k, v)
		}
	}

	p.mu.Lock()
	client := p.httpClient
	p.mu.Unlock()

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("push request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode == http.StatusGone:
		return ErrConnectionGone
	case resp.StatusCode >= 400:
		return fmt.Errorf("push status %d", resp.StatusCode)
	}
	return nil
}
