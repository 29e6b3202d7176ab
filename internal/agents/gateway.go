package agents

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Tool is one callable tool exposed by the hosted agent gateway.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// AuthHeaderFunc supplies authenticated headers for gateway calls.
type AuthHeaderFunc func(ctx context.Context) (map[string]string, error)

// GatewayClient talks to the hosted agent gateway. The gateway executes the
// model and tools; this client only shuttles requests and streamed chunks.
type GatewayClient struct {
	baseURL    string
	headers    AuthHeaderFunc
	httpClient *http.Client
	logger     *zap.Logger
}

// NewGatewayClient builds a gateway client. headers may be nil for
// unauthenticated development gateways.
func NewGatewayClient(baseURL string, headers AuthHeaderFunc, logger *zap.Logger) *GatewayClient {
	return &GatewayClient{
		baseURL: baseURL,
		headers: headers,
		// No overall timeout: streamed invocations are bounded by the
		// caller's context deadline instead.
		httpClient: &http.Client{},
		logger:     logger,
	}
}

type listToolsResponse struct {
	Tools           []Tool `json:"tools"`
	PaginationToken string `json:"pagination_token"`
}

// ListTools fetches the full tool catalog, following pagination.
func (c *GatewayClient) ListTools(ctx context.Context) ([]Tool, error) {
	var all []Tool
	token := ""
	for {
		url := c.baseURL + "/tools"
		if token != "" {
			url += "?pagination_token=" + token
		}
		var page listToolsResponse
		if err := c.getJSON(ctx, url, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Tools...)
		if page.PaginationToken == "" {
			return all, nil
		}
		token = page.PaginationToken
	}
}

// InvokeRequest is one agent execution request.
type InvokeRequest struct {
	Agent        string `json:"agent"`
	SystemPrompt string `json:"system_prompt"`
	Input        string `json:"input"`
	Tools        []Tool `json:"tools,omitempty"`
	Stream       bool   `json:"stream,omitempty"`
}

// InvokeResponse is the non-streaming result of an agent execution.
type InvokeResponse struct {
	Content    string `json:"content"`
	StopReason string `json:"stop_reason,omitempty"`
	ToolsUsed  int    `json:"tools_used"`
}

// Invoke runs one agent to completion and returns the full response.
func (c *GatewayClient) Invoke(ctx context.Context, req InvokeRequest) (*InvokeResponse, error) {
	req.Stream = false
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal invoke request: %w", err)
	}
	httpReq, err := c.newRequest(ctx, http.MethodPost, c.baseURL+"/invoke", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gateway invoke: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway invoke status %d", resp.StatusCode)
	}
	var out InvokeResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode invoke response: %w", err)
	}
	return &out, nil
}

// StreamChunk is one line of a streamed invocation. Text chunks carry raw
// answer text (possibly containing fenced citation blocks); the other kinds
// describe agent activity.
type StreamChunk struct {
	Kind string `json:"type"` // text | tool_use | reasoning | cycle_start | done | error
	Text string `json:"text,omitempty"`
	Name string `json:"name,omitempty"`  // tool name for tool_use
	Err  string `json:"error,omitempty"` // message for error chunks
}

// InvokeStream runs one agent with streaming enabled. Chunks are sent on
// the returned channel in order; the channel closes when the gateway ends
// the stream or ctx is canceled. Stream-level failures surface as a final
// error chunk.
func (c *GatewayClient) InvokeStream(ctx context.Context, req InvokeRequest) (<-chan StreamChunk, error) {
	req.Stream = true
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal invoke request: %w", err)
	}
	httpReq, err := c.newRequest(ctx, http.MethodPost, c.baseURL+"/invoke", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gateway invoke: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("gateway invoke status %d", resp.StatusCode)
	}

	ch := make(chan StreamChunk, 16)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var chunk StreamChunk
			if err := json.Unmarshal(line, &chunk); err != nil {
				c.logger.Warn("Skipping malformed stream line", zap.Error(err))
				continue
			}
			select {
			case ch <- chunk:
			case <-ctx.Done():
				return
			}
			if chunk.Kind == "done" || chunk.Kind == "error" {
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			select {
			case ch <- StreamChunk{Kind: "error", Err: err.Error()}:
			case <-ctx.Done():
			}
		}
	}()
	return ch, nil
}

func (c *GatewayClient) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.headers != nil {
		hdrs, err := c.headers(ctx)
		if err != nil {
			return nil, fmt.Errorf("gateway auth headers: %w", err)
		}
		for k, v := range hdrs {
			req.Header.Set(k, v)
		}
	}
	return req, nil
}

func (c *GatewayClient) getJSON(ctx context.Context, url string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	req = req.WithContext(ctx)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}
