// Package agents glues the query router, the persona set, and the hosted
// agent gateway into one orchestrator. All model and tool execution happens
// in the gateway; this package routes, invokes, and reshapes results.
package agents

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Ammar793/realestate-backend/internal/citations"
	"github.com/Ammar793/realestate-backend/internal/metrics"
	"github.com/Ammar793/realestate-backend/internal/routing"
	"github.com/Ammar793/realestate-backend/internal/streamfilter"
	"github.com/Ammar793/realestate-backend/internal/streaming"
)

// Orchestrator routes queries to personas and executes them through the
// gateway.
type Orchestrator struct {
	router   *routing.Router
	personas map[routing.Persona]*Persona
	gateway  *GatewayClient
	logger   *zap.Logger
}

// Result is the caller-facing outcome of one agent-routed query.
type Result struct {
	Success        bool                 `json:"success"`
	Content        string               `json:"content,omitempty"`
	Citations      []citations.Citation `json:"citations,omitempty"`
	Agent          string               `json:"agent,omitempty"`
	QueryType      string               `json:"query_type,omitempty"`
	ToolsAvailable int                  `json:"tools_available"`
	ToolsUsed      int                  `json:"tools_used"`
	Error          string               `json:"error,omitempty"`
}

// NewOrchestrator builds an orchestrator over the given router and gateway.
func NewOrchestrator(router *routing.Router, gateway *GatewayClient, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		router:   router,
		personas: defaultPersonas(),
		gateway:  gateway,
		logger:   logger,
	}
}

// LoadTools discovers the gateway tool catalog and distributes tools to
// personas by the static target mapping. Failure leaves personas without
// tools rather than failing startup; the gateway may come up later.
func (o *Orchestrator) LoadTools(ctx context.Context) {
	tools, err := o.gateway.ListTools(ctx)
	if err != nil {
		o.logger.Warn("Agent gateway tools unavailable, personas run without tools", zap.Error(err))
		return
	}
	for _, tool := range tools {
		for _, target := range targetsFor(tool.Name) {
			if p, ok := o.personas[target]; ok {
				p.Tools = append(p.Tools, tool)
			}
		}
	}
	o.logger.Info("Distributed gateway tools to personas", zap.Int("tools", len(tools)))
}

// Personas lists the configured persona names.
func (o *Orchestrator) Personas() []string {
	names := make([]string, 0, len(o.personas))
	for _, p := range o.personas {
		names = append(names, p.Name)
	}
	return names
}

// RouteQuery selects a persona for the query and executes it to completion.
// Fenced citation blocks in the response are stripped and surfaced as
// structured citations.
func (o *Orchestrator) RouteQuery(ctx context.Context, question, contextText, queryType string) *Result {
	persona := o.router.Select(question)
	p, ok := o.personas[persona]
	if !ok {
		return &Result{Success: false, Error: fmt.Sprintf("agent %s not found", persona)}
	}

	o.logger.Info("Routing query to agent",
		zap.String("agent", p.Name),
		zap.String("query_type", queryType),
	)

	resp, err := o.gateway.Invoke(ctx, InvokeRequest{
		Agent:        p.Name,
		SystemPrompt: p.SystemPrompt,
		Input:        buildInput(question, contextText, queryType),
		Tools:        p.Tools,
	})
	if err != nil {
		metrics.AgentExecutions.WithLabelValues(p.Name, "error").Inc()
		return &Result{
			Success:   false,
			Agent:     p.Name,
			QueryType: queryType,
			Error:     fmt.Sprintf("agent execution failed: %v", err),
		}
	}
	metrics.AgentExecutions.WithLabelValues(p.Name, "ok").Inc()

	// Completed responses can still carry a fenced citation block.
	filter := streamfilter.New()
	visible, payload := filter.Feed(resp.Content)
	visible += filter.Flush()

	result := &Result{
		Success:        true,
		Content:        visible,
		Agent:          p.Name,
		QueryType:      queryType,
		ToolsAvailable: len(p.Tools),
		ToolsUsed:      resp.ToolsUsed,
	}
	if payload != nil {
		result.Citations = payload.Citations
	}
	return result
}

// ExecuteAction runs one workflow step on a named persona.
func (o *Orchestrator) ExecuteAction(ctx context.Context, persona routing.Persona, action string, parameters map[string]any) *Result {
	p, ok := o.personas[persona]
	if !ok {
		return &Result{Success: false, Error: fmt.Sprintf("agent %s not found", persona)}
	}

	input := "Execute action: " + action
	if len(parameters) > 0 {
		input += fmt.Sprintf("\nParameters: %v", parameters)
	}

	resp, err := o.gateway.Invoke(ctx, InvokeRequest{
		Agent:        p.Name,
		SystemPrompt: p.SystemPrompt,
		Input:        input,
		Tools:        p.Tools,
	})
	if err != nil {
		metrics.AgentExecutions.WithLabelValues(p.Name, "error").Inc()
		return &Result{
			Success: false,
			Agent:   p.Name,
			Error:   fmt.Sprintf("agent action execution failed: %v", err),
		}
	}
	metrics.AgentExecutions.WithLabelValues(p.Name, "ok").Inc()

	return &Result{
		Success:        true,
		Content:        resp.Content,
		Agent:          p.Name,
		ToolsAvailable: len(p.Tools),
		ToolsUsed:      resp.ToolsUsed,
	}
}

// StreamQuery routes and executes a query with streaming output. The
// returned channel carries ordered events for exactly one response
// lifecycle and always ends with a terminal result or error event. The
// fence filter is created here, per response, never shared.
func (o *Orchestrator) StreamQuery(ctx context.Context, question, contextText, queryType string) <-chan streaming.Event {
	out := make(chan streaming.Event, 16)

	go func() {
		defer close(out)

		persona := o.router.Select(question)
		p, ok := o.personas[persona]
		if !ok {
			out <- streaming.NewEvent(streaming.EventError, map[string]string{
				"error": fmt.Sprintf("agent %s not found", persona),
			})
			return
		}

		out <- streaming.NewEvent(streaming.EventStatus, map[string]string{
			"status": "processing",
			"agent":  p.Name,
		})

		chunks, err := o.gateway.InvokeStream(ctx, InvokeRequest{
			Agent:        p.Name,
			SystemPrompt: p.SystemPrompt,
			Input:        buildInput(question, contextText, queryType),
			Tools:        p.Tools,
		})
		if err != nil {
			metrics.AgentExecutions.WithLabelValues(p.Name, "error").Inc()
			out <- streaming.NewEvent(streaming.EventError, map[string]string{
				"error": fmt.Sprintf("agent execution failed: %v", err),
			})
			return
		}

		filter := streamfilter.New()
		var full string
		var cites []citations.Citation
		toolsUsed := 0
		started := time.Now()

		for chunk := range chunks {
			switch chunk.Kind {
			case "text":
				visible, payload := filter.Feed(chunk.Text)
				if payload != nil {
					cites = payload.Citations
					out <- streaming.NewEvent(streaming.EventCitations, payload.Citations)
				}
				if visible != "" {
					full += visible
					out <- streaming.NewEvent(streaming.EventTextChunk, map[string]string{"text": visible})
				}
			case "tool_use":
				toolsUsed++
				out <- streaming.NewEvent(streaming.EventToolUse, map[string]string{"name": chunk.Name})
			case "reasoning":
				out <- streaming.NewEvent(streaming.EventReasoning, map[string]string{"text": chunk.Text})
			case "cycle_start":
				out <- streaming.NewEvent(streaming.EventCycleStart, map[string]string{"agent": p.Name})
			case "error":
				metrics.AgentExecutions.WithLabelValues(p.Name, "error").Inc()
				out <- streaming.NewEvent(streaming.EventError, map[string]string{"error": chunk.Err})
				return
			case "done":
				// handled after the loop
			default:
				out <- streaming.NewEvent(streaming.EventMessage, map[string]string{"text": chunk.Text})
			}
		}

		if tail := filter.Flush(); tail != "" {
			full += tail
			out <- streaming.NewEvent(streaming.EventTextChunk, map[string]string{"text": tail})
		}

		metrics.AgentExecutions.WithLabelValues(p.Name, "ok").Inc()
		o.logger.Info("Streaming query completed",
			zap.String("agent", p.Name),
			zap.Int("tools_used", toolsUsed),
			zap.Duration("elapsed", time.Since(started)),
		)
		out <- streaming.NewEvent(streaming.EventResult, &Result{
			Success:        true,
			Content:        full,
			Citations:      cites,
			Agent:          p.Name,
			QueryType:      queryType,
			ToolsAvailable: len(p.Tools),
			ToolsUsed:      toolsUsed,
		})
	}()

	return out
}

func buildInput(question, contextText, queryType string) string {
	input := "Query: " + question
	if contextText != "" {
		input += "\nContext: " + contextText
	}
	if queryType != "" && queryType != "general" {
		input += "\nQuery Type: " + queryType
	}
	return input
}
