// Package httpapi exposes the synchronous query API, the agent and workflow
// APIs, and the WebSocket control routes.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Ammar793/realestate-backend/internal/agents"
	"github.com/Ammar793/realestate-backend/internal/kb"
	"github.com/Ammar793/realestate-backend/internal/metrics"
	"github.com/Ammar793/realestate-backend/internal/workflows"
)

// KnowledgeBase is the sync query dependency.
type KnowledgeBase interface {
	Query(ctx context.Context, question, contextText string) (*kb.QueryResult, error)
}

// AgentRouter is the agent-routed query dependency.
type AgentRouter interface {
	RouteQuery(ctx context.Context, question, contextText, queryType string) *agents.Result
}

// WorkflowRunner is the workflow execution dependency.
type WorkflowRunner interface {
	Execute(ctx context.Context, name string, parameters map[string]any) (*workflows.ExecutionResult, error)
}

// QueryHandler serves /query, /agent and /workflow.
type QueryHandler struct {
	kb        KnowledgeBase
	agents    AgentRouter
	workflows WorkflowRunner
	logger    *zap.Logger
}

// NewQueryHandler wires the query endpoints.
func NewQueryHandler(kbClient KnowledgeBase, router AgentRouter, runner WorkflowRunner, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{kb: kbClient, agents: router, workflows: runner, logger: logger}
}

// RegisterRoutes registers the HTTP routes on mux, wrapped in CORS.
func (h *QueryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/query", corsMiddleware(http.HandlerFunc(h.handleQuery)))
	mux.Handle("/agent", corsMiddleware(http.HandlerFunc(h.handleAgent)))
	mux.Handle("/workflow", corsMiddleware(http.HandlerFunc(h.handleWorkflow)))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

type queryRequest struct {
	Question  string         `json:"question"`
	Context   string         `json:"context"`
	QueryType string         `json:"query_type"`
	UseAgents bool           `json:"use_agents"`
	Workflow  string         `json:"workflow"`
	Params    map[string]any `json:"parameters"`
}

// handleQuery serves the synchronous knowledge-base path. For compatibility
// with the original API it also dispatches agent queries and workflows when
// the corresponding body flags are set.
func (h *QueryHandler) handleQuery(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	switch {
	case req.Workflow != "":
		h.runWorkflow(w, r, req)
		return
	case req.UseAgents:
		h.runAgentQuery(w, r, req)
		return
	}

	if req.Question == "" || req.Context == "" {
		metrics.QueriesTotal.WithLabelValues("/query", "bad_request").Inc()
		writeError(w, http.StatusBadRequest, "Question and context are required", "")
		return
	}

	result, err := h.kb.Query(r.Context(), req.Question, req.Context)
	if err != nil {
		h.logger.Error("Knowledge base query failed", zap.Error(err))
		metrics.QueriesTotal.WithLabelValues("/query", "error").Inc()
		writeError(w, http.StatusInternalServerError, "Failed to process request", err.Error())
		return
	}

	metrics.QueriesTotal.WithLabelValues("/query", "ok").Inc()
	metrics.QueryDuration.WithLabelValues("/query").Observe(time.Since(started).Seconds())
	writeJSON(w, http.StatusOK, result)
}

func (h *QueryHandler) handleAgent(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	h.runAgentQuery(w, r, req)
}

func (h *QueryHandler) handleWorkflow(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	h.runWorkflow(w, r, req)
}

func (h *QueryHandler) runAgentQuery(w http.ResponseWriter, r *http.Request, req *queryRequest) {
	if req.Question == "" {
		metrics.QueriesTotal.WithLabelValues("/agent", "bad_request").Inc()
		writeError(w, http.StatusBadRequest, "Question is required for agent queries", "")
		return
	}
	queryType := req.QueryType
	if queryType == "" {
		queryType = "general"
	}

	result := h.agents.RouteQuery(r.Context(), req.Question, req.Context, queryType)
	status := "ok"
	if !result.Success {
		status = "error"
	}
	metrics.QueriesTotal.WithLabelValues("/agent", status).Inc()
	writeJSON(w, http.StatusOK, result)
}

func (h *QueryHandler) runWorkflow(w http.ResponseWriter, r *http.Request, req *queryRequest) {
	if req.Workflow == "" {
		metrics.QueriesTotal.WithLabelValues("/workflow", "bad_request").Inc()
		writeError(w, http.StatusBadRequest, "Workflow name is required", "")
		return
	}

	result, err := h.workflows.Execute(r.Context(), req.Workflow, req.Params)
	if err != nil {
		h.logger.Error("Workflow execution failed",
			zap.String("workflow", req.Workflow),
			zap.Error(err),
		)
		metrics.QueriesTotal.WithLabelValues("/workflow", "error").Inc()
		writeError(w, http.StatusInternalServerError, "Failed to execute workflow", err.Error())
		return
	}

	metrics.QueriesTotal.WithLabelValues("/workflow", "ok").Inc()
	writeJSON(w, http.StatusOK, result)
}

func (h *QueryHandler) decode(w http.ResponseWriter, r *http.Request) (*queryRequest, bool) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required", "")
		return nil, false
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body", "")
		return nil, false
	}
	var req queryRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON body", "")
			return nil, false
		}
	}
	return &req, true
}
