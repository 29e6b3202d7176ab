package workflows

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ammar793/realestate-backend/internal/agents"
	"github.com/Ammar793/realestate-backend/internal/routing"
)

func testExecutor(t *testing.T) (*Executor, *[]string) {
	t.Helper()
	var mu sync.Mutex
	invoked := []string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req agents.InvokeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		invoked = append(invoked, req.Agent)
		mu.Unlock()
		fmt.Fprintf(w, `{"content":"done by %s"}`, req.Agent)
	}))
	t.Cleanup(srv.Close)

	gw := agents.NewGatewayClient(srv.URL, nil, zap.NewNop())
	o := agents.NewOrchestrator(routing.NewRouter(nil), gw, zap.NewNop())
	return NewExecutor(o, zap.NewNop()), &invoked
}

func TestExecuteRunsStepsInOrder(t *testing.T) {
	e, invoked := testExecutor(t)

	result, err := e.Execute(context.Background(), "property_analysis", map[string]any{"address": "123 Main St"})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "property_analysis", result.Workflow)
	assert.Equal(t, []string{"property", "rag", "supervisor"}, *invoked)

	require.Len(t, result.Results, 3)
	step := result.Results["analyze_property"]
	require.NotNil(t, step)
	assert.True(t, step.Success)
	assert.Equal(t, "done by property", step.Content)
}

func TestExecuteComprehensiveAnalysis(t *testing.T) {
	e, invoked := testExecutor(t)

	result, err := e.Execute(context.Background(), "comprehensive_analysis", nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"property", "market", "rag", "supervisor"}, *invoked)
}

func TestExecuteUnknownWorkflow(t *testing.T) {
	e, _ := testExecutor(t)

	_, err := e.Execute(context.Background(), "nonsense", nil)
	assert.ErrorIs(t, err, ErrUnknownWorkflow)
}

func TestExecuteRecordsFailedStepAndContinues(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req agents.InvokeRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, `{"content":"done by %s"}`, req.Agent)
	}))
	defer srv.Close()

	gw := agents.NewGatewayClient(srv.URL, nil, zap.NewNop())
	o := agents.NewOrchestrator(routing.NewRouter(nil), gw, zap.NewNop())
	e := NewExecutor(o, zap.NewNop())

	result, err := e.Execute(context.Background(), "market_research", nil)
	require.NoError(t, err)

	// The first step failed but was recorded; later steps still ran.
	assert.False(t, result.Results["analyze_market"].Success)
	assert.True(t, result.Results["query_knowledge_base"].Success)
	assert.True(t, result.Results["synthesize_market_results"].Success)
}

func TestListContainsAllWorkflows(t *testing.T) {
	e, _ := testExecutor(t)
	assert.ElementsMatch(t, []string{"property_analysis", "market_research", "comprehensive_analysis"}, e.List())
}

func TestExecuteCanceledContext(t *testing.T) {
	e, _ := testExecutor(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Execute(ctx, "property_analysis", nil)
	assert.Error(t, err)
}
