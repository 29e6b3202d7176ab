// Package workflows executes predefined multi-step agent workflows. Each
// workflow is a fixed ordered list of persona/action steps run sequentially
// through the orchestrator.
package workflows

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Ammar793/realestate-backend/internal/agents"
	"github.com/Ammar793/realestate-backend/internal/metrics"
	"github.com/Ammar793/realestate-backend/internal/routing"
)

// Step is one workflow step: an action executed by a persona.
type Step struct {
	Agent  routing.Persona `json:"agent"`
	Action string          `json:"action"`
}

// Workflow is a named sequence of steps.
type Workflow struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Steps       []Step `json:"steps"`
}

// ExecutionResult is the caller-facing outcome of one workflow run.
type ExecutionResult struct {
	Workflow string                    `json:"workflow"`
	Success  bool                      `json:"success"`
	Results  map[string]*agents.Result `json:"results"`
}

// ErrUnknownWorkflow is returned for workflow names outside the registry.
var ErrUnknownWorkflow = fmt.Errorf("unknown workflow")

// Executor runs registered workflows.
type Executor struct {
	registry     map[string]Workflow
	orchestrator *agents.Orchestrator
	logger       *zap.Logger
}

// NewExecutor builds an executor with the fixed production registry.
func NewExecutor(orchestrator *agents.Orchestrator, logger *zap.Logger) *Executor {
	return &Executor{
		registry:     defaultRegistry(),
		orchestrator: orchestrator,
		logger:       logger,
	}
}

func defaultRegistry() map[string]Workflow {
	return map[string]Workflow{
		"property_analysis": {
			Name:        "property_analysis",
			Description: "Comprehensive property analysis",
			Steps: []Step{
				{Agent: routing.PersonaProperty, Action: "analyze_property"},
				{Agent: routing.PersonaRAG, Action: "query_knowledge_base"},
				{Agent: routing.PersonaSupervisor, Action: "synthesize_results"},
			},
		},
		"market_research": {
			Name:        "market_research",
			Description: "Market research and analysis",
			Steps: []Step{
				{Agent: routing.PersonaMarket, Action: "analyze_market"},
				{Agent: routing.PersonaRAG, Action: "query_knowledge_base"},
				{Agent: routing.PersonaSupervisor, Action: "synthesize_market_results"},
			},
		},
		"comprehensive_analysis": {
			Name:        "comprehensive_analysis",
			Description: "Full property and market analysis",
			Steps: []Step{
				{Agent: routing.PersonaProperty, Action: "analyze_property"},
				{Agent: routing.PersonaMarket, Action: "analyze_market"},
				{Agent: routing.PersonaRAG, Action: "query_knowledge_base"},
				{Agent: routing.PersonaSupervisor, Action: "synthesize_comprehensive_results"},
			},
		},
	}
}

// List returns the registered workflow names.
func (e *Executor) List() []string {
	names := make([]string, 0, len(e.registry))
	for name := range e.registry {
		names = append(names, name)
	}
	return names
}

// Execute runs one workflow to completion. Step results are keyed by
// action; a failed step is recorded and the run continues, matching the
// best-effort semantics of the original pipeline.
func (e *Executor) Execute(ctx context.Context, name string, parameters map[string]any) (*ExecutionResult, error) {
	wf, ok := e.registry[name]
	if !ok {
		metrics.WorkflowsExecuted.WithLabelValues(name, "unknown").Inc()
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorkflow, name)
	}

	e.logger.Info("Executing workflow",
		zap.String("workflow", name),
		zap.Int("steps", len(wf.Steps)),
	)

	results := make(map[string]*agents.Result, len(wf.Steps))
	for _, step := range wf.Steps {
		if err := ctx.Err(); err != nil {
			metrics.WorkflowsExecuted.WithLabelValues(name, "canceled").Inc()
			return nil, err
		}
		results[step.Action] = e.orchestrator.ExecuteAction(ctx, step.Agent, step.Action, parameters)
	}

	metrics.WorkflowsExecuted.WithLabelValues(name, "ok").Inc()
	return &ExecutionResult{
		Workflow: name,
		Success:  true,
		Results:  results,
	}, nil
}
