// Package sdk exposes a small embeddable surface over the internal
// orchestrator/planner core, for callers that want to register agents
// and run a plan from Go code rather than a YAML manifest.
package sdk

import (
	"context"
	"fmt"

	"github.com/agentkernel/agentkernel/internal/bus"
	"github.com/agentkernel/agentkernel/internal/kernelagent"
	"github.com/agentkernel/agentkernel/internal/orchestrator"
	"github.com/agentkernel/agentkernel/internal/planner"
	intracetrace "github.com/agentkernel/agentkernel/internal/trace"
	"github.com/agentkernel/agentkernel/internal/transport"
	"github.com/agentkernel/agentkernel/pkg/kernel"
)

// Node defines one planned invocation in the SDK surface.
type Node struct {
	ID        string
	AgentID   string
	Input     any
	DependsOn []string
}

// Result is the SDK-friendly invocation result.
type Result struct {
	InvocationID string
	AgentID      string
	Output       any
	Error        string
}

// Trace is the SDK-friendly trace surface.
type Trace struct {
	TaskID       string
	Steps        []TraceStep
	TotalLatency int64
}

// TraceStep is one replayable step in the SDK trace.
type TraceStep struct {
	InvocationID string
	AgentID      string
	RequestID    string
	Error        string
	Attempt      int
}

// Runtime provides public API access over the internal execution engine.
type Runtime struct {
	orch *orchestrator.Orchestrator
	pln  *planner.Planner
}

// NewRuntime creates a runtime with an isolated in-memory bus,
// orchestrator, and planner.
func NewRuntime(orchCfg orchestrator.Config, plannerCfg planner.Config) *Runtime {
	orch := orchestrator.New(bus.New(transport.NewInMemory()), orchCfg)
	return &Runtime{orch: orch, pln: planner.New(orch, plannerCfg)}
}

// RegisterAgent registers a kernelagent.Body under the given config.
func (r *Runtime) RegisterAgent(ctx context.Context, cfg kernel.AgentConfig, body kernelagent.Body) error {
	return r.orch.RegisterAgent(ctx, kernelagent.NewBase(cfg, body))
}

// RunPlan executes a dependency-aware plan and returns SDK-friendly results/trace.
func (r *Runtime) RunPlan(ctx context.Context, taskID string, nodes []Node) ([]Result, Trace, error) {
	if len(nodes) == 0 {
		return nil, Trace{}, fmt.Errorf("sdk: no nodes provided")
	}

	planNodes := make([]planner.Node, 0, len(nodes))
	for i, n := range nodes {
		id := n.ID
		if id == "" {
			id = fmt.Sprintf("%04d_%s", i+1, n.AgentID)
		}
		planNodes = append(planNodes, planner.Node{
			Invocation: planner.Invocation{
				ID:      id,
				AgentID: n.AgentID,
				Input:   n.Input,
			},
			DependsOn: append([]string(nil), n.DependsOn...),
		})
	}

	results, tr := r.pln.RunPlan(ctx, planner.Plan{TaskID: taskID, Nodes: planNodes})
	outResults := make([]Result, 0, len(results))
	for _, rr := range results {
		errText := ""
		if rr.Err != nil {
			errText = rr.Err.Error()
		} else if !rr.Result.Success && rr.Result.Error != nil {
			errText = rr.Result.Error.Error()
		}
		outResults = append(outResults, Result{
			InvocationID: rr.Invocation.ID,
			AgentID:      rr.Invocation.AgentID,
			Output:       rr.Result.Data,
			Error:        errText,
		})
	}
	return outResults, toSDKTrace(tr), nil
}

// Shutdown releases the runtime's underlying bus transport.
func (r *Runtime) Shutdown(ctx context.Context) error {
	return r.orch.Shutdown(ctx)
}

func toSDKTrace(in intracetrace.ExecutionTrace) Trace {
	steps := make([]TraceStep, 0, len(in.Steps))
	for _, s := range in.Steps {
		errText := ""
		if !s.Result.Success && s.Result.Error != nil {
			errText = s.Result.Error.Error()
		}
		steps = append(steps, TraceStep{
			InvocationID: s.InvocationID,
			AgentID:      s.AgentID,
			RequestID:    s.RequestID,
			Error:        errText,
			Attempt:      s.Attempt,
		})
	}
	return Trace{TaskID: in.TaskID, Steps: steps, TotalLatency: in.TotalLatency.Milliseconds()}
}
