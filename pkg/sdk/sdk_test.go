package sdk

import (
	"context"
	"testing"
	"time"

	"github.com/agentkernel/agentkernel/internal/kernelagent"
	"github.com/agentkernel/agentkernel/internal/orchestrator"
	"github.com/agentkernel/agentkernel/internal/planner"
	"github.com/agentkernel/agentkernel/pkg/kernel"
)

// funcBody adapts a plain Run function into a kernelagent.Body for tests.
type funcBody struct {
	run func(ctx context.Context, input any) (any, error)
}

func (f funcBody) Run(ctx context.Context, input any) (any, error) {
	return f.run(ctx, input)
}

func (f funcBody) HandleMessage(ctx context.Context, msg kernel.Message) kernel.Result {
	return kernelagent.DefaultHandleMessage(kernelagent.NewBase(kernel.AgentConfig{}, f), ctx, msg)
}

func TestRuntimeRunPlan(t *testing.T) {
	r := NewRuntime(
		orchestrator.Config{},
		planner.Config{DefaultTimeout: time.Second},
	)

	if err := r.RegisterAgent(context.Background(), kernel.AgentConfig{ID: "a"}, funcBody{run: func(_ context.Context, in any) (any, error) {
		return "A", nil
	}}); err != nil {
		t.Fatalf("register a: %v", err)
	}
	if err := r.RegisterAgent(context.Background(), kernel.AgentConfig{ID: "b"}, funcBody{run: func(_ context.Context, in any) (any, error) {
		return "B", nil
	}}); err != nil {
		t.Fatalf("register b: %v", err)
	}

	results, tr, err := r.RunPlan(context.Background(), "task_1", []Node{
		{ID: "001_a", AgentID: "a", Input: "req_a"},
		{ID: "002_b", AgentID: "b", Input: "req_b", DependsOn: []string{"001_a"}},
	})
	if err != nil {
		t.Fatalf("run plan: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].InvocationID != "001_a" || results[1].InvocationID != "002_b" {
		t.Fatalf("unexpected order: %+v", results)
	}
	if tr.TaskID != "task_1" || len(tr.Steps) == 0 {
		t.Fatalf("unexpected trace: %+v", tr)
	}
}
