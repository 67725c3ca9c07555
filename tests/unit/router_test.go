package unit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agentkernel/agentkernel/internal/bus"
	"github.com/agentkernel/agentkernel/internal/kernelagent"
	"github.com/agentkernel/agentkernel/internal/metrics"
	"github.com/agentkernel/agentkernel/internal/orchestrator"
	"github.com/agentkernel/agentkernel/internal/planner"
	"github.com/agentkernel/agentkernel/internal/transport"
	"github.com/agentkernel/agentkernel/pkg/kernel"
)

func newTestOrchestrator() *orchestrator.Orchestrator {
	return orchestrator.New(bus.New(transport.NewInMemory()), orchestrator.Config{})
}

func registerFunc(t *testing.T, orch *orchestrator.Orchestrator, cfg kernel.AgentConfig, run func(ctx context.Context, input any) (any, error)) {
	t.Helper()
	body := funcBody2{run: run}
	if err := orch.RegisterAgent(context.Background(), kernelagent.NewBase(cfg, body)); err != nil {
		t.Fatalf("register %s: %v", cfg.ID, err)
	}
}

type funcBody2 struct {
	run func(ctx context.Context, input any) (any, error)
}

func (f funcBody2) Run(ctx context.Context, input any) (any, error) { return f.run(ctx, input) }
func (f funcBody2) HandleMessage(_ context.Context, _ kernel.Message) kernel.Result {
	return kernel.Result{}
}

func TestPlannerRunPlanDeterministicOrder(t *testing.T) {
	orch := newTestOrchestrator()
	registerFunc(t, orch, kernel.AgentConfig{ID: "echo", Timeout: time.Second}, func(_ context.Context, input any) (any, error) {
		return input, nil
	})

	pln := planner.New(orch, planner.Config{DefaultTimeout: time.Second})
	results, _ := pln.RunPlan(context.Background(), planner.Plan{TaskID: "task_order", Nodes: []planner.Node{
		{Invocation: planner.Invocation{ID: "b", AgentID: "echo", Input: "two"}},
		{Invocation: planner.Invocation{ID: "a", AgentID: "echo", Input: "one"}},
	}})

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Invocation.ID != "a" || results[1].Invocation.ID != "b" {
		t.Fatalf("results not sorted deterministically: %+v", results)
	}
}

func TestPlannerRetriesFlakyAgent(t *testing.T) {
	orch := newTestOrchestrator()
	attempts := 0
	registerFunc(t, orch, kernel.AgentConfig{
		ID:          "flaky",
		Timeout:     time.Second,
		RetryPolicy: &kernel.RetryPolicy{MaxAttempts: 2, InitialDelay: time.Millisecond, BackoffMultiplier: 1},
	}, func(_ context.Context, input any) (any, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	})

	pln := planner.New(orch, planner.Config{DefaultTimeout: time.Second})
	results, tr := pln.RunPlan(context.Background(), planner.Plan{TaskID: "task_retry", Nodes: []planner.Node{
		{Invocation: planner.Invocation{ID: "001_flaky", AgentID: "flaky", Input: "req_1"}},
	}})

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Err != nil || !results[0].Result.Success {
		t.Fatalf("expected retry success, got %+v", results[0])
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
	if len(tr.Steps) != 1 {
		t.Fatalf("expected 1 trace step, got %d", len(tr.Steps))
	}
}

func TestPlannerDependencyFailureSkipsChild(t *testing.T) {
	orch := newTestOrchestrator()
	registerFunc(t, orch, kernel.AgentConfig{ID: "fail_a", Timeout: time.Second}, func(context.Context, any) (any, error) {
		return nil, errors.New("boom")
	})
	registerFunc(t, orch, kernel.AgentConfig{ID: "child_b", Timeout: time.Second}, func(context.Context, any) (any, error) {
		return "should-not-run", nil
	})
	registerFunc(t, orch, kernel.AgentConfig{ID: "independent_c", Timeout: time.Second}, func(_ context.Context, input any) (any, error) {
		return "ok", nil
	})

	pln := planner.New(orch, planner.Config{DefaultTimeout: time.Second})
	results, _ := pln.RunPlan(context.Background(), planner.Plan{TaskID: "task_deps", Nodes: []planner.Node{
		{Invocation: planner.Invocation{ID: "001_a", AgentID: "fail_a", Input: "req_a"}},
		{Invocation: planner.Invocation{ID: "002_b", AgentID: "child_b", Input: "req_b"}, DependsOn: []string{"001_a"}},
		{Invocation: planner.Invocation{ID: "003_c", AgentID: "independent_c", Input: "req_c"}},
	}})

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Result.Success {
		t.Fatal("expected parent failure")
	}
	if results[1].Err == nil && results[1].Result.Success {
		t.Fatal("expected dependency failure on child")
	}
	if !results[2].Result.Success {
		t.Fatalf("independent node should succeed, got %+v", results[2])
	}
}

func TestPlannerConvertsPanicToError(t *testing.T) {
	orch := newTestOrchestrator()
	registerFunc(t, orch, kernel.AgentConfig{ID: "panic_agent", Timeout: time.Second}, func(context.Context, any) (any, error) {
		panic("kaboom")
	})

	pln := planner.New(orch, planner.Config{DefaultTimeout: time.Second})
	results, tr := pln.RunPlan(context.Background(), planner.Plan{TaskID: "task_panic", Nodes: []planner.Node{
		{Invocation: planner.Invocation{ID: "001_p", AgentID: "panic_agent", Input: "req_p"}},
	}})

	if len(results) != 1 || results[0].Result.Success {
		t.Fatalf("expected panic converted to error, results=%+v", results)
	}
	if len(tr.Steps) != 1 || tr.Steps[0].Result.Success {
		t.Fatalf("expected failing trace step for panic, trace=%+v", tr)
	}
}

func TestOrchestratorCircuitBreakerOpensAfterFailures(t *testing.T) {
	orch := newTestOrchestrator()
	registerFunc(t, orch, kernel.AgentConfig{
		ID:             "fail_agent",
		Timeout:        time.Second,
		RetryPolicy:    &kernel.RetryPolicy{MaxAttempts: 1},
		CircuitBreaker: &kernel.CircuitBreakerConfig{Threshold: 1, OpenTimeout: time.Minute, HalfOpenSuccesses: 1},
	}, func(context.Context, any) (any, error) {
		return nil, errors.New("forced failure")
	})
	memMetrics := metrics.NewInMemoryRecorder()
	orch.SetMetricsRecorder(memMetrics)

	first := orch.ExecuteAgent(context.Background(), "fail_agent", "req_1")
	if first.Success {
		t.Fatalf("expected first invocation failure, got %+v", first)
	}

	second := orch.ExecuteAgent(context.Background(), "fail_agent", "req_2")
	if second.Success {
		t.Fatalf("expected second invocation error, got %+v", second)
	}
	if second.Error.Code != kernel.CodeCircuitOpen {
		t.Fatalf("expected circuit open error, got %v", second.Error)
	}

	snap := memMetrics.Snapshot()
	if snap.CircuitOpens != 1 {
		t.Fatalf("expected one circuit open metric, got %d", snap.CircuitOpens)
	}
}

func TestOrchestratorHalfOpenReopensOnFailedProbe(t *testing.T) {
	orch := newTestOrchestrator()
	calls := 0
	registerFunc(t, orch, kernel.AgentConfig{
		ID:             "probe_agent",
		Timeout:        time.Second,
		RetryPolicy:    &kernel.RetryPolicy{MaxAttempts: 1},
		CircuitBreaker: &kernel.CircuitBreakerConfig{Threshold: 1, OpenTimeout: 5 * time.Millisecond, HalfOpenSuccesses: 1},
	}, func(context.Context, any) (any, error) {
		calls++
		return nil, errors.New("still failing")
	})

	first := orch.ExecuteAgent(context.Background(), "probe_agent", "req_1")
	if first.Success {
		t.Fatalf("expected first failure to open circuit, got %+v", first)
	}

	time.Sleep(10 * time.Millisecond)

	second := orch.ExecuteAgent(context.Background(), "probe_agent", "req_2")
	if second.Success {
		t.Fatalf("expected half-open probe to fail, got %+v", second)
	}
	if second.Error.Code == kernel.CodeCircuitOpen {
		t.Fatalf("expected the probe itself to run rather than short-circuit, got %v", second.Error)
	}

	third := orch.ExecuteAgent(context.Background(), "probe_agent", "req_3")
	if third.Success || third.Error.Code != kernel.CodeCircuitOpen {
		t.Fatalf("expected circuit open after failed probe, got %+v", third)
	}
	if calls != 2 {
		t.Fatalf("expected exactly 2 calls (initial + probe), got %d", calls)
	}
}
