package bench

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/agentkernel/agentkernel/internal/bus"
	"github.com/agentkernel/agentkernel/internal/kernelagent"
	"github.com/agentkernel/agentkernel/internal/planner"
	"github.com/agentkernel/agentkernel/internal/transport"
	"github.com/agentkernel/agentkernel/pkg/kernel"

	"github.com/agentkernel/agentkernel/internal/orchestrator"
)

func BenchmarkPlannerRunPlan_Sequential10(b *testing.B) {
	pln := benchmarkPlanner(8)
	plan := sequentialPlan(10)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pln.RunPlan(context.Background(), plan)
	}
}

func BenchmarkPlannerRunPlan_Parallel100(b *testing.B) {
	pln := benchmarkPlanner(32)
	plan := parallelPlan(100)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pln.RunPlan(context.Background(), plan)
	}
}

type benchBody struct{}

func (benchBody) Run(_ context.Context, input any) (any, error) { return input, nil }
func (benchBody) HandleMessage(_ context.Context, _ kernel.Message) kernel.Result {
	return kernel.Result{}
}

func benchmarkPlanner(workerPool int) *planner.Planner {
	orch := orchestrator.New(bus.New(transport.NewInMemory()), orchestrator.Config{MaxConcurrentAgents: workerPool * 4})
	_ = orch.RegisterAgent(context.Background(), kernelagent.NewBase(kernel.AgentConfig{
		ID:          "bench_agent",
		Timeout:     time.Second,
		RetryPolicy: &kernel.RetryPolicy{MaxAttempts: 1},
		CircuitBreaker: &kernel.CircuitBreakerConfig{
			Threshold:         5,
			OpenTimeout:       time.Second,
			HalfOpenSuccesses: 1,
		},
	}, benchBody{}))

	return planner.New(orch, planner.Config{
		WorkerPoolSize: workerPool,
		ChannelBuffer:  workerPool * 2,
		DefaultTimeout: time.Second,
	})
}

func sequentialPlan(n int) planner.Plan {
	nodes := make([]planner.Node, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%04d", i+1)
		deps := []string{}
		if i > 0 {
			deps = append(deps, fmt.Sprintf("%04d", i))
		}
		nodes = append(nodes, planner.Node{
			Invocation: planner.Invocation{ID: id, AgentID: "bench_agent", Input: id},
			DependsOn:  deps,
		})
	}
	return planner.Plan{TaskID: "bench_seq", Nodes: nodes}
}

func parallelPlan(n int) planner.Plan {
	nodes := make([]planner.Node, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%04d", i+1)
		nodes = append(nodes, planner.Node{
			Invocation: planner.Invocation{ID: id, AgentID: "bench_agent", Input: id},
		})
	}
	return planner.Plan{TaskID: "bench_parallel", Nodes: nodes}
}
