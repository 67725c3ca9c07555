// Package planner executes a dependency-aware batch of agent
// invocations on top of an Orchestrator: it topologically levels an
// ExecutionPlan's nodes and runs each level with bounded worker
// concurrency, recording a full trace.ExecutionTrace as it goes
// (spec.md §4.2 "Batch execution").
package planner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/agentkernel/agentkernel/internal/channel"
	"github.com/agentkernel/agentkernel/internal/orchestrator"
	"github.com/agentkernel/agentkernel/internal/trace"
	"github.com/agentkernel/agentkernel/pkg/kernel"
)

// Config tunes level execution. Zero values fall back to defaults.
type Config struct {
	WorkerPoolSize int
	ChannelBuffer  int
	DefaultTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.WorkerPoolSize <= 0 {
		c.WorkerPoolSize = 1
	}
	if c.ChannelBuffer <= 0 {
		c.ChannelBuffer = 1
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 30 * time.Second
	}
	return c
}

// Invocation represents a single scheduled agent call.
type Invocation struct {
	ID      string
	AgentID string
	Input   any
}

// Node describes one invocation and the invocation ids it depends on.
type Node struct {
	Invocation Invocation
	DependsOn  []string
}

// Plan is the run-time DAG to execute.
type Plan struct {
	TaskID string
	Nodes  []Node
}

// InvocationResult is the outcome of one plan node. Level is the
// zero-based leveling index the node ran at, so a caller inspecting
// results can tell which invocations ran concurrently with which.
type InvocationResult struct {
	Invocation Invocation
	Result     kernel.Result
	Level      int
	Err        error
}

// Planner drives Plan execution against an Orchestrator.
type Planner struct {
	orch *orchestrator.Orchestrator
	cfg  Config
}

// New wires a Planner around orch.
func New(orch *orchestrator.Orchestrator, cfg Config) *Planner {
	return &Planner{orch: orch, cfg: cfg.withDefaults()}
}

// Run executes invocations with no declared dependencies, all in one
// level.
func (p *Planner) Run(ctx context.Context, invocations []Invocation) []InvocationResult {
	nodes := make([]Node, 0, len(invocations))
	for _, inv := range invocations {
		nodes = append(nodes, Node{Invocation: inv})
	}
	results, _ := p.RunPlan(ctx, Plan{TaskID: inferTaskID(invocations), Nodes: nodes})
	return results
}

// RunPlan executes a dependency-aware plan and returns both the
// per-invocation results (sorted by invocation id) and a full
// execution trace suitable for SaveToFile/ReplayAndCompare.
func (p *Planner) RunPlan(ctx context.Context, plan Plan) ([]InvocationResult, trace.ExecutionTrace) {
	start := time.Now()
	recorder := trace.NewRecorder(plan.TaskID, start)

	graph, err := buildGraph(plan)
	if err != nil {
		recorder.AddStep(trace.Step{
			InvocationID: "plan_validation",
			AgentID:      "planner",
			Result:       kernel.Failure(kernel.CodeDependencyFailed, err.Error(), kernel.Metrics{}),
		})
		return []InvocationResult{{Err: err}}, recorder.Finalize(time.Now())
	}

	resultsByID := make(map[string]InvocationResult, len(graph.nodes))
	for levelIndex, level := range graph.levels {
		levelResults := p.executeLevel(ctx, plan.TaskID, levelIndex, level, graph, resultsByID, recorder)
		for _, r := range levelResults {
			resultsByID[r.Invocation.ID] = r
		}
	}

	results := make([]InvocationResult, 0, len(graph.nodes))
	for _, node := range graph.nodes {
		results = append(results, resultsByID[node.Invocation.ID])
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Invocation.ID < results[j].Invocation.ID
	})

	return results, recorder.Finalize(time.Now())
}

func (p *Planner) executeLevel(
	ctx context.Context,
	taskID string,
	levelIndex int,
	level []string,
	graph planGraph,
	resultsByID map[string]InvocationResult,
	recorder *trace.Recorder,
) []InvocationResult {
	resultCh := channel.NewBufferedResultChannel[InvocationResult](len(level))
	var wg sync.WaitGroup
	sem := make(chan struct{}, p.cfg.WorkerPoolSize)

	for _, nodeID := range level {
		node := graph.nodesByID[nodeID]
		if depErr := dependencyError(node, resultsByID); depErr != nil {
			r := InvocationResult{Invocation: node.Invocation, Level: levelIndex, Err: depErr}
			recorder.AddStep(trace.Step{
				InvocationID: node.Invocation.ID,
				AgentID:      node.Invocation.AgentID,
				Input:        node.Invocation.Input,
				Result:       kernel.Failure(depErr.Code, depErr.Message, kernel.Metrics{}),
			})
			resultCh <- r
			continue
		}

		wg.Add(1)
		go func(n Node) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			resultCh <- p.executeNode(ctx, taskID, levelIndex, n, resultsByID, recorder)
		}(node)
	}

	wg.Wait()
	close(resultCh)

	levelResults := make([]InvocationResult, 0, len(level))
	for r := range resultCh {
		levelResults = append(levelResults, r)
	}
	sort.Slice(levelResults, func(i, j int) bool {
		return levelResults[i].Invocation.ID < levelResults[j].Invocation.ID
	})
	return levelResults
}

// executeNode runs one node's invocation. Its InvocationContext carries
// the whole plan's TaskID as CorrelationID, so every step of a batch
// run shares one correlation id across the trace and any audit/event
// records the orchestrator emits, plus a Metadata entry per completed
// dependency (dep:<id> -> "ok") so the invoked agent can see which
// upstream nodes ran; a node with a failed dependency is never
// dispatched (see dependencyError).
func (p *Planner) executeNode(ctx context.Context, taskID string, levelIndex int, node Node, resultsByID map[string]InvocationResult, recorder *trace.Recorder) InvocationResult {
	runCtx, cancel := context.WithTimeout(ctx, p.cfg.DefaultTimeout)
	defer cancel()

	invCtx := kernel.InvocationContext{
		CorrelationID: taskID,
		Metadata:      dependencyMetadata(node, resultsByID, levelIndex),
	}

	started := time.Now()
	result := p.orch.ExecuteAgent(runCtx, node.Invocation.AgentID, node.Invocation.Input, invCtx)
	duration := time.Since(started)
	if result.Metrics.ExecutionTime == 0 {
		result.Metrics.ExecutionTime = duration
	}

	recorder.AddStep(trace.Step{
		InvocationID: node.Invocation.ID,
		AgentID:      node.Invocation.AgentID,
		RequestID:    taskID,
		Input:        node.Invocation.Input,
		Result:       result,
		Duration:     duration,
		Attempt:      1,
	})

	if !result.Success {
		return InvocationResult{Invocation: node.Invocation, Result: result, Level: levelIndex, Err: result.Error}
	}
	return InvocationResult{Invocation: node.Invocation, Result: result, Level: levelIndex}
}

// dependencyMetadata summarizes node's completed dependencies as
// InvocationContext metadata: "dep:<id>" -> "ok" for a successful
// dependency, plus "level" -> the leveling index this node runs at.
func dependencyMetadata(node Node, results map[string]InvocationResult, levelIndex int) map[string]string {
	meta := make(map[string]string, len(node.DependsOn)+1)
	meta["level"] = strconv.Itoa(levelIndex)
	for _, depID := range node.DependsOn {
		if r, ok := results[depID]; ok && r.Err == nil {
			meta["dep:"+depID] = "ok"
		}
	}
	return meta
}

// dependencyError reports why node cannot run yet: a missing result
// means the graph was built wrong (buildGraph already guarantees every
// DependsOn id exists), a failed one means the failure must propagate
// downstream rather than silently skip the node.
func dependencyError(node Node, results map[string]InvocationResult) *kernel.KernelError {
	for _, depID := range node.DependsOn {
		depResult, ok := results[depID]
		if !ok {
			return kernel.NewKernelError(kernel.CodeDependencyFailed, fmt.Sprintf("dependency result missing: %s", depID), nil)
		}
		if depResult.Err != nil {
			return kernel.NewKernelError(kernel.CodeDependencyFailed, fmt.Sprintf("dependency failed: %s: %v", depID, depResult.Err), depResult.Err)
		}
	}
	return nil
}

type planGraph struct {
	nodes     []Node
	nodesByID map[string]Node
	levels    [][]string
}

func buildGraph(plan Plan) (planGraph, error) {
	if len(plan.Nodes) == 0 {
		return planGraph{}, errors.New("execution plan has no nodes")
	}

	nodesByID := make(map[string]Node, len(plan.Nodes))
	inDegree := make(map[string]int, len(plan.Nodes))
	children := make(map[string][]string, len(plan.Nodes))
	for _, n := range plan.Nodes {
		if n.Invocation.ID == "" {
			return planGraph{}, errors.New("execution plan has node with empty invocation id")
		}
		if _, exists := nodesByID[n.Invocation.ID]; exists {
			return planGraph{}, fmt.Errorf("execution plan has duplicate invocation id %q", n.Invocation.ID)
		}
		nodesByID[n.Invocation.ID] = n
		inDegree[n.Invocation.ID] = len(n.DependsOn)
	}

	for _, n := range plan.Nodes {
		for _, depID := range n.DependsOn {
			if _, ok := nodesByID[depID]; !ok {
				return planGraph{}, fmt.Errorf("execution plan node %q depends on unknown invocation %q", n.Invocation.ID, depID)
			}
			if depID == n.Invocation.ID {
				return planGraph{}, fmt.Errorf("execution plan node %q depends on itself", n.Invocation.ID)
			}
			children[depID] = append(children[depID], n.Invocation.ID)
		}
	}

	queue := make([]string, 0)
	for _, n := range plan.Nodes {
		if inDegree[n.Invocation.ID] == 0 {
			queue = append(queue, n.Invocation.ID)
		}
	}
	sort.Strings(queue)

	visited := 0
	levels := make([][]string, 0)
	for len(queue) > 0 {
		level := append([]string(nil), queue...)
		levels = append(levels, level)
		visited += len(level)

		next := make([]string, 0)
		for _, curr := range level {
			for _, child := range children[curr] {
				inDegree[child]--
				if inDegree[child] == 0 {
					next = append(next, child)
				}
			}
		}
		sort.Strings(next)
		queue = next
	}

	if visited != len(plan.Nodes) {
		return planGraph{}, errors.New("execution plan contains cycle")
	}

	return planGraph{nodes: plan.Nodes, nodesByID: nodesByID, levels: levels}, nil
}

func inferTaskID(invocations []Invocation) string {
	if len(invocations) == 0 {
		return ""
	}
	return "task_default"
}
