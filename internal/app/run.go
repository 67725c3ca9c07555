// Package app wires manifest loading, RBAC, tenancy, coordination,
// metrics, and tracing around the orchestrator/planner core to give
// the CLI and HTTP surfaces one place to run, validate, and replay a
// manifest.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/agentkernel/agentkernel/internal/audit"
	"github.com/agentkernel/agentkernel/internal/bus"
	"github.com/agentkernel/agentkernel/internal/config"
	"github.com/agentkernel/agentkernel/internal/coordinator"
	"github.com/agentkernel/agentkernel/internal/kernelagent"
	"github.com/agentkernel/agentkernel/internal/metrics"
	"github.com/agentkernel/agentkernel/internal/orchestrator"
	"github.com/agentkernel/agentkernel/internal/planner"
	"github.com/agentkernel/agentkernel/internal/security"
	"github.com/agentkernel/agentkernel/internal/trace"
	"github.com/agentkernel/agentkernel/internal/transport"
	"github.com/agentkernel/agentkernel/pkg/kernel"
)

// RunReport captures the outputs from one manifest execution.
type RunReport struct {
	Results   []planner.InvocationResult
	Trace     trace.ExecutionTrace
	Metrics   metrics.Snapshot
	Namespace string
}

// RunManifest loads a manifest, executes its pipeline, and writes a
// human-readable summary plus structured log lines to out.
func RunManifest(manifestPath string, out io.Writer) error {
	report, err := RunManifestReport(manifestPath)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out, "orchestrator executed %d invocation(s) from %s (namespace=%s)\n", len(report.Results), manifestPath, report.Namespace)
	failed := 0
	for _, r := range report.Results {
		if r.Err != nil {
			failed++
			_, _ = fmt.Fprintf(out, "- %s (%s): error=%v\n", r.Invocation.ID, r.Invocation.AgentID, r.Err)
			continue
		}
		_, _ = fmt.Fprintf(out, "- %s (%s): ok duration=%s\n", r.Invocation.ID, r.Invocation.AgentID, r.Result.Metrics.ExecutionTime)
	}
	emitStructuredLogs(out, report)
	_, _ = fmt.Fprintf(out, "metrics total_invocations=%d errors=%d retries=%d\n",
		report.Metrics.TotalInvocations,
		report.Metrics.ErrorInvocations,
		report.Metrics.RetryAttempts,
	)
	if report.Metrics.CircuitOpens > 0 {
		_, _ = fmt.Fprintf(out, "metrics circuit_opens=%d\n", report.Metrics.CircuitOpens)
	}
	if failed > 0 {
		return fmt.Errorf("pipeline completed with %d failed invocation(s)", failed)
	}
	return nil
}

// RunManifestReport executes the manifest and returns results plus a
// full execution trace.
func RunManifestReport(manifestPath string) (report RunReport, retErr error) {
	logger := audit.NewLogger(strings.TrimSpace(os.Getenv("AUDIT_LOG_PATH")))
	actor := currentRole().String()
	defer func() {
		status := "success"
		if retErr != nil {
			status = "error"
		}
		_ = logger.Write(actor, string(security.ActionRun), manifestPath, status, retErr)
	}()

	manifest, err := config.LoadManifest(manifestPath)
	if err != nil {
		return RunReport{}, fmt.Errorf("load manifest: %w", err)
	}

	policy, err := config.RBACPolicyFromManifest(manifest)
	if err != nil {
		return RunReport{}, fmt.Errorf("build rbac policy: %w", err)
	}
	if err := authorize(policy, security.ActionRun); err != nil {
		return RunReport{}, err
	}

	namespace, err := config.NamespaceFromManifest(manifest)
	if err != nil {
		return RunReport{}, fmt.Errorf("namespace: %w", err)
	}

	runtimeCfg := config.FromEnv()
	if manifest.Runtime.MaxConcurrentAgents > 0 {
		runtimeCfg.Orchestrator.MaxConcurrentAgents = manifest.Runtime.MaxConcurrentAgents
	}
	if manifest.Runtime.WorkerPoolSize > 0 {
		runtimeCfg.Planner.WorkerPoolSize = manifest.Runtime.WorkerPoolSize
	}
	if manifest.Runtime.ChannelBuffer > 0 {
		runtimeCfg.Planner.ChannelBuffer = manifest.Runtime.ChannelBuffer
	}
	if manifest.Runtime.DefaultTimeout != "" {
		if d, err := time.ParseDuration(manifest.Runtime.DefaultTimeout); err == nil {
			runtimeCfg.Planner.DefaultTimeout = d
			runtimeCfg.Orchestrator.DefaultTimeout = d
		}
	}
	if manifest.Runtime.FallbackEnabled != nil {
		runtimeCfg.Orchestrator.FallbackEnabled = *manifest.Runtime.FallbackEnabled
	}

	msgTransport, err := buildTransport()
	if err != nil {
		return RunReport{}, fmt.Errorf("build transport: %w", err)
	}
	orch := orchestrator.New(bus.New(msgTransport), runtimeCfg.Orchestrator)
	if err := registerManifestAgents(orch, manifest); err != nil {
		return RunReport{}, err
	}

	plan, err := buildExecutionPlan(manifest, namespace)
	if err != nil {
		return RunReport{}, err
	}

	lease, err := acquireLeaseIfEnabled(context.Background(), namespace, plan.TaskID)
	if err != nil {
		return RunReport{}, err
	}
	if lease != nil {
		defer func() { _ = lease.Release(context.Background()) }()
	}

	otelRuntime, err := trace.SetupOTelFromEnv("agentkernel")
	if err != nil {
		return RunReport{}, fmt.Errorf("setup tracing: %w", err)
	}
	defer func() { _ = otelRuntime.Shutdown(context.Background()) }()

	metricRecorder := metrics.NewInMemoryRecorder()
	activeRecorder := metrics.Recorder(metricRecorder)
	var metricsServer *http.Server
	if envBool("METRICS_ENABLED") {
		promRegistry := prometheus.NewRegistry()
		promRecorder, err := metrics.NewPrometheusRecorder(promRegistry)
		if err != nil {
			return RunReport{}, fmt.Errorf("setup prometheus recorder: %w", err)
		}
		activeRecorder = metrics.NewMultiRecorder(metricRecorder, promRecorder)
		if envBool("METRICS_TLS_ENABLED") {
			metricsServer, err = metrics.StartPrometheusServerTLS(
				metricsAddr(),
				promRegistry,
				os.Getenv("METRICS_TLS_CERT_FILE"),
				os.Getenv("METRICS_TLS_KEY_FILE"),
				os.Getenv("METRICS_TLS_CA_FILE"),
				envBool("METRICS_TLS_REQUIRE_CLIENT_CERT"),
			)
		} else {
			metricsServer, err = metrics.StartPrometheusServer(metricsAddr(), promRegistry)
		}
		if err != nil {
			return RunReport{}, fmt.Errorf("start metrics endpoint: %w", err)
		}
		defer func() { _ = metrics.StopServer(context.Background(), metricsServer) }()
	}
	orch.SetMetricsRecorder(activeRecorder)
	if logger.Enabled() {
		orch.SetEventPublisher(metrics.NewMultiPublisher(metricRecorder, logger))
	} else {
		orch.SetEventPublisher(metricRecorder)
	}
	defer func() { _ = orch.Shutdown(context.Background()) }()

	plnr := planner.New(orch, runtimeCfg.Planner)
	results, execTrace := plnr.RunPlan(context.Background(), plan)

	if tracePath := os.Getenv("TRACE_OUTPUT"); tracePath != "" {
		if err := trace.SaveToFile(tracePath, execTrace); err != nil {
			return RunReport{}, fmt.Errorf("persist trace: %w", err)
		}
	}

	return RunReport{Results: results, Trace: execTrace, Metrics: metricRecorder.Snapshot(), Namespace: namespace}, nil
}

// ValidateManifest loads and validates a manifest only.
func ValidateManifest(manifestPath string) (retErr error) {
	logger := audit.NewLogger(strings.TrimSpace(os.Getenv("AUDIT_LOG_PATH")))
	actor := currentRole().String()
	defer func() {
		status := "success"
		if retErr != nil {
			status = "error"
		}
		_ = logger.Write(actor, string(security.ActionValidate), manifestPath, status, retErr)
	}()

	manifest, err := config.LoadManifest(manifestPath)
	if err != nil {
		return fmt.Errorf("validate manifest: %w", err)
	}
	policy, err := config.RBACPolicyFromManifest(manifest)
	if err != nil {
		return fmt.Errorf("validate manifest policy: %w", err)
	}
	if err := authorize(policy, security.ActionValidate); err != nil {
		return err
	}
	return nil
}

// ReplayTrace loads a trace and compares replay output against
// recorded output, using deterministic stand-in agents keyed by id
// prefix (panic_/fail_/flaky_/slow_), matching the semantics
// RunManifestReport's own demo agents exercise.
func ReplayTrace(tracePath string, out io.Writer) (retErr error) {
	logger := audit.NewLogger(strings.TrimSpace(os.Getenv("AUDIT_LOG_PATH")))
	actor := currentRole().String()
	defer func() {
		status := "success"
		if retErr != nil {
			status = "error"
		}
		_ = logger.Write(actor, string(security.ActionReplay), tracePath, status, retErr)
	}()

	if err := authorize(security.DefaultPolicy(), security.ActionReplay); err != nil {
		return err
	}

	tr, err := trace.LoadFromFile(tracePath)
	if err != nil {
		return fmt.Errorf("load trace: %w", err)
	}

	registry := kernelagent.NewRegistry()
	for _, agentID := range uniqueAgentIDs(tr) {
		_ = registry.Register(kernelagent.NewBase(kernel.AgentConfig{ID: agentID}, deterministicBody(agentID)))
	}
	resolver := func(agentID string) (*kernelagent.Base, bool) {
		return registry.Get(agentID)
	}

	if err := trace.ReplayAndCompare(context.Background(), tr, 30*time.Second, resolver); err != nil {
		return fmt.Errorf("replay compare failed: %w", err)
	}
	_, _ = fmt.Fprintf(out, "replay matched recorded outputs for %d step(s)\n", len(tr.Steps))
	return nil
}

func registerManifestAgents(orch *orchestrator.Orchestrator, manifest config.Manifest) error {
	for _, a := range manifest.Agents {
		cfg := a.ToAgentConfig()
		agent := kernelagent.NewBase(cfg, deterministicBody(cfg.ID))
		if err := orch.RegisterAgent(context.Background(), agent); err != nil {
			return fmt.Errorf("register agent %q: %w", cfg.ID, err)
		}
	}
	return nil
}

// deterministicBody is the built-in demo agent every manifest-driven
// run exercises: its behavior is entirely keyed off its agent id
// prefix so manifests can script failure scenarios without Go code.
func deterministicBody(agentID string) kernelagent.Body {
	return &demoBody{agentID: agentID, attempts: map[string]int{}}
}

type demoBody struct {
	mu       sync.Mutex
	agentID  string
	attempts map[string]int
}

func (b *demoBody) Run(ctx context.Context, input any) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	b.mu.Lock()
	key := fmt.Sprint(input)
	b.attempts[key]++
	attempt := b.attempts[key]
	b.mu.Unlock()

	switch {
	case strings.HasPrefix(b.agentID, "panic_"):
		panic("forced panic for test/runtime validation")
	case strings.HasPrefix(b.agentID, "fail_"):
		return nil, fmt.Errorf("forced failure")
	case strings.HasPrefix(b.agentID, "flaky_") && attempt == 1:
		return nil, fmt.Errorf("forced transient failure")
	case strings.HasPrefix(b.agentID, "slow_"):
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}

	return map[string]any{"agent": b.agentID, "input": input, "attempt": attempt}, nil
}

func (b *demoBody) HandleMessage(ctx context.Context, msg kernel.Message) kernel.Result {
	data, err := b.Run(ctx, any(msg.Payload))
	if err != nil {
		return kernel.Failure(kernel.CodeAgentError, err.Error(), kernel.Metrics{})
	}
	return kernel.Succeed(data, kernel.Metrics{})
}

func buildExecutionPlan(manifest config.Manifest, namespace string) (planner.Plan, error) {
	orderedSteps, err := config.OrderedPipeline(manifest)
	if err != nil {
		return planner.Plan{}, fmt.Errorf("order pipeline: %w", err)
	}

	invocationIDByStep := make(map[string]string, len(orderedSteps))
	for i, step := range orderedSteps {
		invocationIDByStep[step.Step] = fmt.Sprintf("%04d_%s", i+1, step.Step)
	}

	taskID := namespace + ".task_demo"
	nodes := make([]planner.Node, 0, len(orderedSteps))
	for i, step := range orderedSteps {
		depends := make([]string, 0, 1)
		if step.DependsOn != "" {
			depends = append(depends, invocationIDByStep[step.DependsOn])
		}
		nodes = append(nodes, planner.Node{
			Invocation: planner.Invocation{
				ID:      invocationIDByStep[step.Step],
				AgentID: step.Step,
				Input: map[string]any{
					"request_id":    fmt.Sprintf("req_%04d", i+1),
					"payload":       map[string]any{"message": "hello"},
					"pipeline_step": step.Step,
					"namespace":     namespace,
				},
			},
			DependsOn: depends,
		})
	}

	return planner.Plan{TaskID: taskID, Nodes: nodes}, nil
}

func uniqueAgentIDs(tr trace.ExecutionTrace) []string {
	set := make(map[string]struct{})
	for _, s := range tr.Steps {
		if s.AgentID == "" || s.AgentID == "planner" {
			continue
		}
		set[s.AgentID] = struct{}{}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

func emitStructuredLogs(out io.Writer, report RunReport) {
	for _, r := range report.Results {
		status := "success"
		errText := ""
		if r.Err != nil {
			status = "error"
			errText = r.Err.Error()
		}

		entry := map[string]any{
			"level":       "info",
			"ts":          time.Now().UTC().Format(time.RFC3339Nano),
			"invocation":  r.Invocation.ID,
			"agent_id":    r.Invocation.AgentID,
			"namespace":   report.Namespace,
			"duration_ms": r.Result.Metrics.ExecutionTime.Milliseconds(),
			"status":      status,
		}
		if errText != "" {
			entry["error"] = errText
		}
		if b, err := json.Marshal(entry); err == nil {
			_, _ = fmt.Fprintln(out, string(b))
		}
	}
}

func currentRole() security.Role {
	if r, err := security.ParseRole(os.Getenv("REQUEST_ROLE")); err == nil {
		return r
	}
	return security.RoleOperator
}

func authorize(policy security.Policy, action security.Action) error {
	role := currentRole()
	if !policy.IsAllowed(role, action) {
		return fmt.Errorf("rbac denied: role %q cannot perform %q", role, action)
	}
	return nil
}

// buildTransport selects the Bus's underlying Transport from
// TRANSPORT_MODE ("memory", the default, or "redis"), mirroring
// acquireLeaseIfEnabled's coordinator selection below.
func buildTransport() (transport.Transport, error) {
	mode := strings.TrimSpace(strings.ToLower(os.Getenv("TRANSPORT_MODE")))
	if mode == "" || mode == "memory" {
		return transport.NewInMemory(), nil
	}
	if mode != "redis" {
		return nil, fmt.Errorf("unknown TRANSPORT_MODE %q", mode)
	}

	redisURL := strings.TrimSpace(os.Getenv("TRANSPORT_REDIS_URL"))
	if redisURL == "" {
		return nil, fmt.Errorf("TRANSPORT_REDIS_URL is required when TRANSPORT_MODE=redis")
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	prefix := strings.TrimSpace(os.Getenv("TRANSPORT_REDIS_PREFIX"))
	return transport.NewRedis(client, prefix), nil
}

func acquireLeaseIfEnabled(ctx context.Context, namespace string, taskID string) (coordinator.Lease, error) {
	if !envBool("COORDINATION_ENABLED") {
		return nil, nil
	}
	mode := strings.TrimSpace(strings.ToLower(os.Getenv("COORDINATION_MODE")))
	if mode == "" {
		mode = "file"
	}
	var coord coordinator.Coordinator
	switch mode {
	case "memory":
		coord = coordinator.NewMemoryCoordinator()
	case "redis":
		redisURL := strings.TrimSpace(os.Getenv("COORDINATION_REDIS_URL"))
		redisPrefix := strings.TrimSpace(os.Getenv("COORDINATION_REDIS_PREFIX"))
		redisCoord, err := coordinator.NewRedisCoordinator(redisURL, redisPrefix)
		if err != nil {
			return nil, err
		}
		coord = redisCoord
	default:
		coord = coordinator.NewFileCoordinator(os.Getenv("COORDINATION_DIR"))
	}

	ttl := 2 * time.Minute
	if v := strings.TrimSpace(os.Getenv("COORDINATION_TTL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			ttl = d
		}
	}

	key := namespace + "-" + strings.ReplaceAll(taskID, ".", "_")
	lease, err := coord.Acquire(ctx, key, ttl)
	if err != nil {
		return nil, fmt.Errorf("coordination acquire failed: %w", err)
	}
	return lease, nil
}

func envBool(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func metricsAddr() string {
	if v := strings.TrimSpace(os.Getenv("METRICS_ADDR")); v != "" {
		return v
	}
	return ":2112"
}
