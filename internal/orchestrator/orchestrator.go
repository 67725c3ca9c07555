// Package orchestrator is the kernel's top-level facade: agent
// registration, admission-controlled execution through the
// fallback/retry/circuit stack, and message routing over the Bus
// (spec.md §2, §4.1).
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentkernel/agentkernel/internal/bus"
	"github.com/agentkernel/agentkernel/internal/fallback"
	"github.com/agentkernel/agentkernel/internal/kernelagent"
	"github.com/agentkernel/agentkernel/internal/metrics"
	"github.com/agentkernel/agentkernel/pkg/kernel"
)

// DefaultMaxConcurrentAgents caps in-flight ExecuteAgent calls when
// Config.MaxConcurrentAgents is left at zero.
const DefaultMaxConcurrentAgents = 100

// DefaultTimeout bounds ExecuteAgent calls for agents that declare no
// per-agent kernel.AgentConfig.Timeout, so no invocation runs
// unbounded by default.
const DefaultTimeout = 30 * time.Second

// Config tunes admission control and fallback policy. Zero values
// fall back to the package defaults.
type Config struct {
	MaxConcurrentAgents int
	DefaultTimeout      time.Duration
	FallbackEnabled     bool
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentAgents <= 0 {
		c.MaxConcurrentAgents = DefaultMaxConcurrentAgents
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = DefaultTimeout
	}
	return c
}

// Orchestrator owns the agent registry, the shared circuit-breaker
// state, and the Bus every registered agent is wired into.
type Orchestrator struct {
	registry *kernelagent.Registry
	bus      *bus.Bus
	fallback *fallback.Manager
	cfg      Config
	metrics  metrics.Recorder
	events   metrics.EventPublisher

	mu      sync.Mutex
	running int
}

// New wires an Orchestrator around b, the Bus every registered agent
// pushes and receives on.
func New(b *bus.Bus, cfg Config) *Orchestrator {
	return &Orchestrator{
		registry: kernelagent.NewRegistry(),
		bus:      b,
		fallback: fallback.NewManager(),
		cfg:      cfg.withDefaults(),
		metrics:  metrics.NoopRecorder{},
		events:   metrics.NoopPublisher{},
	}
}

// SetMetricsRecorder swaps in a Recorder other than the default no-op,
// e.g. metrics.NewMultiRecorder(inMemory, prometheus).
func (o *Orchestrator) SetMetricsRecorder(r metrics.Recorder) {
	if r == nil {
		r = metrics.NoopRecorder{}
	}
	o.metrics = r
}

// SetEventPublisher swaps in a publisher other than the default no-op
// for agent.started/completed/failed, propagating the same publisher
// to the Bus (message.sent/received) and the FallbackManager
// (fallback.triggered, circuit.breaker.opened/closed).
func (o *Orchestrator) SetEventPublisher(pub metrics.EventPublisher) {
	if pub == nil {
		pub = metrics.NoopPublisher{}
	}
	o.events = pub
	o.bus.SetEventPublisher(pub)
	o.fallback.SetEventPublisher(pub)
}

// RegisterAgent adds agent to the registry and subscribes it to its
// own Bus mailbox so pushed messages reach Base.HandleMessage.
func (o *Orchestrator) RegisterAgent(ctx context.Context, agent *kernelagent.Base) error {
	if err := o.registry.Register(agent); err != nil {
		return err
	}
	return o.bus.Subscribe(ctx, agent.ID(), func(ctx context.Context, msg kernel.Message) {
		agent.HandleMessage(ctx, msg)
	})
}

// UnregisterAgent removes id from the registry and stops its
// subscription. Idempotent.
func (o *Orchestrator) UnregisterAgent(ctx context.Context, id string) error {
	o.registry.Unregister(id)
	return o.bus.Unsubscribe(ctx, id)
}

// ExecuteAgent runs agentID's fallback/retry/circuit-protected
// execution under admission control: a call that would exceed
// Config.MaxConcurrentAgents fails immediately with
// kernel.CodeMaxConcurrentLimit rather than queueing.
//
// partialContext is optional; when non-nil, its CorrelationID and
// Metadata override the ones ExecuteAgent generates. AgentID and
// RequestID are always authoritative and cannot be overridden.
func (o *Orchestrator) ExecuteAgent(ctx context.Context, agentID string, input any, partialContext ...kernel.InvocationContext) kernel.Result {
	a, ok := o.registry.Get(agentID)
	if !ok {
		return kernel.Failure(kernel.CodeAgentNotFound, "agent "+agentID+" is not registered", kernel.Metrics{})
	}

	if !o.acquire() {
		return kernel.Failure(kernel.CodeMaxConcurrentLimit, "max concurrent agents reached", kernel.Metrics{})
	}
	defer o.release()

	cfg := a.Config()
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = o.cfg.DefaultTimeout
	}
	execCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	invCtx := kernel.InvocationContext{
		AgentID:   agentID,
		RequestID: uuid.NewString(),
		Timestamp: time.Now().UTC(),
	}
	if len(partialContext) > 0 {
		invCtx.CorrelationID = partialContext[0].CorrelationID
		invCtx.Metadata = partialContext[0].Metadata
	}

	fbCfg := fallback.Config{
		Enabled:             o.cfg.FallbackEnabled,
		FallbackAgentID:     cfg.FallbackAgentID,
		MaxFallbackAttempts: fallback.DefaultMaxFallbackAttempts,
	}

	o.events.PublishEvent(metrics.EventAgentStarted, agentID, map[string]string{"requestId": invCtx.RequestID})

	start := time.Now()
	result := o.fallback.ExecuteWithFallback(execCtx, a, invCtx, input, fbCfg, o.registry.Get)

	status := "success"
	if !result.Success {
		status = "error"
		if result.Error.Code == kernel.CodeCircuitOpen {
			o.metrics.ObserveCircuitOpen(agentID)
		}
		o.events.PublishEvent(metrics.EventAgentFailed, agentID, map[string]string{"requestId": invCtx.RequestID, "code": result.Error.Code})
	} else {
		o.events.PublishEvent(metrics.EventAgentCompleted, agentID, map[string]string{"requestId": invCtx.RequestID})
	}
	o.metrics.ObserveInvocation(agentID, status, time.Since(start))
	if result.Metrics.RetryCount != nil {
		for i := 0; i < *result.Metrics.RetryCount; i++ {
			o.metrics.ObserveRetry(agentID)
		}
	}
	return result
}

func (o *Orchestrator) acquire() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running >= o.cfg.MaxConcurrentAgents {
		return false
	}
	o.running++
	return true
}

func (o *Orchestrator) release() {
	o.mu.Lock()
	o.running--
	o.mu.Unlock()
}

// SendMessage routes msg point-to-point over the Bus.
func (o *Orchestrator) SendMessage(ctx context.Context, msg kernel.Message) (kernel.Message, error) {
	return o.bus.Send(ctx, msg)
}

// BroadcastMessage fans msg out to every id in recipients and returns
// the ids assigned to each copy, in recipient order.
func (o *Orchestrator) BroadcastMessage(ctx context.Context, msg kernel.Message, recipients []string) ([]string, error) {
	return o.bus.Broadcast(ctx, msg, recipients)
}

// GetAgentStatus reports the lifecycle state of a registered agent.
func (o *Orchestrator) GetAgentStatus(id string) (kernel.AgentStatus, bool) {
	a, ok := o.registry.Get(id)
	if !ok {
		return "", false
	}
	return a.Status(), true
}

// GetCircuitState reports the breaker snapshot for id, CLOSED with
// zero counts if id has never failed.
func (o *Orchestrator) GetCircuitState(id string) kernel.CircuitState {
	return o.fallback.CircuitState(id)
}

// GetRunningAgentCount reports how many ExecuteAgent calls currently
// hold an admission slot.
func (o *Orchestrator) GetRunningAgentCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// GetRegisteredAgents lists every currently registered agent id.
func (o *Orchestrator) GetRegisteredAgents() []string {
	return o.registry.IDs()
}

// Shutdown unsubscribes every registered agent from the Bus, clears
// the registry and the running-call count, and releases the Bus's
// underlying transport resources. Safe to call multiple times: a
// second call finds an empty registry and zero running count, and
// Bus.Close/transport.Cleanup are themselves idempotent no-ops on a
// transport with nothing left outstanding.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	for _, id := range o.registry.IDs() {
		if err := o.bus.Unsubscribe(ctx, id); err != nil {
			return fmt.Errorf("shutdown: unsubscribe %q: %w", id, err)
		}
		o.registry.Unregister(id)
	}

	o.mu.Lock()
	o.running = 0
	o.mu.Unlock()

	return o.bus.Close(ctx)
}
