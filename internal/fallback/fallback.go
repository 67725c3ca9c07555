// Package fallback composes the circuit breaker and retry layers
// around agent execution and, on exhausted retries, an optional
// fallback agent (spec.md §4.4). It is the Orchestrator's sole path
// into an agent's Execute: nothing else in the kernel calls
// kernelagent.Base.Execute directly.
package fallback

import (
	"context"
	"fmt"
	"time"

	"github.com/agentkernel/agentkernel/internal/kernelagent"
	"github.com/agentkernel/agentkernel/internal/metrics"
	"github.com/agentkernel/agentkernel/internal/retry"
	"github.com/agentkernel/agentkernel/pkg/kernel"
)

// DefaultMaxFallbackAttempts is how many times ExecuteFallback invokes
// the fallback agent before giving up, per spec.md §4.5 step 4.
const DefaultMaxFallbackAttempts = 2

// Config is the per-call fallback policy the Orchestrator builds for
// each ExecuteAgent invocation (spec.md §4.5 step 4).
type Config struct {
	Enabled             bool
	FallbackAgentID     string
	MaxFallbackAttempts int
}

func (c Config) withDefaults() Config {
	if c.MaxFallbackAttempts <= 0 {
		c.MaxFallbackAttempts = DefaultMaxFallbackAttempts
	}
	return c
}

// Manager owns one CircuitBreaker shared across every agent it
// protects, keyed by agent id.
type Manager struct {
	breaker *retry.CircuitBreaker
	pub     metrics.EventPublisher
}

// NewManager returns a Manager with a fresh CircuitBreaker.
func NewManager() *Manager {
	return &Manager{breaker: retry.NewCircuitBreaker(), pub: metrics.NoopPublisher{}}
}

// SetEventPublisher swaps in a publisher other than the default no-op,
// for both fallback.triggered and the underlying breaker's open/close
// events.
func (m *Manager) SetEventPublisher(pub metrics.EventPublisher) {
	if pub == nil {
		pub = metrics.NoopPublisher{}
	}
	m.pub = pub
	m.breaker.SetEventPublisher(pub)
}

// CircuitState exposes the breaker snapshot for agentID.
func (m *Manager) CircuitState(agentID string) kernel.CircuitState {
	return m.breaker.State(agentID)
}

// ExecuteWithFallback runs the composition: circuit gate, then bounded
// retry, then the agent's own Execute. If every retry attempt fails
// and fbCfg.Enabled with fbCfg.FallbackAgentID naming another
// registered agent, that agent is executed as the final step —
// untouched by the primary agent's circuit breaker, per spec.md §4.4
// ("the fallback path is not itself circuit-protected").
//
// primary must not be nil. fallbackLookup resolves a fallback agent id
// to its Base; it may be nil when the caller knows no fallback is
// configured.
func (m *Manager) ExecuteWithFallback(
	ctx context.Context,
	primary *kernelagent.Base,
	invCtx kernel.InvocationContext,
	input any,
	fbCfg Config,
	fallbackLookup func(id string) (*kernelagent.Base, bool),
) kernel.Result {
	fbCfg = fbCfg.withDefaults()
	cfg := primary.Config()
	cbCfg := kernel.CircuitBreakerConfig{}
	if cfg.CircuitBreaker != nil {
		cbCfg = *cfg.CircuitBreaker
	}
	cbCfg = cbCfg.WithDefaults()

	if !m.breaker.Allow(cfg.ID, cbCfg) {
		return kernel.Failure(kernel.CodeCircuitOpen, fmt.Sprintf("circuit open for agent %q", cfg.ID), kernel.Metrics{})
	}

	policy := kernel.RetryPolicy{}
	if cfg.RetryPolicy != nil {
		policy = *cfg.RetryPolicy
	}

	start := time.Now()
	out, retries, err := retry.Retry(ctx, policy, func(ctx context.Context) (any, error) {
		result := primary.Execute(ctx, invCtx, input)
		if !result.Success {
			return result, kernel.NewKernelError(result.Error.Code, result.Error.Message, nil)
		}
		return result, nil
	})
	elapsed := time.Since(start)

	if err == nil {
		result := out.(kernel.Result)
		result.Metrics.ExecutionTime = elapsed
		result.Metrics.RetryCount = intPtr(retries)
		m.breaker.RecordSuccess(cfg.ID, cbCfg)
		return result
	}

	m.breaker.RecordFailure(cfg.ID, cbCfg, time.Now())

	if !fbCfg.Enabled || fbCfg.FallbackAgentID == "" || fallbackLookup == nil {
		return failureResult(out, err, elapsed, retries)
	}

	fallbackAgent, ok := fallbackLookup(fbCfg.FallbackAgentID)
	if !ok {
		return kernel.Failure(kernel.CodeFallbackAgentNotFound,
			fmt.Sprintf("fallback agent %q not registered", fbCfg.FallbackAgentID), kernel.Metrics{ExecutionTime: elapsed, RetryCount: intPtr(retries)})
	}

	m.pub.PublishEvent(metrics.EventFallbackTriggered, cfg.ID, map[string]string{"fallbackAgentId": fbCfg.FallbackAgentID})
	return m.ExecuteFallback(ctx, fallbackAgent, invCtx, input, fbCfg.MaxFallbackAttempts, retries)
}

// ExecuteFallback runs fallbackAgent directly, bypassing the primary
// agent's circuit breaker and any retry loop of its own: it invokes
// fallbackAgent.Execute up to maxAttempts times, no backoff, and
// returns the first success (spec.md §4.4).
func (m *Manager) ExecuteFallback(ctx context.Context, fallbackAgent *kernelagent.Base, invCtx kernel.InvocationContext, input any, maxAttempts int, priorRetries int) kernel.Result {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxFallbackAttempts
	}

	var last kernel.Result
	for attempt := 0; attempt < maxAttempts; attempt++ {
		last = fallbackAgent.Execute(ctx, invCtx, input)
		if last.Success {
			last.Metrics.RetryCount = intPtr(priorRetries)
			return last
		}
	}

	return kernel.Failure(kernel.CodeFallbackFailed,
		fmt.Sprintf("fallback agent failed: %s", last.Error.Message), kernel.Metrics{
			ExecutionTime: last.Metrics.ExecutionTime,
			RetryCount:    intPtr(priorRetries),
		})
}

func failureResult(out any, err error, elapsed time.Duration, retries int) kernel.Result {
	if result, ok := out.(kernel.Result); ok && !result.Success {
		result.Metrics.ExecutionTime = elapsed
		result.Metrics.RetryCount = intPtr(retries)
		return result
	}
	return kernel.Failure(kernel.CodeExecutionFailed, err.Error(), kernel.Metrics{ExecutionTime: elapsed, RetryCount: intPtr(retries)})
}

func intPtr(v int) *int { return &v }
