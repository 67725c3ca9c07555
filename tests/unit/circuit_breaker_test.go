package unit

import (
	"testing"
	"time"

	"github.com/agentkernel/agentkernel/internal/retry"
	"github.com/agentkernel/agentkernel/pkg/kernel"
)

func TestCircuitBreakerOpensAndResets(t *testing.T) {
	cb := retry.NewCircuitBreaker()
	cfg := kernel.CircuitBreakerConfig{Threshold: 1, OpenTimeout: 30 * time.Millisecond, HalfOpenSuccesses: 1}

	if !cb.Allow("agent_a", cfg) {
		t.Fatal("breaker should allow initial call")
	}

	cb.RecordFailure("agent_a", cfg, time.Now())
	if cb.Allow("agent_a", cfg) {
		t.Fatal("breaker should be open right after threshold reached")
	}

	time.Sleep(40 * time.Millisecond)
	if !cb.Allow("agent_a", cfg) {
		t.Fatal("breaker should transition to half-open after open_timeout elapses")
	}
	if cb.State("agent_a").State != kernel.CircuitHalfOpen {
		t.Fatalf("expected half-open state, got %v", cb.State("agent_a").State)
	}
}

func TestCircuitBreakerHalfOpenClosesAfterSuccesses(t *testing.T) {
	cb := retry.NewCircuitBreaker()
	cfg := kernel.CircuitBreakerConfig{Threshold: 1, OpenTimeout: 5 * time.Millisecond, HalfOpenSuccesses: 2}

	cb.RecordFailure("agent_b", cfg, time.Now())
	time.Sleep(10 * time.Millisecond)
	if !cb.Allow("agent_b", cfg) {
		t.Fatal("expected half-open probe to be allowed")
	}

	cb.RecordSuccess("agent_b", cfg)
	if cb.State("agent_b").State != kernel.CircuitHalfOpen {
		t.Fatal("expected breaker to stay half-open before enough successes")
	}
	cb.RecordSuccess("agent_b", cfg)
	if cb.State("agent_b").State != kernel.CircuitClosed {
		t.Fatal("expected breaker to close after half_open_successes reached")
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := retry.NewCircuitBreaker()
	cfg := kernel.CircuitBreakerConfig{Threshold: 1, OpenTimeout: 5 * time.Millisecond, HalfOpenSuccesses: 1}

	cb.RecordFailure("agent_c", cfg, time.Now())
	time.Sleep(10 * time.Millisecond)
	if !cb.Allow("agent_c", cfg) {
		t.Fatal("expected half-open probe to be allowed")
	}

	cb.RecordFailure("agent_c", cfg, time.Now())
	if cb.State("agent_c").State != kernel.CircuitOpen {
		t.Fatal("expected a half-open failure to reopen the breaker")
	}
	if cb.Allow("agent_c", cfg) {
		t.Fatal("expected reopened breaker to block immediately")
	}
}
