package unit

import (
	"testing"
	"time"

	"github.com/agentkernel/agentkernel/internal/config"
)

func TestToAgentConfigParsesCircuitBreaker(t *testing.T) {
	binding := config.AgentBinding{
		ID: "agent_a",
		CircuitBreaker: config.CircuitBreakerConfig{
			Threshold:         5,
			OpenTimeout:       "45s",
			HalfOpenSuccesses: 2,
		},
	}

	cfg := binding.ToAgentConfig()
	if cfg.CircuitBreaker == nil {
		t.Fatal("expected circuit breaker config to be set")
	}
	if cfg.CircuitBreaker.Threshold != 5 {
		t.Fatalf("expected threshold=5, got %d", cfg.CircuitBreaker.Threshold)
	}
	if cfg.CircuitBreaker.OpenTimeout != 45*time.Second {
		t.Fatalf("expected open_timeout=45s, got %s", cfg.CircuitBreaker.OpenTimeout)
	}
	if cfg.CircuitBreaker.HalfOpenSuccesses != 2 {
		t.Fatalf("expected half_open_successes=2, got %d", cfg.CircuitBreaker.HalfOpenSuccesses)
	}
}

func TestToAgentConfigOmitsCircuitBreakerWhenUnset(t *testing.T) {
	binding := config.AgentBinding{ID: "agent_b"}
	cfg := binding.ToAgentConfig()
	if cfg.CircuitBreaker != nil {
		t.Fatalf("expected nil circuit breaker config, got %+v", cfg.CircuitBreaker)
	}
}

func TestToAgentConfigParsesRetryPolicy(t *testing.T) {
	binding := config.AgentBinding{
		ID: "agent_c",
		Retry: config.RetryConfig{
			MaxAttempts:       4,
			InitialDelay:      "100ms",
			BackoffMultiplier: 2.5,
			MaxDelay:          "10s",
		},
	}

	cfg := binding.ToAgentConfig()
	if cfg.RetryPolicy == nil {
		t.Fatal("expected retry policy to be set")
	}
	if cfg.RetryPolicy.MaxAttempts != 4 {
		t.Fatalf("expected max_attempts=4, got %d", cfg.RetryPolicy.MaxAttempts)
	}
	if cfg.RetryPolicy.InitialDelay != 100*time.Millisecond {
		t.Fatalf("expected initial_delay=100ms, got %s", cfg.RetryPolicy.InitialDelay)
	}
	if cfg.RetryPolicy.MaxDelay != 10*time.Second {
		t.Fatalf("expected max_delay=10s, got %s", cfg.RetryPolicy.MaxDelay)
	}
}
