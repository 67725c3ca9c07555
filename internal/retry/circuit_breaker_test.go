package retry

import (
	"sync"
	"testing"
	"time"

	"github.com/agentkernel/agentkernel/internal/metrics"
	"github.com/agentkernel/agentkernel/pkg/kernel"
)

type capturingPublisher struct {
	mu     sync.Mutex
	events []metrics.Event
}

func (p *capturingPublisher) PublishEvent(event metrics.Event, _ string, _ map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *capturingPublisher) count(event metrics.Event) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e == event {
			n++
		}
	}
	return n
}

func TestRecordFailureKeepsFailureCountOnTrip(t *testing.T) {
	cb := NewCircuitBreaker()
	cfg := kernel.CircuitBreakerConfig{Threshold: 3, OpenTimeout: time.Minute, HalfOpenSuccesses: 1}

	cb.RecordFailure("agent", cfg, time.Now())
	cb.RecordFailure("agent", cfg, time.Now())
	cb.RecordFailure("agent", cfg, time.Now())

	state := cb.State("agent")
	if state.State != kernel.CircuitOpen {
		t.Fatalf("expected breaker to be open, got %v", state.State)
	}
	if state.FailureCount < cfg.Threshold {
		t.Fatalf("expected failure count to stay at or above threshold %d, got %d", cfg.Threshold, state.FailureCount)
	}
}

func TestCircuitBreakerPublishesOpenAndCloseEvents(t *testing.T) {
	cb := NewCircuitBreaker()
	pub := &capturingPublisher{}
	cb.SetEventPublisher(pub)
	cfg := kernel.CircuitBreakerConfig{Threshold: 1, OpenTimeout: 5 * time.Millisecond, HalfOpenSuccesses: 1}

	cb.RecordFailure("agent", cfg, time.Now())
	if pub.count(metrics.EventCircuitBreakerOpened) != 1 {
		t.Fatalf("expected 1 circuit.breaker.opened, got %d", pub.count(metrics.EventCircuitBreakerOpened))
	}

	time.Sleep(10 * time.Millisecond)
	if !cb.Allow("agent", cfg) {
		t.Fatal("expected half-open probe to be allowed")
	}
	cb.RecordSuccess("agent", cfg)
	if pub.count(metrics.EventCircuitBreakerClosed) != 1 {
		t.Fatalf("expected 1 circuit.breaker.closed, got %d", pub.count(metrics.EventCircuitBreakerClosed))
	}
}
