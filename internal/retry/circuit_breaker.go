// Package retry implements the two protective layers the
// FallbackManager composes around every agent invocation: a per-agent
// three-state circuit breaker and a bounded, backed-off retry loop
// (spec.md §4.3, §4.4).
package retry

import (
	"sync"
	"time"

	"github.com/agentkernel/agentkernel/internal/metrics"
	"github.com/agentkernel/agentkernel/pkg/kernel"
)

// CircuitBreaker maintains independent CLOSED/OPEN/HALF_OPEN state per
// agent id. The zero value is not usable; construct with
// NewCircuitBreaker.
type CircuitBreaker struct {
	mu     sync.Mutex
	states map[string]*breakerState
	pub    metrics.EventPublisher
}

type breakerState struct {
	phase         kernel.CircuitPhase
	failureCount  int
	successCount  int
	lastFailureAt time.Time
	openedAt      time.Time
}

// NewCircuitBreaker returns a breaker with no agents recorded yet;
// every unseen agent id starts CLOSED.
func NewCircuitBreaker() *CircuitBreaker {
	return &CircuitBreaker{states: make(map[string]*breakerState), pub: metrics.NoopPublisher{}}
}

// SetEventPublisher swaps in a publisher other than the default no-op.
// Called by fallback.Manager.SetEventPublisher to keep the breaker's
// open/close transitions flowing to the same publisher as the rest of
// the kernel's lifecycle events.
func (cb *CircuitBreaker) SetEventPublisher(pub metrics.EventPublisher) {
	if pub == nil {
		pub = metrics.NoopPublisher{}
	}
	cb.mu.Lock()
	cb.pub = pub
	cb.mu.Unlock()
}

func (cb *CircuitBreaker) get(agentID string) *breakerState {
	s, ok := cb.states[agentID]
	if !ok {
		s = &breakerState{phase: kernel.CircuitClosed}
		cb.states[agentID] = s
	}
	return s
}

// Allow reports whether a call for agentID may proceed right now,
// applying the OPEN -> HALF_OPEN timeout transition first when
// openTimeout has elapsed since the trip.
func (cb *CircuitBreaker) Allow(agentID string, cfg kernel.CircuitBreakerConfig) bool {
	cfg = cfg.WithDefaults()
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s := cb.get(agentID)
	switch s.phase {
	case kernel.CircuitOpen:
		if time.Since(s.openedAt) < cfg.OpenTimeout {
			return false
		}
		s.phase = kernel.CircuitHalfOpen
		s.successCount = 0
		return true
	default:
		return true
	}
}

// RecordSuccess advances a HALF_OPEN breaker toward CLOSED once
// cfg.HalfOpenSuccesses consecutive trial calls have succeeded, and
// resets a CLOSED breaker's failure streak.
func (cb *CircuitBreaker) RecordSuccess(agentID string, cfg kernel.CircuitBreakerConfig) {
	cfg = cfg.WithDefaults()
	cb.mu.Lock()
	s := cb.get(agentID)
	closed := false
	switch s.phase {
	case kernel.CircuitHalfOpen:
		s.successCount++
		if s.successCount >= cfg.HalfOpenSuccesses {
			s.phase = kernel.CircuitClosed
			s.failureCount = 0
			s.successCount = 0
			closed = true
		}
	case kernel.CircuitClosed:
		s.failureCount = 0
	}
	pub := cb.pub
	cb.mu.Unlock()

	if closed {
		pub.PublishEvent(metrics.EventCircuitBreakerClosed, agentID, nil)
	}
}

// RecordFailure counts a failed call. In CLOSED it trips the breaker
// to OPEN once cfg.Threshold consecutive failures accumulate. In
// HALF_OPEN a single failure re-opens it immediately.
func (cb *CircuitBreaker) RecordFailure(agentID string, cfg kernel.CircuitBreakerConfig, now time.Time) {
	cfg = cfg.WithDefaults()
	cb.mu.Lock()
	s := cb.get(agentID)
	s.lastFailureAt = now
	opened := false
	switch s.phase {
	case kernel.CircuitHalfOpen:
		s.phase = kernel.CircuitOpen
		s.openedAt = now
		s.successCount = 0
		opened = true
	case kernel.CircuitClosed:
		s.failureCount++
		if s.failureCount >= cfg.Threshold {
			s.phase = kernel.CircuitOpen
			s.openedAt = now
			opened = true
		}
	}
	pub := cb.pub
	cb.mu.Unlock()

	if opened {
		pub.PublishEvent(metrics.EventCircuitBreakerOpened, agentID, nil)
	}
}

// State returns a point-in-time snapshot for introspection
// (Orchestrator.GetCircuitState).
func (cb *CircuitBreaker) State(agentID string) kernel.CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s := cb.get(agentID)
	return kernel.CircuitState{
		State:         s.phase,
		FailureCount:  s.failureCount,
		SuccessCount:  s.successCount,
		LastFailureAt: s.lastFailureAt,
	}
}
