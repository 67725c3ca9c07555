package metrics

import (
	"sync"
	"time"
)

// AgentSnapshot is a point-in-time read of one agent's counters.
type AgentSnapshot struct {
	Successes int
	Errors    int
	Retries   int
}

// Snapshot is a point-in-time read of an InMemoryRecorder's counters.
type Snapshot struct {
	TotalInvocations int
	ErrorInvocations int
	RetryAttempts    int
	CircuitOpens     int
	ByAgent          map[string]AgentSnapshot
	EventCounts      map[Event]int
}

// InMemoryRecorder accumulates counters in process memory, useful for
// tests and for the summary a manifest run prints on exit. It also
// implements EventPublisher, counting each named event it receives
// alongside the Recorder counters.
type InMemoryRecorder struct {
	mu          sync.Mutex
	snap        Snapshot
	byAgent     map[string]AgentSnapshot
	eventCounts map[Event]int
}

// NewInMemoryRecorder returns a zeroed recorder.
func NewInMemoryRecorder() *InMemoryRecorder {
	return &InMemoryRecorder{byAgent: make(map[string]AgentSnapshot), eventCounts: make(map[Event]int)}
}

func (r *InMemoryRecorder) ObserveInvocation(agentID string, status string, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap.TotalInvocations++
	a := r.byAgent[agentID]
	if status != "success" {
		r.snap.ErrorInvocations++
		a.Errors++
	} else {
		a.Successes++
	}
	r.byAgent[agentID] = a
}

func (r *InMemoryRecorder) ObserveRetry(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap.RetryAttempts++
	a := r.byAgent[agentID]
	a.Retries++
	r.byAgent[agentID] = a
}

func (r *InMemoryRecorder) ObserveCircuitOpen(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap.CircuitOpens++
}

// Snapshot returns a copy of the current counters, including a
// per-agent breakdown.
func (r *InMemoryRecorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.snap
	out.ByAgent = make(map[string]AgentSnapshot, len(r.byAgent))
	for id, a := range r.byAgent {
		out.ByAgent[id] = a
	}
	out.EventCounts = make(map[Event]int, len(r.eventCounts))
	for e, n := range r.eventCounts {
		out.EventCounts[e] = n
	}
	return out
}

// PublishEvent counts event, satisfying EventPublisher. agentID and
// detail are not retained, only tallied by event name.
func (r *InMemoryRecorder) PublishEvent(event Event, _ string, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eventCounts[event]++
}
