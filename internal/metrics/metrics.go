package metrics

import "time"

// Recorder defines the metric hooks the orchestrator and planner
// report through: one invocation outcome, one retry attempt, one
// circuit-breaker trip.
type Recorder interface {
	ObserveInvocation(agentID string, status string, duration time.Duration)
	ObserveRetry(agentID string)
	ObserveCircuitOpen(agentID string)
}

// NoopRecorder discards everything; it is the default until a caller
// wires in a real recorder.
type NoopRecorder struct{}

func (NoopRecorder) ObserveInvocation(string, string, time.Duration) {}
func (NoopRecorder) ObserveRetry(string)                             {}
func (NoopRecorder) ObserveCircuitOpen(string)                       {}
