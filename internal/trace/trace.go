// Package trace records and replays orchestrator executions: an
// in-process Recorder for building an ExecutionTrace, OpenTelemetry
// tracer provider setup (no spans are started here), and file-based replay/compare
// for verifying two runs behaved identically (spec.md §4.1
// "Observability", supplemented from original router tracing).
package trace

import (
	"time"

	"github.com/agentkernel/agentkernel/pkg/kernel"
)

// ExecutionTrace captures a full batch run for replay or debugging.
type ExecutionTrace struct {
	TaskID       string
	Steps        []Step
	StartTime    time.Time
	EndTime      time.Time
	TotalLatency time.Duration
}

// Step is a single agent invocation record: the input it received and
// the Result it produced.
type Step struct {
	InvocationID string
	AgentID      string
	RequestID    string
	Input        any
	Result       kernel.Result
	Duration     time.Duration
	Attempt      int
}
