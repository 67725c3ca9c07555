package trace

import (
	"sort"
	"sync"
	"time"
)

// Recorder captures per-attempt trace steps and finalizes them in a
// deterministic order regardless of the concurrency they were
// produced under.
type Recorder struct {
	mu    sync.Mutex
	trace ExecutionTrace
}

// NewRecorder starts a Recorder for a batch run identified by taskID.
func NewRecorder(taskID string, start time.Time) *Recorder {
	return &Recorder{trace: ExecutionTrace{TaskID: taskID, StartTime: start}}
}

// AddStep appends step. Safe for concurrent use by planner workers.
func (r *Recorder) AddStep(step Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trace.Steps = append(r.trace.Steps, step)
}

// Finalize stamps the end time and returns the trace with its steps
// sorted for reproducible diffing (Compare relies on this order).
func (r *Recorder) Finalize(end time.Time) ExecutionTrace {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := ExecutionTrace{
		TaskID:       r.trace.TaskID,
		StartTime:    r.trace.StartTime,
		EndTime:      end,
		TotalLatency: end.Sub(r.trace.StartTime),
		Steps:        append([]Step(nil), r.trace.Steps...),
	}

	sort.Slice(out.Steps, func(i, j int) bool {
		if out.Steps[i].InvocationID != out.Steps[j].InvocationID {
			return out.Steps[i].InvocationID < out.Steps[j].InvocationID
		}
		if out.Steps[i].Attempt != out.Steps[j].Attempt {
			return out.Steps[i].Attempt < out.Steps[j].Attempt
		}
		return out.Steps[i].RequestID < out.Steps[j].RequestID
	})
	return out
}
