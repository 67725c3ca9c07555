// Package kernelagent provides the lifecycle framing every agent gets
// for free: status tracking, metric collection, panic-to-error
// mapping, and suspend/resume, wrapped around a user-supplied Body.
package kernelagent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/agentkernel/agentkernel/internal/state"
	"github.com/agentkernel/agentkernel/pkg/kernel"
)

// Body is the capability set every agent implements: the user body
// (Run) and how the agent reacts to inbound bus messages
// (HandleMessage). Neither method is invoked directly by callers other
// than the Base lifecycle wrapper.
type Body interface {
	Run(ctx context.Context, input any) (any, error)
	HandleMessage(ctx context.Context, msg kernel.Message) kernel.Result
}

// Cleanuper is an optional Body extension. When implemented, Cleanup
// runs on every Execute exit path: success, failure, or cancellation.
type Cleanuper interface {
	Cleanup(ctx context.Context)
}

// Base supplies the kernel-exposed operations on top of a Body: status
// transitions, metrics, Suspend/Resume, and copy-out accessors. It does
// not itself retry, time out, or consult a circuit breaker — that is
// the FallbackManager's job (spec.md §4.1).
type Base struct {
	mu     sync.Mutex
	config kernel.AgentConfig
	status kernel.AgentStatus
	body   Body
}

// NewBase wraps body with lifecycle framing under the given config.
// The agent starts IDLE.
func NewBase(config kernel.AgentConfig, body Body) *Base {
	return &Base{config: config, status: kernel.StatusIdle, body: body}
}

// ID returns the agent's configured identity.
func (b *Base) ID() string {
	return b.config.ID
}

// Config returns a copy of the registered configuration; callers
// cannot mutate the Base's own copy through the returned value.
func (b *Base) Config() kernel.AgentConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.config.Copy()
}

// Status returns the current lifecycle state.
func (b *Base) Status() kernel.AgentStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *Base) setStatus(s kernel.AgentStatus) {
	b.mu.Lock()
	b.status = s
	b.mu.Unlock()
}

// Suspend forces SUSPENDED from any state.
func (b *Base) Suspend() {
	b.setStatus(kernel.StatusSuspended)
}

// Resume returns to IDLE only if currently SUSPENDED.
func (b *Base) Resume() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status == kernel.StatusSuspended {
		b.status = kernel.StatusIdle
	}
}

// Execute runs the Body's Run method under lifecycle framing: sets
// RUNNING, invokes Run, maps the outcome to a Result, transitions to
// COMPLETED or FAILED, and always runs Cleanup on the way out.
//
// The kernel does not enforce a single in-flight Execute per agent
// instance: the status field is synchronized against data races but
// concurrent Execute calls on the same Base may interleave their
// status writes.
func (b *Base) Execute(ctx context.Context, invCtx kernel.InvocationContext, input any) kernel.Result {
	start := time.Now()
	b.setStatus(kernel.StatusRunning)
	ctx = state.ToContext(ctx, invCtx)

	if c, ok := b.body.(Cleanuper); ok {
		defer c.Cleanup(ctx)
	}

	data, err := b.safeRun(ctx, input)
	elapsed := time.Since(start)

	if err != nil {
		b.setStatus(kernel.StatusFailed)
		return kernel.Failure(errorCode(err), err.Error(), kernel.Metrics{ExecutionTime: elapsed})
	}

	b.setStatus(kernel.StatusCompleted)
	return kernel.Succeed(data, kernel.Metrics{ExecutionTime: elapsed})
}

// HandleMessage delegates to the Body's own HandleMessage. Kept as a
// pass-through on Base (rather than folded into Execute) because
// HandleMessage decides for itself which parts of an inbound Message
// become the InvocationContext and input to Execute — see
// DefaultHandleMessage for the typical shape spec.md §4.1 describes.
func (b *Base) HandleMessage(ctx context.Context, msg kernel.Message) kernel.Result {
	return b.body.HandleMessage(ctx, msg)
}

// DefaultHandleMessage is the typical HandleMessage body spec.md §4.1
// describes: synthesize an InvocationContext from the message and call
// Execute with the message payload as input. Body implementations that
// need no custom message handling can implement HandleMessage as a
// one-line call to this helper.
func DefaultHandleMessage(b *Base, ctx context.Context, msg kernel.Message) kernel.Result {
	invCtx := kernel.InvocationContext{
		AgentID:       b.ID(),
		RequestID:     msg.ID,
		Timestamp:     msg.Timestamp,
		CorrelationID: msg.CorrelationID,
		Metadata:      msg.Metadata,
	}
	return b.Execute(ctx, invCtx, msg.Payload)
}

func (b *Base) safeRun(ctx context.Context, input any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			if recErr, ok := r.(error); ok {
				err = kernel.NewKernelError(kernel.CodeUnknownError, "agent panicked", recErr)
			} else {
				err = kernel.NewKernelError(kernel.CodeUnknownError, fmt.Sprintf("agent panicked: %v", r), nil)
			}
		}
	}()
	return b.body.Run(ctx, input)
}

func errorCode(err error) string {
	var kerr *kernel.KernelError
	if errors.As(err, &kerr) {
		return kerr.Code
	}
	return kernel.CodeAgentError
}
