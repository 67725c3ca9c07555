// Package state carries the per-invocation kernel.InvocationContext
// through Go's context.Context so agent bodies can recover their
// correlation id, request id, and metadata without a bespoke
// parameter on every Run signature.
package state

import (
	"context"

	"github.com/agentkernel/agentkernel/pkg/kernel"
)

type contextKey string

const invocationContextKey contextKey = "agentkernel_invocation_context"

// ToContext embeds invCtx in ctx. kernelagent.Base.Execute calls this
// before invoking a Body's Run so Run implementations that need the
// correlation id or metadata of the invocation can recover it via
// FromContext instead of re-deriving it from input.
func ToContext(ctx context.Context, invCtx kernel.InvocationContext) context.Context {
	return context.WithValue(ctx, invocationContextKey, invCtx)
}

// FromContext recovers the InvocationContext embedded by ToContext, if
// any was set.
func FromContext(ctx context.Context) (kernel.InvocationContext, bool) {
	invCtx, ok := ctx.Value(invocationContextKey).(kernel.InvocationContext)
	return invCtx, ok
}
