// Package transport defines the pluggable medium the Bus moves
// Messages over, plus the required in-memory reference implementation.
package transport

import (
	"context"

	"github.com/agentkernel/agentkernel/pkg/kernel"
)

// Handler is a push-delivery callback installed via Subscribe.
type Handler func(ctx context.Context, msg kernel.Message)

// Transport moves Message values between named endpoints. Point-to-
// point Send, per-agent pull via Receive, and per-agent push delivery
// via Subscribe are the three required capabilities (spec.md §4.2).
type Transport interface {
	Send(ctx context.Context, msg kernel.Message) error
	Receive(ctx context.Context, agentID string) ([]kernel.Message, error)
	Subscribe(ctx context.Context, agentID string, handler Handler) error
	Unsubscribe(ctx context.Context, agentID string) error
	// Cleanup releases background resources (pollers, connections).
	// Reference in-memory transports may no-op it.
	Cleanup(ctx context.Context) error
}
