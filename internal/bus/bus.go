// Package bus provides the Message Bus: the transport-agnostic
// point-to-point and broadcast messaging surface agents and the
// Orchestrator use to talk to each other (spec.md §4.2).
package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentkernel/agentkernel/internal/metrics"
	"github.com/agentkernel/agentkernel/internal/transport"
	"github.com/agentkernel/agentkernel/pkg/kernel"
)

// Bus fills in what a raw Transport leaves to the caller: message
// identity, timestamping, and default priority, plus Broadcast fan-out
// over a caller-supplied recipient list (a Transport only knows about
// single recipients).
type Bus struct {
	transport transport.Transport
	pub       metrics.EventPublisher
}

// New wraps t. Passing transport.NewInMemory() gives the required
// reference bus.
func New(t transport.Transport) *Bus {
	return &Bus{transport: t, pub: metrics.NoopPublisher{}}
}

// SetEventPublisher swaps in a publisher other than the default no-op
// for message.sent/message.received.
func (b *Bus) SetEventPublisher(pub metrics.EventPublisher) {
	if pub == nil {
		pub = metrics.NoopPublisher{}
	}
	b.pub = pub
}

// prepare assigns an ID, timestamp, and default priority to any
// message field the caller left zero.
func prepare(msg kernel.Message) kernel.Message {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	if msg.Priority == "" {
		msg.Priority = kernel.PriorityNormal
	}
	return msg
}

// Send delivers msg to msg.To through the underlying transport.
func (b *Bus) Send(ctx context.Context, msg kernel.Message) (kernel.Message, error) {
	msg = prepare(msg)
	if msg.To == "" {
		return msg, fmt.Errorf("bus: message has no recipient")
	}
	if err := b.transport.Send(ctx, msg); err != nil {
		return msg, err
	}
	b.pub.PublishEvent(metrics.EventMessageSent, msg.From, map[string]string{"to": msg.To, "messageId": msg.ID})
	return msg, nil
}

// Broadcast sends msg to every id in recipients, addressing a fresh
// copy (with its own ID) to each, and returns those ids in recipient
// order. It fails fast: the first delivery error stops the fan-out,
// and the ids assigned up to and including the failed recipient are
// returned alongside the error.
func (b *Bus) Broadcast(ctx context.Context, msg kernel.Message, recipients []string) (ids []string, err error) {
	base := prepare(msg)
	ids = make([]string, 0, len(recipients))
	for _, to := range recipients {
		copyMsg := base
		copyMsg.ID = uuid.NewString()
		copyMsg.To = to
		ids = append(ids, copyMsg.ID)
		if err := b.transport.Send(ctx, copyMsg); err != nil {
			return ids, fmt.Errorf("bus: broadcast to %q: %w", to, err)
		}
		b.pub.PublishEvent(metrics.EventMessageSent, copyMsg.From, map[string]string{"to": to, "messageId": copyMsg.ID})
	}
	return ids, nil
}

// Receive pulls every message currently queued for agentID.
func (b *Bus) Receive(ctx context.Context, agentID string) ([]kernel.Message, error) {
	msgs, err := b.transport.Receive(ctx, agentID)
	if err != nil {
		return msgs, err
	}
	for _, msg := range msgs {
		b.pub.PublishEvent(metrics.EventMessageReceived, agentID, map[string]string{"from": msg.From, "messageId": msg.ID})
	}
	return msgs, nil
}

// Subscribe installs a push-delivery handler for agentID, wrapped so
// every delivered message publishes message.received before handler
// runs.
func (b *Bus) Subscribe(ctx context.Context, agentID string, handler transport.Handler) error {
	wrapped := func(ctx context.Context, msg kernel.Message) {
		b.pub.PublishEvent(metrics.EventMessageReceived, agentID, map[string]string{"from": msg.From, "messageId": msg.ID})
		handler(ctx, msg)
	}
	return b.transport.Subscribe(ctx, agentID, wrapped)
}

// Unsubscribe removes agentID's push-delivery handlers.
func (b *Bus) Unsubscribe(ctx context.Context, agentID string) error {
	return b.transport.Unsubscribe(ctx, agentID)
}

// Close releases the underlying transport's background resources.
func (b *Bus) Close(ctx context.Context) error {
	return b.transport.Cleanup(ctx)
}
