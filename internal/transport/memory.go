package transport

import (
	"context"
	"sync"

	"github.com/agentkernel/agentkernel/pkg/kernel"
)

// InMemory is the required in-memory reference Transport: an unbounded
// per-recipient mailbox plus a per-recipient handler list. Send appends
// to the recipient's mailbox and then, before returning, invokes every
// installed handler for that recipient synchronously in registration
// order — this gives deterministic delivery ordering in tests
// (spec.md §4.2).
//
// Handlers are never invoked while holding the transport's lock: a
// handler that calls back into Send would otherwise deadlock.
type InMemory struct {
	mu       sync.Mutex
	mailbox  map[string][]kernel.Message
	handlers map[string][]Handler
}

// NewInMemory returns an empty in-memory Transport.
func NewInMemory() *InMemory {
	return &InMemory{
		mailbox:  make(map[string][]kernel.Message),
		handlers: make(map[string][]Handler),
	}
}

// Send appends msg to the recipient's mailbox and fans it out to every
// handler registered for that recipient, in registration order.
func (t *InMemory) Send(ctx context.Context, msg kernel.Message) error {
	t.mu.Lock()
	t.mailbox[msg.To] = append(t.mailbox[msg.To], msg)
	handlers := append([]Handler(nil), t.handlers[msg.To]...)
	t.mu.Unlock()

	for _, h := range handlers {
		h(ctx, msg)
	}
	return nil
}

// Receive drains and returns every message currently queued for
// agentID.
func (t *InMemory) Receive(ctx context.Context, agentID string) ([]kernel.Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	msgs := t.mailbox[agentID]
	delete(t.mailbox, agentID)
	return msgs, nil
}

// Subscribe appends handler to agentID's handler list. Multiple
// subscribes for the same agent stack: every delivered message is
// offered to every handler in registration order (spec.md §4.2, §9 —
// the in-memory transport treats this as a feature, not a bug).
func (t *InMemory) Subscribe(ctx context.Context, agentID string, handler Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[agentID] = append(t.handlers[agentID], handler)
	return nil
}

// Unsubscribe removes all handlers for agentID and stops push
// delivery. After it returns, no subsequently sent message triggers a
// formerly-registered handler.
func (t *InMemory) Unsubscribe(ctx context.Context, agentID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.handlers, agentID)
	return nil
}

// Cleanup is a no-op: the in-memory transport owns no background
// resources.
func (t *InMemory) Cleanup(ctx context.Context) error {
	return nil
}
