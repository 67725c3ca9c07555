package transport

import (
	"context"
	"testing"

	"github.com/agentkernel/agentkernel/pkg/kernel"
)

func TestInMemorySendReceiveDrainsMailbox(t *testing.T) {
	tp := NewInMemory()
	ctx := context.Background()

	if err := tp.Send(ctx, kernel.Message{ID: "m1", To: "a"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := tp.Send(ctx, kernel.Message{ID: "m2", To: "a"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	msgs, err := tp.Receive(ctx, "a")
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Fatalf("unexpected receive order: %+v", msgs)
	}

	drained, err := tp.Receive(ctx, "a")
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(drained) != 0 {
		t.Fatalf("expected mailbox to be drained, got %+v", drained)
	}
}

func TestInMemorySubscribeStacksHandlersInOrder(t *testing.T) {
	tp := NewInMemory()
	ctx := context.Background()

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		if err := tp.Subscribe(ctx, "agent", func(context.Context, kernel.Message) { order = append(order, i) }); err != nil {
			t.Fatalf("subscribe %d: %v", i, err)
		}
	}

	if err := tp.Send(ctx, kernel.Message{To: "agent"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Fatalf("handlers did not fire in registration order: %v", order)
	}
}

func TestInMemoryUnsubscribeRemovesAllHandlersForAgent(t *testing.T) {
	tp := NewInMemory()
	ctx := context.Background()

	var calls int
	if err := tp.Subscribe(ctx, "a", func(context.Context, kernel.Message) { calls++ }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := tp.Subscribe(ctx, "a", func(context.Context, kernel.Message) { calls++ }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := tp.Unsubscribe(ctx, "a"); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if err := tp.Send(ctx, kernel.Message{To: "a"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected no handler calls after unsubscribe, got %d", calls)
	}
}

func TestInMemorySendDoesNotDeadlockWhenHandlerSendsBack(t *testing.T) {
	tp := NewInMemory()
	ctx := context.Background()

	done := make(chan struct{})
	if err := tp.Subscribe(ctx, "a", func(ctx context.Context, msg kernel.Message) {
		if err := tp.Send(ctx, kernel.Message{To: "b", From: msg.To}); err != nil {
			t.Errorf("reentrant send: %v", err)
		}
		close(done)
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := tp.Send(ctx, kernel.Message{To: "a"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	<-done

	msgs, err := tp.Receive(ctx, "b")
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected reentrant send to land in b's mailbox, got %+v", msgs)
	}
}
