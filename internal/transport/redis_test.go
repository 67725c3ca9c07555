package transport

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/agentkernel/agentkernel/pkg/kernel"
)

func newTestRedisTransport(t *testing.T) (*Redis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	tr := NewRedis(client, "test")
	return tr, func() {
		_ = client.Close()
		mr.Close()
	}
}

func TestRedisSendReceiveDrainsStream(t *testing.T) {
	tr, cleanup := newTestRedisTransport(t)
	defer cleanup()

	ctx := context.Background()
	msg := kernel.Message{ID: "m1", From: "a", To: "b", Payload: []byte("hello")}
	if err := tr.Send(ctx, msg); err != nil {
		t.Fatalf("send: %v", err)
	}

	msgs, err := tr.Receive(ctx, "b")
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "m1" || string(msgs[0].Payload) != "hello" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}

	again, err := tr.Receive(ctx, "b")
	if err != nil {
		t.Fatalf("second receive: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected drained stream, got %+v", again)
	}
}

func TestRedisReceivePreservesSenderOrder(t *testing.T) {
	tr, cleanup := newTestRedisTransport(t)
	defer cleanup()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		msg := kernel.Message{ID: string(rune('a' + i)), From: "sender", To: "recipient", Payload: []byte{byte(i)}}
		if err := tr.Send(ctx, msg); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	msgs, err := tr.Receive(ctx, "recipient")
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i, msg := range msgs {
		if len(msg.Payload) != 1 || msg.Payload[0] != byte(i) {
			t.Fatalf("message %d out of order: %+v", i, msg)
		}
	}
}

func TestRedisUnsubscribeAndCleanupAreIdempotent(t *testing.T) {
	tr, cleanup := newTestRedisTransport(t)
	defer cleanup()

	ctx := context.Background()
	if err := tr.Subscribe(ctx, "agent", func(context.Context, kernel.Message) {}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	if err := tr.Unsubscribe(ctx, "agent"); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if err := tr.Unsubscribe(ctx, "agent"); err != nil {
		t.Fatalf("second unsubscribe: %v", err)
	}
	if err := tr.Cleanup(ctx); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
}
