package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agentkernel/agentkernel/pkg/kernel"
)

// Redis is an async, poll-based Transport backed by Redis Streams. It
// is the "remote transport" spec.md §4.2 permits: asynchronous, and
// free to poll, provided per-sender-to-recipient ordering is preserved
// and same-priority messages from the same sender are never reordered.
// A Stream is append-ordered, so both hold by construction.
//
// Each recipient gets its own stream key. Send is XADD, Subscribe
// starts one blocking XREAD poll goroutine per agent (shared across
// stacked handlers), Receive drains with XRANGE and acknowledges by
// deleting the entries it returns.
type Redis struct {
	client redis.UniversalClient
	prefix string

	mu   sync.Mutex
	subs map[string]*redisSubscription
}

type redisSubscription struct {
	handlers []Handler
	cancel   context.CancelFunc
}

// NewRedis wraps an existing client. prefix namespaces stream keys;
// it defaults to "agentkernel" when empty.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "agentkernel"
	}
	return &Redis{client: client, prefix: prefix, subs: make(map[string]*redisSubscription)}
}

func (t *Redis) streamKey(agentID string) string {
	return t.prefix + ":stream:" + agentID
}

// Send publishes msg onto the recipient's stream.
func (t *Redis) Send(ctx context.Context, msg kernel.Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("transport: marshal message: %w", err)
	}
	key := t.streamKey(msg.To)
	if err := t.client.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		Values: map[string]any{"data": string(b)},
	}).Err(); err != nil {
		return fmt.Errorf("transport: xadd %q: %w", key, err)
	}
	return nil
}

// Receive drains every entry currently on agentID's stream, deleting
// each one it returns.
func (t *Redis) Receive(ctx context.Context, agentID string) ([]kernel.Message, error) {
	key := t.streamKey(agentID)
	entries, err := t.client.XRange(ctx, key, "-", "+").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("transport: xrange %q: %w", key, err)
	}

	msgs := make([]kernel.Message, 0, len(entries))
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		msg, decErr := decodeEntry(e)
		if decErr != nil {
			continue
		}
		msgs = append(msgs, msg)
		ids = append(ids, e.ID)
	}
	if len(ids) > 0 {
		if err := t.client.XDel(ctx, key, ids...).Err(); err != nil {
			return nil, fmt.Errorf("transport: xdel %q: %w", key, err)
		}
	}
	return msgs, nil
}

// Subscribe installs handler for agentID, starting a background poll
// loop the first time an agent gets a subscriber. Stacked subscribes
// share one poll loop, matching the in-memory transport's semantics.
func (t *Redis) Subscribe(ctx context.Context, agentID string, handler Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	sub, exists := t.subs[agentID]
	if !exists {
		pollCtx, cancel := context.WithCancel(context.Background())
		sub = &redisSubscription{cancel: cancel}
		t.subs[agentID] = sub
		go t.poll(pollCtx, agentID, sub)
	}
	sub.handlers = append(sub.handlers, handler)
	return nil
}

// Unsubscribe stops the poll loop for agentID and drops its handlers.
func (t *Redis) Unsubscribe(ctx context.Context, agentID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if sub, ok := t.subs[agentID]; ok {
		sub.cancel()
		delete(t.subs, agentID)
	}
	return nil
}

// Cleanup stops every outstanding poll loop.
func (t *Redis) Cleanup(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, sub := range t.subs {
		sub.cancel()
		delete(t.subs, id)
	}
	return nil
}

func (t *Redis) poll(ctx context.Context, agentID string, sub *redisSubscription) {
	key := t.streamKey(agentID)
	lastID := "$"
	for {
		if ctx.Err() != nil {
			return
		}

		streams, err := t.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{key, lastID},
			Block:   2 * time.Second,
			Count:   50,
		}).Result()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}

		for _, stream := range streams {
			for _, entry := range stream.Messages {
				lastID = entry.ID
				msg, decErr := decodeEntry(entry)
				if decErr != nil {
					continue
				}

				t.mu.Lock()
				handlers := append([]Handler(nil), sub.handlers...)
				t.mu.Unlock()
				for _, h := range handlers {
					h(ctx, msg)
				}
				t.client.XDel(context.Background(), key, entry.ID)
			}
		}
	}
}

func decodeEntry(entry redis.XMessage) (kernel.Message, error) {
	raw, ok := entry.Values["data"].(string)
	if !ok {
		return kernel.Message{}, fmt.Errorf("transport: entry %s missing data field", entry.ID)
	}
	var msg kernel.Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return kernel.Message{}, fmt.Errorf("transport: decode entry %s: %w", entry.ID, err)
	}
	return msg, nil
}
