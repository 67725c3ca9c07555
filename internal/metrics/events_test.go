package metrics

import "testing"

func TestInMemoryRecorderTalliesEventsByName(t *testing.T) {
	r := NewInMemoryRecorder()
	r.PublishEvent(EventAgentStarted, "a1", nil)
	r.PublishEvent(EventAgentStarted, "a2", nil)
	r.PublishEvent(EventAgentCompleted, "a1", nil)

	snap := r.Snapshot()
	if snap.EventCounts[EventAgentStarted] != 2 {
		t.Fatalf("expected 2 agent.started, got %d", snap.EventCounts[EventAgentStarted])
	}
	if snap.EventCounts[EventAgentCompleted] != 1 {
		t.Fatalf("expected 1 agent.completed, got %d", snap.EventCounts[EventAgentCompleted])
	}
	if snap.EventCounts[EventAgentFailed] != 0 {
		t.Fatalf("expected 0 agent.failed, got %d", snap.EventCounts[EventAgentFailed])
	}
}

type stubPublisher struct {
	calls int
}

func (s *stubPublisher) PublishEvent(Event, string, map[string]string) {
	s.calls++
}

func TestMultiPublisherFansOutAndDropsNils(t *testing.T) {
	a := &stubPublisher{}
	b := &stubPublisher{}
	mp := NewMultiPublisher(a, nil, b)

	mp.PublishEvent(EventMessageSent, "agent", map[string]string{"to": "other"})

	if a.calls != 1 || b.calls != 1 {
		t.Fatalf("expected both publishers to receive the event, got a=%d b=%d", a.calls, b.calls)
	}
}

func TestNoopPublisherDoesNotPanic(t *testing.T) {
	var pub EventPublisher = NoopPublisher{}
	pub.PublishEvent(EventCircuitBreakerOpened, "agent", nil)
}
