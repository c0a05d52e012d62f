package queue

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	events, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}

	sent := Event{Type: EventSessionClosed, SessionID: "s1", ClassID: "c1", At: time.Now().UTC()}
	if err := q.Publish(ctx, sent); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-events:
		if got.Type != sent.Type || got.SessionID != sent.SessionID || got.ClassID != sent.ClassID {
			t.Fatalf("got %+v, want %+v", got, sent)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestInMemoryPublishCancelled(t *testing.T) {
	q := NewInMemory(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := q.Publish(ctx, Event{Type: EventSessionOpened}); err == nil {
		t.Fatal("expected context error on full queue")
	}
}
