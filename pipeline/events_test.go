package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPublishDeliversToSubscribers(t *testing.T) {
	bus := NewEventBus()

	var got atomic.Int32
	bus.Subscribe(EventNoteModified, func(ctx context.Context, event Event) error {
		if event.NotePath() != "a.md" {
			t.Errorf("unexpected path %s", event.NotePath())
		}
		got.Add(1)
		return nil
	})
	bus.Subscribe(EventNoteModified, func(ctx context.Context, event Event) error {
		got.Add(1)
		return nil
	})

	bus.Publish(context.Background(), NoteModifiedEvent{Path: "a.md", Timestamp: time.Now()})

	if got.Load() != 2 {
		t.Errorf("expected 2 deliveries, got %d", got.Load())
	}
}

func TestPublishDispatchesByKind(t *testing.T) {
	bus := NewEventBus()

	var created, deleted atomic.Int32
	bus.Subscribe(EventNoteCreated, func(ctx context.Context, event Event) error {
		created.Add(1)
		return nil
	})
	bus.Subscribe(EventNoteDeleted, func(ctx context.Context, event Event) error {
		deleted.Add(1)
		return nil
	})

	bus.Publish(context.Background(), NoteCreatedEvent{Path: "a.md", Timestamp: time.Now()})

	if created.Load() != 1 {
		t.Errorf("expected 1 created delivery, got %d", created.Load())
	}
	if deleted.Load() != 0 {
		t.Errorf("deleted subscriber must not see created events, got %d", deleted.Load())
	}
}

func TestPublishNoSubscribersIsNoop(t *testing.T) {
	bus := NewEventBus()

	done := make(chan struct{})
	go func() {
		bus.Publish(context.Background(), NoteDeletedEvent{Path: "a.md", Timestamp: time.Now()})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish with no subscribers did not return")
	}
}

func TestSubscriberIsolation(t *testing.T) {
	bus := NewEventBus()

	var succeeded atomic.Int32
	bus.Subscribe(EventNoteModified, func(ctx context.Context, event Event) error {
		return errors.New("always fails")
	})
	bus.Subscribe(EventNoteModified, func(ctx context.Context, event Event) error {
		panic("subscriber panic")
	})
	bus.Subscribe(EventNoteModified, func(ctx context.Context, event Event) error {
		succeeded.Add(1)
		return nil
	})

	// Must not panic and must not skip the healthy subscriber.
	bus.Publish(context.Background(), NoteModifiedEvent{Path: "a.md", Timestamp: time.Now()})

	if succeeded.Load() != 1 {
		t.Errorf("expected healthy subscriber to run exactly once, got %d", succeeded.Load())
	}
}

func TestPublishWaitsForAllSubscribers(t *testing.T) {
	bus := NewEventBus()

	var mu sync.Mutex
	finished := 0
	for i := 0; i < 4; i++ {
		bus.Subscribe(EventNoteCreated, func(ctx context.Context, event Event) error {
			time.Sleep(20 * time.Millisecond)
			mu.Lock()
			finished++
			mu.Unlock()
			return nil
		})
	}

	bus.Publish(context.Background(), NoteCreatedEvent{Path: "a.md", Timestamp: time.Now()})

	mu.Lock()
	defer mu.Unlock()
	if finished != 4 {
		t.Errorf("publish returned before all subscribers finished: %d/4", finished)
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewEventBus()

	var calls atomic.Int32
	id := bus.Subscribe(EventNoteDeleted, func(ctx context.Context, event Event) error {
		calls.Add(1)
		return nil
	})

	if bus.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", bus.SubscriberCount())
	}

	bus.Unsubscribe(EventNoteDeleted, id)
	bus.Publish(context.Background(), NoteDeletedEvent{Path: "a.md", Timestamp: time.Now()})

	if calls.Load() != 0 {
		t.Errorf("unsubscribed callback was invoked %d times", calls.Load())
	}

	// Removing again is a no-op.
	bus.Unsubscribe(EventNoteDeleted, id)
}
