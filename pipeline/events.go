package pipeline

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/vaultmind/vaultmind/vault"
)

// EventKind identifies the concrete type of a change event. The bus
// dispatches on this tag rather than on runtime type identity.
type EventKind int

const (
	EventNoteCreated EventKind = iota
	EventNoteModified
	EventNoteDeleted
)

func (k EventKind) String() string {
	switch k {
	case EventNoteCreated:
		return "note_created"
	case EventNoteModified:
		return "note_modified"
	case EventNoteDeleted:
		return "note_deleted"
	default:
		return "unknown"
	}
}

// Event is a change notification published after a note settles or is
// deleted. Implementations are immutable value types; consumers must not
// retain and mutate the carried note.
type Event interface {
	Kind() EventKind
	NotePath() string
	OccurredAt() time.Time
}

// NoteCreatedEvent is published after a brand-new note is indexed.
type NoteCreatedEvent struct {
	Path          string // vault-relative
	Timestamp     time.Time
	Note          *vault.Note
	ChunksIndexed int
}

func (e NoteCreatedEvent) Kind() EventKind       { return EventNoteCreated }
func (e NoteCreatedEvent) NotePath() string      { return e.Path }
func (e NoteCreatedEvent) OccurredAt() time.Time { return e.Timestamp }

// NoteModifiedEvent is published after an existing note is re-indexed.
type NoteModifiedEvent struct {
	Path          string
	Timestamp     time.Time
	Note          *vault.Note
	ChunksIndexed int
}

func (e NoteModifiedEvent) Kind() EventKind       { return EventNoteModified }
func (e NoteModifiedEvent) NotePath() string      { return e.Path }
func (e NoteModifiedEvent) OccurredAt() time.Time { return e.Timestamp }

// NoteDeletedEvent is published after a note is removed from the index.
type NoteDeletedEvent struct {
	Path      string
	Timestamp time.Time
}

func (e NoteDeletedEvent) Kind() EventKind       { return EventNoteDeleted }
func (e NoteDeletedEvent) NotePath() string      { return e.Path }
func (e NoteDeletedEvent) OccurredAt() time.Time { return e.Timestamp }

// SubscriberFunc handles one event. Errors are logged by the bus and never
// propagate to the publisher or to sibling subscribers.
type SubscriberFunc func(ctx context.Context, event Event) error

// SubscriberID identifies a registration for later removal.
type SubscriberID int

// EventBus is an in-process publish/subscribe router keyed by event kind.
// Delivery is at-most-once and synchronous to the publisher: Publish fans
// out to all subscribers concurrently and returns once every one has
// finished or failed. Nothing is queued or retried.
type EventBus struct {
	mu     sync.Mutex
	nextID SubscriberID
	subs   map[EventKind]map[SubscriberID]SubscriberFunc
}

func NewEventBus() *EventBus {
	return &EventBus{
		subs: make(map[EventKind]map[SubscriberID]SubscriberFunc),
	}
}

// Subscribe registers fn for events of the given kind. Delivery order
// across subscribers of the same kind is unspecified.
func (b *EventBus) Subscribe(kind EventKind, fn SubscriberFunc) SubscriberID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	if b.subs[kind] == nil {
		b.subs[kind] = make(map[SubscriberID]SubscriberFunc)
	}
	b.subs[kind][id] = fn
	return id
}

// Unsubscribe removes a previously registered subscriber. Removing an
// unknown id is a no-op.
func (b *EventBus) Unsubscribe(kind EventKind, id SubscriberID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[kind], id)
}

// SubscriberCount returns the total number of registrations across kinds.
func (b *EventBus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	total := 0
	for _, m := range b.subs {
		total += len(m)
	}
	return total
}

// Publish delivers event to every subscriber of its kind concurrently and
// waits for all of them. A subscriber error or panic is logged and does
// not abort the others. With no subscribers it returns immediately.
func (b *EventBus) Publish(ctx context.Context, event Event) {
	b.mu.Lock()
	registered := b.subs[event.Kind()]
	fns := make([]SubscriberFunc, 0, len(registered))
	for _, fn := range registered {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	if len(fns) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, fn := range fns {
		wg.Add(1)
		go func(fn SubscriberFunc) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Printf("Warning: subscriber panicked on %s: %v", event.Kind(), r)
				}
			}()
			if err := fn(ctx, event); err != nil {
				log.Printf("Warning: subscriber failed on %s for %s: %v", event.Kind(), event.NotePath(), err)
			}
		}(fn)
	}
	wg.Wait()
}
