package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/vaultmind/vaultmind/vault"
)

type fakeIndex struct {
	mu        sync.Mutex
	indexed   []*vault.Note
	deleted   []string
	indexErr  error
	deleteErr error
}

func (f *fakeIndex) IndexNote(ctx context.Context, note *vault.Note) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexErr != nil {
		return 0, f.indexErr
	}
	f.indexed = append(f.indexed, note)
	return 1, nil
}

func (f *fakeIndex) DeleteNote(ctx context.Context, relPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, relPath)
	return f.deleteErr
}

func (f *fakeIndex) indexedNotes() []*vault.Note {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*vault.Note(nil), f.indexed...)
}

func (f *fakeIndex) deletedPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func (f *fakeIndex) setIndexErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexErr = err
}

// eventRecorder collects every published event for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) subscribeAll(bus *EventBus) {
	record := func(ctx context.Context, event Event) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, event)
		return nil
	}
	bus.Subscribe(EventNoteCreated, record)
	bus.Subscribe(EventNoteModified, record)
	bus.Subscribe(EventNoteDeleted, record)
}

func (r *eventRecorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func newTestHandler(t *testing.T, root string, cfg HandlerConfig, idx *fakeIndex) (*WatchHandler, *eventRecorder) {
	t.Helper()
	bus := NewEventBus()
	rec := &eventRecorder{}
	rec.subscribeAll(bus)

	h := NewWatchHandler(cfg, vault.NewParser(root, nil), idx, bus, nil)
	t.Cleanup(h.Close)
	return h, rec
}

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestCoalescesRapidModifications(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "note.md")
	write(t, path, "v1")

	idx := &fakeIndex{}
	h, rec := newTestHandler(t, root, HandlerConfig{
		DebounceInterval: 50 * time.Millisecond,
		StabilityCheck:   false,
	}, idx)

	// Three notifications for one logical edit, well within the window.
	h.HandleChange(path, vault.ChangeModified)
	time.Sleep(5 * time.Millisecond)
	h.HandleChange(path, vault.ChangeModified)
	time.Sleep(5 * time.Millisecond)
	h.HandleChange(path, vault.ChangeModified)

	time.Sleep(200 * time.Millisecond)

	notes := idx.indexedNotes()
	if len(notes) != 1 {
		t.Fatalf("expected exactly 1 index call, got %d", len(notes))
	}
	if notes[0].Body != "v1" {
		t.Errorf("expected final content indexed, got %q", notes[0].Body)
	}

	events := rec.all()
	if len(events) != 1 {
		t.Fatalf("expected exactly 1 event, got %d", len(events))
	}
	if events[0].Kind() != EventNoteModified {
		t.Errorf("expected note_modified, got %s", events[0].Kind())
	}
	if h.PendingCount() != 0 {
		t.Errorf("expected no pending timers, got %d", h.PendingCount())
	}
}

func TestSkipsUnchangedContent(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "note.md")
	write(t, path, "same content")

	idx := &fakeIndex{}
	h, rec := newTestHandler(t, root, HandlerConfig{
		DebounceInterval: 20 * time.Millisecond,
		StabilityCheck:   false,
	}, idx)

	h.HandleChange(path, vault.ChangeModified)
	time.Sleep(100 * time.Millisecond)

	// A spurious notification with unchanged content must do nothing.
	h.HandleChange(path, vault.ChangeModified)
	time.Sleep(100 * time.Millisecond)

	if got := len(idx.indexedNotes()); got != 1 {
		t.Errorf("expected 1 index call, got %d", got)
	}
	if got := len(rec.all()); got != 1 {
		t.Errorf("expected 1 event, got %d", got)
	}
}

func TestStabilitySettlesOnOverwriteDuringDebounce(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "note.md")
	write(t, path, "a")

	idx := &fakeIndex{}
	h, rec := newTestHandler(t, root, HandlerConfig{
		DebounceInterval: 20 * time.Millisecond,
		StabilityCheck:   true,
	}, idx)

	h.HandleChange(path, vault.ChangeModified)
	time.Sleep(5 * time.Millisecond)
	write(t, path, "b")

	time.Sleep(200 * time.Millisecond)

	notes := idx.indexedNotes()
	if len(notes) != 1 {
		t.Fatalf("expected exactly 1 settle, got %d", len(notes))
	}
	if notes[0].Body != "b" {
		t.Errorf("expected final content settled, got %q", notes[0].Body)
	}

	want, err := Fingerprint(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := h.TrackedFingerprints()[path]; got != want {
		t.Errorf("confirmed fingerprint = %s, want fingerprint of final content %s", got, want)
	}
	if got := len(rec.all()); got != 1 {
		t.Errorf("expected 1 event, got %d", got)
	}
}

func TestStabilityRetryTerminates(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "note.md")
	write(t, path, "v1")

	idx := &fakeIndex{}
	h, rec := newTestHandler(t, root, HandlerConfig{
		DebounceInterval: 30 * time.Millisecond,
		StabilityCheck:   true,
	}, idx)

	h.HandleChange(path, vault.ChangeModified)

	// Change the content once mid-stability-wait, then stop writing.
	time.Sleep(45 * time.Millisecond)
	write(t, path, "v2")

	time.Sleep(400 * time.Millisecond)

	notes := idx.indexedNotes()
	if len(notes) != 1 {
		t.Fatalf("expected exactly 1 settle after retry, got %d", len(notes))
	}
	if notes[0].Body != "v2" {
		t.Errorf("expected retried settle to index final content, got %q", notes[0].Body)
	}
	if got := len(rec.all()); got != 1 {
		t.Errorf("expected exactly 1 event, got %d", got)
	}
}

func TestVanishedFileBeforeDebounce(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "note.md")
	write(t, path, "ephemeral")

	idx := &fakeIndex{}
	h, rec := newTestHandler(t, root, HandlerConfig{
		DebounceInterval: 30 * time.Millisecond,
		StabilityCheck:   true,
	}, idx)

	h.HandleChange(path, vault.ChangeModified)
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	time.Sleep(150 * time.Millisecond)

	if got := len(idx.indexedNotes()); got != 0 {
		t.Errorf("expected no index calls for vanished file, got %d", got)
	}
	if got := len(rec.all()); got != 0 {
		t.Errorf("expected no events for vanished file, got %d", got)
	}
}

func TestDeletePublishesDespiteIndexError(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "gone.md")

	idx := &fakeIndex{deleteErr: errors.New("store unavailable")}
	h, rec := newTestHandler(t, root, HandlerConfig{
		DebounceInterval: 20 * time.Millisecond,
	}, idx)

	h.HandleChange(path, vault.ChangeDeleted)
	time.Sleep(100 * time.Millisecond)

	if got := idx.deletedPaths(); len(got) != 1 || got[0] != "gone.md" {
		t.Errorf("expected delete attempt for gone.md, got %v", got)
	}

	events := rec.all()
	if len(events) != 1 {
		t.Fatalf("expected deletion event despite index error, got %d events", len(events))
	}
	if events[0].Kind() != EventNoteDeleted || events[0].NotePath() != "gone.md" {
		t.Errorf("unexpected event %s for %s", events[0].Kind(), events[0].NotePath())
	}
}

func TestDeleteCancelsPendingDebounce(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "note.md")
	write(t, path, "content")

	idx := &fakeIndex{}
	h, rec := newTestHandler(t, root, HandlerConfig{
		DebounceInterval: 50 * time.Millisecond,
	}, idx)

	h.HandleChange(path, vault.ChangeModified)
	h.HandleChange(path, vault.ChangeDeleted)

	time.Sleep(200 * time.Millisecond)

	if got := len(idx.indexedNotes()); got != 0 {
		t.Errorf("pending debounce should have been cancelled, got %d index calls", got)
	}

	events := rec.all()
	if len(events) != 1 || events[0].Kind() != EventNoteDeleted {
		t.Fatalf("expected only a deletion event, got %v", events)
	}
	if h.PendingCount() != 0 {
		t.Errorf("expected no pending timers, got %d", h.PendingCount())
	}
}

func TestIndexFailureLeavesFingerprintUnchanged(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "note.md")
	write(t, path, "v1")

	idx := &fakeIndex{indexErr: errors.New("write rejected")}
	h, rec := newTestHandler(t, root, HandlerConfig{
		DebounceInterval: 20 * time.Millisecond,
		StabilityCheck:   false,
	}, idx)

	h.HandleChange(path, vault.ChangeModified)
	time.Sleep(100 * time.Millisecond)

	if got := len(rec.all()); got != 0 {
		t.Fatalf("expected no event after index failure, got %d", got)
	}
	if got := len(h.TrackedFingerprints()); got != 0 {
		t.Fatalf("index failure must not advance the confirmed fingerprint")
	}

	// The store recovers; the same content must be retried on the next
	// notification because the fingerprint never advanced.
	idx.setIndexErr(nil)
	h.HandleChange(path, vault.ChangeModified)
	time.Sleep(100 * time.Millisecond)

	if got := len(idx.indexedNotes()); got != 1 {
		t.Errorf("expected retry to index once, got %d", got)
	}
	if got := len(rec.all()); got != 1 {
		t.Errorf("expected one event after recovery, got %d", got)
	}
}

func TestStaleCycleAbandonsAfterReplacement(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "note.md")
	write(t, path, "v1")

	idx := &fakeIndex{}
	h, rec := newTestHandler(t, root, HandlerConfig{
		DebounceInterval: 30 * time.Millisecond,
		StabilityCheck:   true,
	}, idx)

	h.HandleChange(path, vault.ChangeModified)

	// A timer from an earlier notification fires but loses the race to the
	// lock: by the time it runs, the path has been re-armed under a newer
	// generation. The stale cycle must leave the live handle alone.
	h.processChange(path, vault.ChangeModified, 0)

	if got := len(idx.indexedNotes()); got != 0 {
		t.Fatalf("stale cycle must not index, got %d calls", got)
	}
	if got := h.PendingCount(); got != 1 {
		t.Fatalf("stale cycle must not tear down the live handle, pending = %d", got)
	}

	time.Sleep(200 * time.Millisecond)

	if got := len(idx.indexedNotes()); got != 1 {
		t.Errorf("expected exactly 1 index call, got %d", got)
	}
	if got := len(rec.all()); got != 1 {
		t.Errorf("expected exactly 1 event, got %d", got)
	}
}

func TestOverlappingCyclesPublishOnce(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "note.md")
	write(t, path, "one edit")

	idx := &fakeIndex{}
	h, rec := newTestHandler(t, root, HandlerConfig{
		DebounceInterval: 30 * time.Millisecond,
		StabilityCheck:   true,
	}, idx)

	h.HandleChange(path, vault.ChangeModified)

	// First cycle fires at 30ms and sits in its stability wait. Start a
	// second full cycle for the same unchanged content while the first is
	// still in flight.
	time.Sleep(45 * time.Millisecond)
	h.mu.Lock()
	h.gen++
	gen := h.gen
	h.pending[path] = &pendingChange{gen: gen, timer: time.AfterFunc(time.Hour, func() {})}
	h.mu.Unlock()
	go h.processChange(path, vault.ChangeModified, gen)

	time.Sleep(300 * time.Millisecond)

	if got := len(idx.indexedNotes()); got != 1 {
		t.Errorf("one logical change must index once, got %d calls", got)
	}
	if got := len(rec.all()); got != 1 {
		t.Errorf("one logical change must publish once, got %d events", got)
	}
}

func TestSettleEnqueuesGraphBatch(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "note.md")
	write(t, path, "content for the graph")

	parser := vault.NewParser(root, nil)
	batcher := NewGraphBatcher(time.Hour, parser, ExtractorFunc(
		func(ctx context.Context, notes []*vault.Note) (BatchStats, error) {
			return BatchStats{}, nil
		}))
	t.Cleanup(batcher.Close)

	bus := NewEventBus()
	idx := &fakeIndex{}
	h := NewWatchHandler(HandlerConfig{
		DebounceInterval: 20 * time.Millisecond,
		ReextractGraph:   true,
	}, parser, idx, bus, batcher)
	t.Cleanup(h.Close)

	h.HandleChange(path, vault.ChangeModified)
	time.Sleep(100 * time.Millisecond)

	if got := batcher.PendingCount(); got != 1 {
		t.Errorf("expected 1 path queued for graph extraction, got %d", got)
	}
}
