package pipeline

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/vaultmind/vaultmind/vault"
)

// NoteParser is the parsing collaborator consumed by the pipeline.
type NoteParser interface {
	ParseFile(absPath string) (*vault.Note, error)
	RelPath(absPath string) string
}

// NoteIndex is the indexing collaborator. IndexNote must remove any
// previously indexed chunks for the note before writing new ones.
type NoteIndex interface {
	IndexNote(ctx context.Context, note *vault.Note) (int, error)
	DeleteNote(ctx context.Context, relPath string) error
}

// HandlerConfig carries the watch-specific settings for a WatchHandler.
type HandlerConfig struct {
	DebounceInterval time.Duration
	// StabilityCheck re-reads the file after a second quiet interval and
	// only settles once two consecutive fingerprints match.
	StabilityCheck bool
	// ReextractGraph enqueues settled paths into the graph batcher.
	ReextractGraph bool
}

// WatchHandler turns raw filesystem notifications into settled, indexed,
// published note changes.
//
// Per-path state machine: Idle -> Debouncing (a pending timer exists) ->
// Stabilizing (second-read wait) -> Settled (indexed, event published) ->
// Idle. A deletion cancels any pending timer and goes straight to the
// delete action.
//
// HandleChange is safe to call from the watcher goroutine: it only
// manipulates the timer map and returns; all processing happens on timer
// goroutines.
type WatchHandler struct {
	cfg     HandlerConfig
	parser  NoteParser
	index   NoteIndex
	bus     *EventBus
	batcher *GraphBatcher // nil when graph re-extraction is off

	mu        sync.Mutex
	gen       uint64
	pending   map[string]*pendingChange // abs path -> pending debounce handle
	confirmed map[string]string         // abs path -> last successfully indexed fingerprint

	ctx    context.Context
	cancel context.CancelFunc
}

// pendingChange is one armed debounce handle. The generation ties a fired
// timer back to the map entry it armed: a notification that lands between
// the timer firing and its cycle taking the lock re-arms the path under a
// newer generation, and the stale cycle must abandon rather than run
// alongside the new one.
type pendingChange struct {
	timer *time.Timer
	gen   uint64
}

func NewWatchHandler(cfg HandlerConfig, parser NoteParser, index NoteIndex, bus *EventBus, batcher *GraphBatcher) *WatchHandler {
	ctx, cancel := context.WithCancel(context.Background())
	return &WatchHandler{
		cfg:       cfg,
		parser:    parser,
		index:     index,
		bus:       bus,
		batcher:   batcher,
		pending:   make(map[string]*pendingChange),
		confirmed: make(map[string]string),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// HandleChange is the entry point called for every raw filesystem
// notification. Rapid repeated calls for the same path coalesce: each call
// cancels and replaces the path's pending debounce timer.
func (h *WatchHandler) HandleChange(absPath string, kind vault.ChangeKind) {
	if kind == vault.ChangeDeleted {
		h.mu.Lock()
		if p, ok := h.pending[absPath]; ok {
			p.timer.Stop()
			delete(h.pending, absPath)
		}
		delete(h.confirmed, absPath)
		h.mu.Unlock()

		go h.processDelete(absPath)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if p, ok := h.pending[absPath]; ok {
		p.timer.Stop()
	}
	h.gen++
	gen := h.gen
	h.pending[absPath] = &pendingChange{
		gen: gen,
		timer: time.AfterFunc(h.cfg.DebounceInterval, func() {
			h.processChange(absPath, kind, gen)
		}),
	}
}

// PendingCount reports how many paths currently await debounce resolution.
func (h *WatchHandler) PendingCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

// TrackedFingerprints returns a copy of the confirmed fingerprint map.
func (h *WatchHandler) TrackedFingerprints() map[string]string {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]string, len(h.confirmed))
	for k, v := range h.confirmed {
		out[k] = v
	}
	return out
}

// Close cancels in-flight waits and stops all pending timers. Cycles that
// already passed their stability wait may still complete.
func (h *WatchHandler) Close() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()
	for path, p := range h.pending {
		p.timer.Stop()
		delete(h.pending, path)
	}
}

// processChange runs on the debounce timer goroutine once a path has been
// quiet for the debounce interval.
func (h *WatchHandler) processChange(absPath string, kind vault.ChangeKind, gen uint64) {
	h.mu.Lock()
	p, ok := h.pending[absPath]
	if !ok || p.gen != gen {
		// A newer notification re-armed the path before this cycle took
		// the lock; the newer cycle owns it now.
		h.mu.Unlock()
		return
	}
	delete(h.pending, absPath)
	confirmed, wasIndexed := h.confirmed[absPath]
	h.mu.Unlock()

	if _, err := os.Stat(absPath); err != nil {
		// File vanished before settling; a deletion event follows on its
		// own notification if the watcher saw it.
		return
	}

	current, err := Fingerprint(absPath)
	if err != nil {
		log.Printf("Warning: cannot read %s, skipping: %v", absPath, err)
		return
	}

	if wasIndexed && confirmed == current {
		log.Printf("Skipped unchanged %s", h.parser.RelPath(absPath))
		return
	}

	if h.cfg.StabilityCheck {
		// The file's content differs from what we indexed last. Hold the
		// candidate fingerprint, wait another quiet interval, and re-read:
		// only two consecutive identical reads count as settled.
		candidate := current

		select {
		case <-h.ctx.Done():
			return
		case <-time.After(h.cfg.DebounceInterval):
		}

		if _, err := os.Stat(absPath); err != nil {
			return
		}
		recheck, err := Fingerprint(absPath)
		if err != nil {
			log.Printf("Warning: cannot re-read %s, skipping: %v", absPath, err)
			return
		}
		if recheck != candidate {
			// Still being written. Treat it like a brand-new edit and run
			// the full debounce again; an editor that keeps writing keeps
			// pushing the settle out, and one that stops lets it land.
			h.HandleChange(absPath, kind)
			return
		}
		current = recheck

		// Another cycle may have settled this exact content while we sat
		// in the stability wait; indexing it again would publish a second
		// event for the same logical change.
		h.mu.Lock()
		confirmed, wasIndexed = h.confirmed[absPath]
		h.mu.Unlock()
		if wasIndexed && confirmed == current {
			return
		}
	}

	h.settle(absPath, kind, current)
}

// settle indexes the note and publishes the change. The confirmed
// fingerprint only advances after a successful index so that a failed
// write is retried by the next real edit.
func (h *WatchHandler) settle(absPath string, kind vault.ChangeKind, fingerprint string) {
	relPath := h.parser.RelPath(absPath)

	note, err := h.parser.ParseFile(absPath)
	if err != nil {
		log.Printf("Warning: failed to parse %s: %v", relPath, err)
		return
	}

	chunks, err := h.index.IndexNote(h.ctx, note)
	if err != nil {
		log.Printf("Error: failed to index %s: %v", relPath, err)
		return
	}

	h.mu.Lock()
	h.confirmed[absPath] = fingerprint
	h.mu.Unlock()

	log.Printf("Watch: %s %s (%d chunks)", kind, relPath, chunks)

	var event Event
	if kind == vault.ChangeCreated {
		event = NoteCreatedEvent{Path: relPath, Timestamp: time.Now(), Note: note, ChunksIndexed: chunks}
	} else {
		event = NoteModifiedEvent{Path: relPath, Timestamp: time.Now(), Note: note, ChunksIndexed: chunks}
	}
	h.bus.Publish(h.ctx, event)

	if h.cfg.ReextractGraph && h.batcher != nil {
		h.batcher.Enqueue(absPath)
	}
}

// processDelete removes the note from the index and announces the
// deletion. An index failure is logged but never blocks the event.
func (h *WatchHandler) processDelete(absPath string) {
	relPath := h.parser.RelPath(absPath)

	if err := h.index.DeleteNote(h.ctx, relPath); err != nil {
		log.Printf("Error: failed to delete index for %s: %v", relPath, err)
	}

	log.Printf("Watch: deleted %s", relPath)
	h.bus.Publish(h.ctx, NoteDeletedEvent{Path: relPath, Timestamp: time.Now()})
}
