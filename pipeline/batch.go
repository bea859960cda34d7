package pipeline

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/vaultmind/vaultmind/vault"
)

// BatchStats summarizes one batch extraction run.
type BatchStats struct {
	EntitiesAdded      int
	RelationshipsAdded int
}

// BatchExtractor runs the expensive cross-note analysis over a set of
// parsed notes in one call.
type BatchExtractor interface {
	ExtractAndUpdate(ctx context.Context, notes []*vault.Note) (BatchStats, error)
}

// ExtractorFunc adapts a function to the BatchExtractor interface.
type ExtractorFunc func(ctx context.Context, notes []*vault.Note) (BatchStats, error)

func (f ExtractorFunc) ExtractAndUpdate(ctx context.Context, notes []*vault.Note) (BatchStats, error) {
	return f(ctx, notes)
}

// GraphBatcher coalesces settled paths into one extractor invocation per
// flush interval instead of re-analyzing after every save. At most one
// flush timer exists at a time; the pending set and the timer are cleared
// together, so paths enqueued while a flush runs start the next batch.
type GraphBatcher struct {
	interval  time.Duration
	parser    NoteParser
	extractor BatchExtractor

	mu      sync.Mutex
	pending map[string]struct{} // abs paths awaiting extraction
	timer   *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
}

func NewGraphBatcher(interval time.Duration, parser NoteParser, extractor BatchExtractor) *GraphBatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &GraphBatcher{
		interval:  interval,
		parser:    parser,
		extractor: extractor,
		pending:   make(map[string]struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Enqueue adds a path to the next batch, scheduling a flush if none is
// pending yet.
func (b *GraphBatcher) Enqueue(absPath string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending[absPath] = struct{}{}
	if b.timer == nil {
		b.timer = time.AfterFunc(b.interval, b.flush)
	}
}

// PendingCount reports how many paths await the next flush.
func (b *GraphBatcher) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Close stops the pending flush, dropping any queued paths.
func (b *GraphBatcher) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.pending = make(map[string]struct{})
}

func (b *GraphBatcher) flush() {
	b.mu.Lock()
	paths := make([]string, 0, len(b.pending))
	for p := range b.pending {
		paths = append(paths, p)
	}
	b.pending = make(map[string]struct{})
	b.timer = nil
	b.mu.Unlock()

	if len(paths) == 0 {
		return
	}

	notes := make([]*vault.Note, 0, len(paths))
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue // deleted since it settled
		}
		note, err := b.parser.ParseFile(p)
		if err != nil {
			log.Printf("Warning: graph batch: failed to parse %s: %v", p, err)
			continue
		}
		notes = append(notes, note)
	}
	if len(notes) == 0 {
		return
	}

	log.Printf("Graph batch: re-extracting %d notes", len(notes))
	stats, err := b.extractor.ExtractAndUpdate(b.ctx, notes)
	if err != nil {
		log.Printf("Warning: graph batch extraction failed: %v", err)
		return
	}
	log.Printf("Graph batch: +%d entities, +%d relationships", stats.EntitiesAdded, stats.RelationshipsAdded)
}
