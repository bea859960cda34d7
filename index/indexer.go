package index

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vaultmind/vaultmind/embedder"
	"github.com/vaultmind/vaultmind/pipeline"
	"github.com/vaultmind/vaultmind/store"
	"github.com/vaultmind/vaultmind/vault"
)

// indexWorkers bounds how many notes embed concurrently during a full scan.
const indexWorkers = 4

// Indexer turns parsed notes into embedded chunks in the vector store.
type Indexer struct {
	parser   *vault.Parser
	store    store.VectorStore
	embedder embedder.Embedder
	chunker  *Chunker
}

// ScanStats summarizes a full vault scan.
type ScanStats struct {
	NotesIndexed  int
	NotesSkipped  int
	NotesRemoved  int
	ChunksCreated int
	Duration      time.Duration
}

func NewIndexer(parser *vault.Parser, st store.VectorStore, emb embedder.Embedder, chunker *Chunker) *Indexer {
	return &Indexer{
		parser:   parser,
		store:    st,
		embedder: emb,
		chunker:  chunker,
	}
}

// IndexNote replaces the note's chunks in the store with freshly embedded
// ones and updates the note metadata. Returns the number of chunks written.
func (idx *Indexer) IndexNote(ctx context.Context, note *vault.Note) (int, error) {
	// Remove existing chunks first so a shrinking note leaves nothing stale
	if err := idx.store.DeleteByNote(ctx, note.Path); err != nil {
		return 0, fmt.Errorf("failed to delete existing chunks: %w", err)
	}

	fingerprint, err := pipeline.Fingerprint(idx.absPath(note.Path))
	if err != nil {
		return 0, fmt.Errorf("failed to fingerprint %s: %w", note.Path, err)
	}

	chunkInfos := idx.chunker.Chunk(note)

	now := time.Now()
	chunkIDs := make([]string, 0, len(chunkInfos))

	if len(chunkInfos) > 0 {
		contents := make([]string, len(chunkInfos))
		for i, info := range chunkInfos {
			contents[i] = info.Content
		}

		vectors, err := idx.embedder.EmbedBatch(ctx, contents)
		if err != nil {
			return 0, fmt.Errorf("failed to embed chunks: %w", err)
		}

		chunks := make([]store.Chunk, len(chunkInfos))
		for i, info := range chunkInfos {
			chunks[i] = store.Chunk{
				ID:          info.ID,
				NotePath:    note.Path,
				Heading:     info.Heading,
				Seq:         info.Seq,
				Content:     info.Content,
				Vector:      vectors[i],
				Fingerprint: fingerprint,
				UpdatedAt:   now,
			}
			chunkIDs = append(chunkIDs, info.ID)
		}

		if err := idx.store.SaveChunks(ctx, chunks); err != nil {
			return 0, fmt.Errorf("failed to save chunks: %w", err)
		}
	}

	doc := store.NoteDoc{
		Path:        note.Path,
		Title:       note.Title,
		Type:        note.Type,
		Tags:        note.Tags,
		Fingerprint: fingerprint,
		ModTime:     note.Modified,
		ChunkIDs:    chunkIDs,
	}
	if err := idx.store.SaveNote(ctx, doc); err != nil {
		return 0, fmt.Errorf("failed to save note metadata: %w", err)
	}

	return len(chunkIDs), nil
}

// DeleteNote removes the note's chunks and metadata from the store.
func (idx *Indexer) DeleteNote(ctx context.Context, relPath string) error {
	if err := idx.store.DeleteByNote(ctx, relPath); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if err := idx.store.DeleteNote(ctx, relPath); err != nil {
		return fmt.Errorf("failed to delete note metadata: %w", err)
	}
	return nil
}

// NeedsReindex reports whether the stored fingerprint for the note differs
// from the given one.
func (idx *Indexer) NeedsReindex(ctx context.Context, relPath, fingerprint string) (bool, error) {
	doc, err := idx.store.GetNote(ctx, relPath)
	if err != nil {
		return false, err
	}
	if doc == nil {
		return true, nil
	}
	return doc.Fingerprint != fingerprint, nil
}

// IndexAll walks the whole vault, indexing changed notes in parallel and
// removing store entries whose notes no longer exist.
func (idx *Indexer) IndexAll(ctx context.Context) (*ScanStats, error) {
	start := time.Now()
	stats := &ScanStats{}

	notes, err := idx.parser.IterNotes()
	if err != nil {
		return nil, fmt.Errorf("failed to walk vault: %w", err)
	}

	existing, err := idx.store.ListNotes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexed notes: %w", err)
	}
	stale := make(map[string]bool, len(existing))
	for _, path := range existing {
		stale[path] = true
	}

	var toIndex []*vault.Note
	for _, note := range notes {
		delete(stale, note.Path)

		fingerprint, err := pipeline.Fingerprint(idx.absPath(note.Path))
		if err != nil {
			log.Printf("Warning: cannot fingerprint %s: %v", note.Path, err)
			continue
		}
		needed, err := idx.NeedsReindex(ctx, note.Path, fingerprint)
		if err != nil {
			return nil, err
		}
		if !needed {
			stats.NotesSkipped++
			continue
		}
		toIndex = append(toIndex, note)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(indexWorkers)

	for _, note := range toIndex {
		note := note
		g.Go(func() error {
			chunks, err := idx.IndexNote(gctx, note)
			if err != nil {
				log.Printf("Warning: failed to index %s: %v", note.Path, err)
				return nil
			}
			mu.Lock()
			stats.NotesIndexed++
			stats.ChunksCreated += chunks
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for path := range stale {
		if err := idx.DeleteNote(ctx, path); err != nil {
			log.Printf("Warning: failed to remove %s from index: %v", path, err)
			continue
		}
		stats.NotesRemoved++
	}

	stats.Duration = time.Since(start)
	return stats, nil
}

func (idx *Indexer) absPath(relPath string) string {
	return filepath.Join(idx.parser.Root(), filepath.FromSlash(relPath))
}
