package store

import (
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"
	"time"
)

type GOBStore struct {
	indexPath string
	lockPath  string
	chunks    map[string]Chunk   // id -> chunk
	notes     map[string]NoteDoc // path -> note metadata
	mu        sync.RWMutex
}

type gobData struct {
	Chunks map[string]Chunk
	Notes  map[string]NoteDoc
}

func NewGOBStore(indexPath string) *GOBStore {
	return &GOBStore{
		indexPath: indexPath,
		lockPath:  indexPath + ".lock",
		chunks:    make(map[string]Chunk),
		notes:     make(map[string]NoteDoc),
	}
}

func (s *GOBStore) SaveChunks(ctx context.Context, chunks []Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, chunk := range chunks {
		s.chunks[chunk.ID] = chunk
	}

	return nil
}

func (s *GOBStore) DeleteByNote(ctx context.Context, notePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.notes[notePath]
	if !ok {
		return nil
	}

	for _, chunkID := range doc.ChunkIDs {
		delete(s.chunks, chunkID)
	}

	return nil
}

func (s *GOBStore) Search(ctx context.Context, queryVector []float32, limit int) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]SearchResult, 0, len(s.chunks))

	for _, chunk := range s.chunks {
		score := cosineSimilarity(queryVector, chunk.Vector)
		results = append(results, SearchResult{
			Chunk: chunk,
			Score: score,
		})
	}

	// Sort by score descending
	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

func (s *GOBStore) GetNote(ctx context.Context, notePath string) (*NoteDoc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.notes[notePath]
	if !ok {
		return nil, nil
	}

	return &doc, nil
}

func (s *GOBStore) SaveNote(ctx context.Context, doc NoteDoc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notes[doc.Path] = doc
	return nil
}

func (s *GOBStore) DeleteNote(ctx context.Context, notePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.notes, notePath)
	return nil
}

func (s *GOBStore) ListNotes(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paths := make([]string, 0, len(s.notes))
	for path := range s.notes {
		paths = append(paths, path)
	}

	return paths, nil
}

func (s *GOBStore) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Acquire shared (read) file lock for cross-process safety
	lockFile, err := os.OpenFile(s.lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		// If we can't create lock file, proceed without locking
		return s.loadUnlocked()
	}
	defer lockFile.Close()

	if err := flockShared(lockFile); err != nil {
		return s.loadUnlocked()
	}
	defer func() {
		_ = funlock(lockFile)
	}()

	return s.loadUnlocked()
}

// loadUnlocked performs the actual load without any locking.
func (s *GOBStore) loadUnlocked() error {
	file, err := os.Open(s.indexPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open index file: %w", err)
	}
	defer file.Close()

	var data gobData
	decoder := gob.NewDecoder(file)
	if err := decoder.Decode(&data); err != nil {
		return fmt.Errorf("failed to decode index: %w", err)
	}

	s.chunks = data.Chunks
	s.notes = data.Notes

	if s.chunks == nil {
		s.chunks = make(map[string]Chunk)
	}
	if s.notes == nil {
		s.notes = make(map[string]NoteDoc)
	}

	return nil
}

func (s *GOBStore) Persist(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Acquire exclusive (write) file lock for cross-process safety
	lockFile, err := os.OpenFile(s.lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return s.persistUnlocked()
	}
	defer lockFile.Close()

	if err := flockExclusive(lockFile); err != nil {
		return s.persistUnlocked()
	}
	defer func() {
		_ = funlock(lockFile)
	}()

	return s.persistUnlocked()
}

// persistUnlocked performs the actual persist without any locking.
func (s *GOBStore) persistUnlocked() error {
	file, err := os.Create(s.indexPath)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	defer file.Close()

	data := gobData{
		Chunks: s.chunks,
		Notes:  s.notes,
	}

	encoder := gob.NewEncoder(file)
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}

	return nil
}

func (s *GOBStore) Close() error {
	return s.Persist(context.Background())
}

func (s *GOBStore) GetStats(ctx context.Context) (*IndexStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var lastUpdated time.Time
	for _, chunk := range s.chunks {
		if chunk.UpdatedAt.After(lastUpdated) {
			lastUpdated = chunk.UpdatedAt
		}
	}

	var size int64
	if info, err := os.Stat(s.indexPath); err == nil {
		size = info.Size()
	}

	return &IndexStats{
		TotalNotes:  len(s.notes),
		TotalChunks: len(s.chunks),
		IndexSize:   size,
		LastUpdated: lastUpdated,
	}, nil
}

func (s *GOBStore) ListNotesWithStats(ctx context.Context) ([]NoteStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make([]NoteStats, 0, len(s.notes))
	for _, doc := range s.notes {
		stats = append(stats, NoteStats{
			Path:       doc.Path,
			ChunkCount: len(doc.ChunkIDs),
			ModTime:    doc.ModTime,
		})
	}
	return stats, nil
}

func (s *GOBStore) GetChunksForNote(ctx context.Context, notePath string) ([]Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.notes[notePath]
	if !ok {
		return nil, nil
	}

	chunks := make([]Chunk, 0, len(doc.ChunkIDs))
	for _, id := range doc.ChunkIDs {
		if chunk, ok := s.chunks[id]; ok {
			chunks = append(chunks, chunk)
		}
	}
	return chunks, nil
}

func (s *GOBStore) GetAllChunks(ctx context.Context) ([]Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks := make([]Chunk, 0, len(s.chunks))
	for _, chunk := range s.chunks {
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// cosineSimilarity calculates the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64

	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return float32(dotProduct / (math.Sqrt(normA) * math.Sqrt(normB)))
}
