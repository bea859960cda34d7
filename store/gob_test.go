package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"
)

func testChunk(id, notePath string, seq int, vector []float32) Chunk {
	return Chunk{
		ID:        id,
		NotePath:  notePath,
		Seq:       seq,
		Content:   "content of " + id,
		Vector:    vector,
		UpdatedAt: time.Now(),
	}
}

func TestGOBStoreSaveAndSearch(t *testing.T) {
	s := NewGOBStore(filepath.Join(t.TempDir(), "index.gob"))
	ctx := context.Background()

	chunks := []Chunk{
		testChunk("c1", "notes/a.md", 0, []float32{1, 0, 0}),
		testChunk("c2", "notes/b.md", 0, []float32{0, 1, 0}),
		testChunk("c3", "notes/c.md", 0, []float32{0.9, 0.1, 0}),
	}
	if err := s.SaveChunks(ctx, chunks); err != nil {
		t.Fatal(err)
	}

	results, err := s.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Chunk.ID != "c1" {
		t.Errorf("expected c1 first, got %s", results[0].Chunk.ID)
	}
	if results[1].Chunk.ID != "c3" {
		t.Errorf("expected c3 second, got %s", results[1].Chunk.ID)
	}
	if results[0].Score < results[1].Score {
		t.Error("results not sorted by score descending")
	}
}

func TestGOBStoreDeleteByNote(t *testing.T) {
	s := NewGOBStore(filepath.Join(t.TempDir(), "index.gob"))
	ctx := context.Background()

	if err := s.SaveChunks(ctx, []Chunk{
		testChunk("c1", "notes/a.md", 0, []float32{1, 0}),
		testChunk("c2", "notes/a.md", 1, []float32{0, 1}),
		testChunk("c3", "notes/b.md", 0, []float32{1, 1}),
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveNote(ctx, NoteDoc{Path: "notes/a.md", ChunkIDs: []string{"c1", "c2"}}); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteByNote(ctx, "notes/a.md"); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteNote(ctx, "notes/a.md"); err != nil {
		t.Fatal(err)
	}

	all, err := s.GetAllChunks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].ID != "c3" {
		t.Errorf("expected only c3 to remain, got %v", all)
	}

	doc, err := s.GetNote(ctx, "notes/a.md")
	if err != nil {
		t.Fatal(err)
	}
	if doc != nil {
		t.Error("expected note metadata to be gone")
	}
}

func TestGOBStoreNoteMetadata(t *testing.T) {
	s := NewGOBStore(filepath.Join(t.TempDir(), "index.gob"))
	ctx := context.Background()

	doc := NoteDoc{
		Path:        "projects/alpha.md",
		Title:       "Alpha",
		Type:        "projects",
		Tags:        []string{"active", "q3"},
		Fingerprint: "abc123",
		ModTime:     time.Now(),
		ChunkIDs:    []string{"c1"},
	}
	if err := s.SaveNote(ctx, doc); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetNote(ctx, "projects/alpha.md")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("expected note metadata")
	}
	if got.Title != "Alpha" || got.Fingerprint != "abc123" {
		t.Errorf("unexpected metadata: %+v", got)
	}

	paths, err := s.ListNotes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 || paths[0] != "projects/alpha.md" {
		t.Errorf("unexpected note list: %v", paths)
	}
}

func TestGOBStorePersistAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.gob")
	ctx := context.Background()

	s := NewGOBStore(path)
	if err := s.SaveChunks(ctx, []Chunk{testChunk("c1", "a.md", 0, []float32{1, 2, 3})}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveNote(ctx, NoteDoc{Path: "a.md", ChunkIDs: []string{"c1"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Persist(ctx); err != nil {
		t.Fatal(err)
	}

	reloaded := NewGOBStore(path)
	if err := reloaded.Load(ctx); err != nil {
		t.Fatal(err)
	}

	chunks, err := reloaded.GetChunksForNote(ctx, "a.md")
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 || chunks[0].ID != "c1" {
		t.Fatalf("expected c1 after reload, got %v", chunks)
	}
	if chunks[0].Vector[2] != 3 {
		t.Errorf("vector not preserved: %v", chunks[0].Vector)
	}
}

func TestGOBStoreLoadMissingFile(t *testing.T) {
	s := NewGOBStore(filepath.Join(t.TempDir(), "missing.gob"))
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("load of a missing index must succeed empty, got %v", err)
	}
}

func TestGOBStoreStats(t *testing.T) {
	s := NewGOBStore(filepath.Join(t.TempDir(), "index.gob"))
	ctx := context.Background()

	if err := s.SaveChunks(ctx, []Chunk{
		testChunk("c1", "a.md", 0, []float32{1}),
		testChunk("c2", "a.md", 1, []float32{2}),
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveNote(ctx, NoteDoc{Path: "a.md", ChunkIDs: []string{"c1", "c2"}, ModTime: time.Now()}); err != nil {
		t.Fatal(err)
	}

	stats, err := s.GetStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalNotes != 1 || stats.TotalChunks != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	noteStats, err := s.ListNotesWithStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(noteStats) != 1 || noteStats[0].ChunkCount != 2 {
		t.Errorf("unexpected note stats: %+v", noteStats)
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"length mismatch", []float32{1, 0}, []float32{1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cosineSimilarity(tt.a, tt.b)
			if math.Abs(float64(got-tt.want)) > 1e-6 {
				t.Errorf("cosineSimilarity(%v, %v) = %f, want %f", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
