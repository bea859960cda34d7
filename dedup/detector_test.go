package dedup

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vaultmind/vaultmind/pipeline"
	"github.com/vaultmind/vaultmind/store"
)

func seedStore(t *testing.T) *store.GOBStore {
	t.Helper()
	st := store.NewGOBStore(filepath.Join(t.TempDir(), "index.gob"))
	ctx := context.Background()

	long := strings.Repeat("content ", 20)
	chunks := []store.Chunk{
		{ID: "a1", NotePath: "a.md", Content: long, Vector: []float32{1, 0, 0}},
		{ID: "b1", NotePath: "b.md", Content: long, Vector: []float32{0.99, 0.05, 0}},
		{ID: "c1", NotePath: "c.md", Content: long, Vector: []float32{0.8, 0.6, 0}},
		{ID: "d1", NotePath: "d.md", Content: long, Vector: []float32{0, 0, 1}},
		{ID: "e1", NotePath: "tiny.md", Content: "x", Vector: []float32{1, 0, 0}},
	}
	if err := st.SaveChunks(ctx, chunks); err != nil {
		t.Fatal(err)
	}
	return st
}

func TestFindDuplicatesBands(t *testing.T) {
	d := NewDetector(Config{}, seedStore(t))

	matches, err := d.FindDuplicates(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	byPair := make(map[string]Match)
	for _, m := range matches {
		byPair[m.NoteA+"|"+m.NoteB] = m
	}

	ab, ok := byPair["a.md|b.md"]
	if !ok || ab.Band != BandDuplicate {
		t.Errorf("a.md/b.md should be a duplicate, got %+v", ab)
	}
	ac, ok := byPair["a.md|c.md"]
	if !ok || ac.Band != BandMergeCandidate {
		t.Errorf("a.md/c.md should be a merge candidate, got %+v", ac)
	}
	if _, ok := byPair["a.md|d.md"]; ok {
		t.Error("orthogonal notes must not match")
	}

	// Sorted by score descending.
	for i := 1; i < len(matches); i++ {
		if matches[i].Score > matches[i-1].Score {
			t.Errorf("matches not sorted by score: %v", matches)
		}
	}
}

func TestTinyNotesExcluded(t *testing.T) {
	d := NewDetector(Config{}, seedStore(t))

	matches, err := d.FindDuplicates(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range matches {
		if m.NoteA == "tiny.md" || m.NoteB == "tiny.md" {
			t.Errorf("tiny note should be excluded, got match %+v", m)
		}
	}
}

func TestResultsSnapshot(t *testing.T) {
	d := NewDetector(Config{}, seedStore(t))

	if got := d.Results(); len(got) != 0 {
		t.Errorf("expected no results before a scan, got %d", len(got))
	}

	matches, err := d.FindDuplicates(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got := d.Results(); len(got) != len(matches) {
		t.Errorf("snapshot has %d matches, scan returned %d", len(got), len(matches))
	}
}

func TestOnNoteChangedRescans(t *testing.T) {
	d := NewDetector(Config{}, seedStore(t))

	err := d.OnNoteChanged(context.Background(), pipeline.NoteModifiedEvent{
		Path:      "a.md",
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Results()) == 0 {
		t.Error("subscriber should have refreshed results")
	}
}

func TestCustomThresholds(t *testing.T) {
	// With a merge threshold of 0.99 only the a/b pair survives.
	d := NewDetector(Config{
		DuplicateThreshold: 0.995,
		MergeThreshold:     0.99,
	}, seedStore(t))

	matches, err := d.FindDuplicates(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range matches {
		if m.Score < 0.99 {
			t.Errorf("match below configured threshold: %+v", m)
		}
	}
}
