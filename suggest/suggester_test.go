package suggest

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vaultmind/vaultmind/graph"
	"github.com/vaultmind/vaultmind/pipeline"
	"github.com/vaultmind/vaultmind/store"
	"github.com/vaultmind/vaultmind/vault"
)

// seedVault builds a store where, seen from atlas.md, beacon.md (0.75) and
// cairn.md (0.78) sit inside the suggestion band, atlas-copy.md (0.99) is
// duplicate territory, and noise.md (0.0) is unrelated.
func seedVault(t *testing.T) *store.GOBStore {
	t.Helper()
	st := store.NewGOBStore(filepath.Join(t.TempDir(), "index.gob"))
	ctx := context.Background()

	long := strings.Repeat("content ", 20)
	notes := []struct {
		path, title, chunkID string
		vector               []float32
	}{
		{"projects/atlas.md", "Atlas", "atlas-1", []float32{1, 0, 0}},
		{"projects/beacon.md", "Beacon", "beacon-1", []float32{0.75, 0.6614, 0}},
		{"projects/cairn.md", "Cairn", "cairn-1", []float32{0.78, 0.6258, 0}},
		{"projects/atlas-copy.md", "Atlas Copy", "copy-1", []float32{0.99, 0.141, 0}},
		{"journal/noise.md", "Noise", "noise-1", []float32{0, 0, 1}},
	}

	for _, n := range notes {
		err := st.SaveChunks(ctx, []store.Chunk{
			{ID: n.chunkID, NotePath: n.path, Content: long, Vector: n.vector},
		})
		if err != nil {
			t.Fatal(err)
		}
		err = st.SaveNote(ctx, store.NoteDoc{Path: n.path, Title: n.title, ChunkIDs: []string{n.chunkID}})
		if err != nil {
			t.Fatal(err)
		}
	}
	return st
}

func atlasNote() *vault.Note {
	return &vault.Note{
		Path:  "projects/atlas.md",
		Title: "Atlas",
		Body:  strings.Repeat("atlas project notes ", 10),
	}
}

func TestSuggestLinksBand(t *testing.T) {
	s := NewSuggester(Config{}, seedVault(t), nil)

	got, err := s.SuggestLinks(context.Background(), atlasNote())
	if err != nil {
		t.Fatal(err)
	}

	byTarget := make(map[string]Suggestion)
	for _, sg := range got {
		byTarget[sg.TargetPath] = sg
	}

	if _, ok := byTarget["projects/beacon.md"]; !ok {
		t.Error("beacon.md is in the suggestion band and should be suggested")
	}
	if _, ok := byTarget["projects/cairn.md"]; !ok {
		t.Error("cairn.md is in the suggestion band and should be suggested")
	}
	if _, ok := byTarget["projects/atlas-copy.md"]; ok {
		t.Error("atlas-copy.md is duplicate territory, not a link suggestion")
	}
	if _, ok := byTarget["journal/noise.md"]; ok {
		t.Error("noise.md is unrelated and should not be suggested")
	}
	if _, ok := byTarget["projects/atlas.md"]; ok {
		t.Error("a note must not suggest linking to itself")
	}

	// Without graph signals the order follows raw similarity.
	if len(got) != 2 || got[0].TargetPath != "projects/cairn.md" {
		t.Errorf("expected cairn.md first by similarity, got %+v", got)
	}
}

func TestExistingLinksExcluded(t *testing.T) {
	s := NewSuggester(Config{}, seedVault(t), nil)

	note := atlasNote()
	note.Links = []string{"Cairn"}

	got, err := s.SuggestLinks(context.Background(), note)
	if err != nil {
		t.Fatal(err)
	}
	for _, sg := range got {
		if sg.TargetPath == "projects/cairn.md" {
			t.Error("an already-linked note should not be re-suggested")
		}
	}
	if len(got) != 1 || got[0].TargetPath != "projects/beacon.md" {
		t.Errorf("expected only beacon.md, got %+v", got)
	}
}

func TestShortNotesSkipped(t *testing.T) {
	s := NewSuggester(Config{}, seedVault(t), nil)

	note := atlasNote()
	note.Body = "stub"

	got, err := s.SuggestLinks(context.Background(), note)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("stub note should yield no suggestions, got %+v", got)
	}
	if s.Count() != 0 {
		t.Errorf("no results should be cached, count = %d", s.Count())
	}
}

func TestGraphSignalsBoostScore(t *testing.T) {
	kg := graph.NewKnowledgeGraph(filepath.Join(t.TempDir(), "graph.json"))
	kg.AddEntity("Atlas", "project", 0.9, "projects/atlas.md")
	kg.AddEntity("Beacon", "project", 0.9, "projects/beacon.md")
	kg.AddEntity("Engine", "concept", 0.9, "projects/atlas.md")
	kg.AddEntity("Engine", "concept", 0.9, "projects/beacon.md")
	kg.AddRelationship("Atlas", "Beacon", "references", 0.9, "projects/atlas.md")

	s := NewSuggester(Config{}, seedVault(t), kg)

	got, err := s.SuggestLinks(context.Background(), atlasNote())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 suggestions, got %d", len(got))
	}

	// Beacon's shared entity and one-hop graph path outweigh cairn's
	// slightly higher raw similarity.
	if got[0].TargetPath != "projects/beacon.md" {
		t.Errorf("expected beacon.md ranked first with graph signals, got %s", got[0].TargetPath)
	}
	beacon := got[0]
	if len(beacon.SharedEntities) != 1 || beacon.SharedEntities[0] != "Engine" {
		t.Errorf("expected shared entity [Engine], got %v", beacon.SharedEntities)
	}
	if beacon.GraphDistance != 1 {
		t.Errorf("expected graph distance 1, got %d", beacon.GraphDistance)
	}
	if beacon.CompositeScore <= beacon.Similarity {
		t.Errorf("composite score should exceed raw similarity, got %.3f <= %.3f",
			beacon.CompositeScore, beacon.Similarity)
	}

	cairn := got[1]
	if cairn.GraphDistance != -1 {
		t.Errorf("cairn.md has no graph path, expected distance -1, got %d", cairn.GraphDistance)
	}
}

func TestOnNoteChangedLifecycle(t *testing.T) {
	s := NewSuggester(Config{}, seedVault(t), nil)
	ctx := context.Background()

	err := s.OnNoteChanged(ctx, pipeline.NoteModifiedEvent{
		Path:      "projects/atlas.md",
		Timestamp: time.Now(),
		Note:      atlasNote(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Results("projects/atlas.md")) == 0 {
		t.Fatal("subscriber should have cached suggestions for the settled note")
	}
	if s.Count() != 1 {
		t.Errorf("count = %d, want 1", s.Count())
	}

	err = s.OnNoteChanged(ctx, pipeline.NoteDeletedEvent{
		Path:      "projects/atlas.md",
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Results("projects/atlas.md")) != 0 {
		t.Error("deletion should drop the note's suggestions")
	}
}

func TestOnNoteChangedWithoutNote(t *testing.T) {
	s := NewSuggester(Config{}, seedVault(t), nil)

	err := s.OnNoteChanged(context.Background(), pipeline.NoteModifiedEvent{
		Path:      "projects/atlas.md",
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if s.Count() != 0 {
		t.Errorf("event without a parsed note should be a no-op, count = %d", s.Count())
	}
}

func TestScanVault(t *testing.T) {
	s := NewSuggester(Config{}, seedVault(t), nil)

	noise := &vault.Note{
		Path:  "journal/noise.md",
		Title: "Noise",
		Body:  strings.Repeat("unrelated journaling ", 10),
	}

	all, err := s.ScanVault(context.Background(), []*vault.Note{atlasNote(), noise})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := all["projects/atlas.md"]; !ok {
		t.Error("atlas.md should carry suggestions after a vault scan")
	}
	if _, ok := all["journal/noise.md"]; ok {
		t.Error("noise.md has no in-band neighbors and should be absent")
	}
}
