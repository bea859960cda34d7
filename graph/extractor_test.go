package graph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/vaultmind/vaultmind/vault"
)

func TestStructuralExtraction(t *testing.T) {
	g := NewKnowledgeGraph(filepath.Join(t.TempDir(), "graph.json"))
	e := NewExtractor(ExtractorConfig{MinConfidence: 0.5}, g) // no endpoint: structural only

	note := &vault.Note{
		Path:     "projects/atlas.md",
		Title:    "Atlas",
		Body:     "Kickoff with [[Jane Doe]].",
		Links:    []string{"Jane Doe"},
		Entities: []string{"Roadmap"},
	}

	stats, err := e.ExtractAndUpdate(context.Background(), []*vault.Note{note})
	if err != nil {
		t.Fatal(err)
	}
	if stats.EntitiesAdded != 3 {
		t.Errorf("expected 3 entities (note, link, frontmatter), got %d", stats.EntitiesAdded)
	}
	if stats.RelationshipsAdded != 2 {
		t.Errorf("expected 2 relationships, got %d", stats.RelationshipsAdded)
	}

	if g.GetEntity("Jane Doe") == nil {
		t.Error("wikilink target missing from graph")
	}
	rels := g.Neighbors("Atlas")
	if len(rels) != 2 {
		t.Errorf("expected 2 edges on Atlas, got %d", len(rels))
	}
}

func TestLLMExtraction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		// Models often wrap JSON in a code fence; the extractor must cope.
		content := "```json\n" + `{"entities":[{"name":"Jane Doe","type":"person","confidence":0.95},{"name":"Maybe","type":"concept","confidence":0.3}],"relationships":[{"source":"Atlas","target":"Jane Doe","type":"led_by","confidence":0.9}]}` + "\n```"
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": content}},
			},
		})
	}))
	defer server.Close()

	g := NewKnowledgeGraph(filepath.Join(t.TempDir(), "graph.json"))
	e := NewExtractor(ExtractorConfig{
		Model:         "test-model",
		Endpoint:      server.URL,
		MinConfidence: 0.6,
	}, g)

	note := &vault.Note{Path: "projects/atlas.md", Title: "Atlas", Body: "Kickoff notes."}
	stats, err := e.ExtractAndUpdate(context.Background(), []*vault.Note{note})
	if err != nil {
		t.Fatal(err)
	}

	if stats.EntitiesAdded != 1 {
		t.Errorf("low-confidence entity should be filtered, got %d added", stats.EntitiesAdded)
	}
	if g.GetEntity("Maybe") != nil {
		t.Error("entity below min confidence must not enter the graph")
	}
	if g.GetEntity("Jane Doe") == nil {
		t.Error("extracted entity missing")
	}
	if stats.RelationshipsAdded != 1 {
		t.Errorf("expected 1 relationship, got %d", stats.RelationshipsAdded)
	}
}

func TestLLMFailureFallsBackToStructural(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	g := NewKnowledgeGraph(filepath.Join(t.TempDir(), "graph.json"))
	e := NewExtractor(ExtractorConfig{Endpoint: server.URL, MinConfidence: 0.5}, g)

	note := &vault.Note{
		Path:  "a.md",
		Title: "Alpha",
		Links: []string{"Beta"},
	}
	if _, err := e.ExtractAndUpdate(context.Background(), []*vault.Note{note}); err != nil {
		t.Fatal(err)
	}

	if g.GetEntity("Beta") == nil {
		t.Error("structural fallback should have extracted the wikilink")
	}
}

func TestReextractionDropsStaleObservations(t *testing.T) {
	g := NewKnowledgeGraph(filepath.Join(t.TempDir(), "graph.json"))
	e := NewExtractor(ExtractorConfig{MinConfidence: 0.5}, g)
	ctx := context.Background()

	v1 := &vault.Note{Path: "a.md", Title: "Alpha", Links: []string{"Old Friend"}}
	if _, err := e.ExtractAndUpdate(ctx, []*vault.Note{v1}); err != nil {
		t.Fatal(err)
	}
	if g.GetEntity("Old Friend") == nil {
		t.Fatal("setup failed")
	}

	// The edit removed the link; re-extraction must drop the old entity.
	v2 := &vault.Note{Path: "a.md", Title: "Alpha", Links: []string{"New Friend"}}
	if _, err := e.ExtractAndUpdate(ctx, []*vault.Note{v2}); err != nil {
		t.Fatal(err)
	}

	if g.GetEntity("Old Friend") != nil {
		t.Error("stale entity survived re-extraction")
	}
	if g.GetEntity("New Friend") == nil {
		t.Error("new entity missing after re-extraction")
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
	}
	for _, tt := range tests {
		if got := stripCodeFence(tt.in); got != tt.want {
			t.Errorf("stripCodeFence(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
