// Package suggest proposes links between notes that cover related ground
// but do not reference each other yet.
//
// Candidates come from the similarity band just below the duplicate
// detector's merge threshold: similar enough to be about the same topic,
// not similar enough to be the same note. Each candidate is scored by a
// composite of three signals:
//
//	score = similarity + entity_weight*shared_entities + graph_weight*(1/graph_distance)
//
// The graph term is 0 when the two notes sit in disconnected components,
// so the formula degrades to similarity plus entity overlap when the
// knowledge graph has nothing to say.
package suggest

import (
	"context"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/vaultmind/vaultmind/graph"
	"github.com/vaultmind/vaultmind/pipeline"
	"github.com/vaultmind/vaultmind/store"
	"github.com/vaultmind/vaultmind/vault"
)

const (
	DefaultMinSimilarity    float32 = 0.70
	DefaultMaxSimilarity    float32 = 0.80
	DefaultEntityWeight     float32 = 0.05
	DefaultGraphWeight      float32 = 0.10
	DefaultMinContentLength         = 80
	DefaultMaxResults               = 5
)

// Suggestion is a proposed link from one note to another.
type Suggestion struct {
	SourcePath     string   `json:"source_path"`
	SourceTitle    string   `json:"source_title"`
	TargetPath     string   `json:"target_path"`
	TargetTitle    string   `json:"target_title"`
	Similarity     float32  `json:"similarity"`
	SharedEntities []string `json:"shared_entities"`
	GraphDistance  int      `json:"graph_distance"` // -1 when no path exists
	CompositeScore float32  `json:"composite_score"`
}

// Config tunes the suggestion band and the composite score weights.
type Config struct {
	MinContentLength int
	// MinSimilarity is the band floor; candidates below it are noise.
	MinSimilarity float32
	// MaxSimilarity is the band ceiling; candidates at or above it belong
	// to the duplicate detector.
	MaxSimilarity float32
	EntityWeight  float32
	GraphWeight   float32
	MaxResults    int
}

// Suggester finds link candidates for a note using the embeddings already
// in the store, and keeps the latest suggestions per source note. It
// refreshes a note's suggestions whenever that note settles, via the
// event bus.
type Suggester struct {
	cfg   Config
	store store.VectorStore
	graph *graph.KnowledgeGraph // nil when graph extraction is off

	mu      sync.RWMutex
	results map[string][]Suggestion // source note path -> suggestions
}

func NewSuggester(cfg Config, st store.VectorStore, kg *graph.KnowledgeGraph) *Suggester {
	if cfg.MinContentLength == 0 {
		cfg.MinContentLength = DefaultMinContentLength
	}
	if cfg.MinSimilarity == 0 {
		cfg.MinSimilarity = DefaultMinSimilarity
	}
	if cfg.MaxSimilarity == 0 {
		cfg.MaxSimilarity = DefaultMaxSimilarity
	}
	if cfg.EntityWeight == 0 {
		cfg.EntityWeight = DefaultEntityWeight
	}
	if cfg.GraphWeight == 0 {
		cfg.GraphWeight = DefaultGraphWeight
	}
	if cfg.MaxResults == 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	return &Suggester{
		cfg:     cfg,
		store:   st,
		graph:   kg,
		results: make(map[string][]Suggestion),
	}
}

// SuggestLinks computes link candidates for the note and caches them.
// Notes shorter than MinContentLength and notes with no indexed chunks
// yield nothing. The note's existing wikilink targets are excluded: a
// link the author already made needs no suggesting.
func (s *Suggester) SuggestLinks(ctx context.Context, note *vault.Note) ([]Suggestion, error) {
	if len(strings.TrimSpace(note.Body)) < s.cfg.MinContentLength {
		return nil, nil
	}

	chunks, err := s.store.GetChunksForNote(ctx, note.Path)
	if err != nil {
		return nil, err
	}
	centroid := centroidVector(chunks)
	if centroid == nil {
		return nil, nil
	}

	// Fetch past MaxResults: hits collapse by note and the band filter
	// discards duplicates and unrelated tails.
	hits, err := s.store.Search(ctx, centroid, s.cfg.MaxResults+20)
	if err != nil {
		return nil, err
	}

	linked := make(map[string]bool, len(note.Links))
	for _, l := range note.Links {
		linked[strings.ToLower(l)] = true
	}

	sourceEntities := s.sourceEntities(note)

	seen := map[string]bool{note.Path: true}
	var suggestions []Suggestion
	for _, hit := range hits {
		targetPath := hit.Chunk.NotePath
		if seen[targetPath] {
			continue
		}
		seen[targetPath] = true

		if hit.Score >= s.cfg.MaxSimilarity || hit.Score < s.cfg.MinSimilarity {
			continue
		}

		targetTitle := s.targetTitle(ctx, targetPath)
		stem := strings.TrimSuffix(filepath.Base(targetPath), ".md")
		if linked[strings.ToLower(targetTitle)] || linked[strings.ToLower(stem)] {
			continue
		}

		shared := s.sharedEntities(sourceEntities, targetPath)
		dist := s.graphDistance(note.Title, targetTitle)

		composite := hit.Score + s.cfg.EntityWeight*float32(len(shared))
		if dist > 0 {
			composite += s.cfg.GraphWeight / float32(dist)
		}

		suggestions = append(suggestions, Suggestion{
			SourcePath:     note.Path,
			SourceTitle:    note.Title,
			TargetPath:     targetPath,
			TargetTitle:    targetTitle,
			Similarity:     hit.Score,
			SharedEntities: shared,
			GraphDistance:  dist,
			CompositeScore: composite,
		})
	}

	sort.Slice(suggestions, func(i, j int) bool {
		return suggestions[i].CompositeScore > suggestions[j].CompositeScore
	})
	if len(suggestions) > s.cfg.MaxResults {
		suggestions = suggestions[:s.cfg.MaxResults]
	}

	s.mu.Lock()
	if len(suggestions) > 0 {
		s.results[note.Path] = suggestions
	} else {
		delete(s.results, note.Path)
	}
	s.mu.Unlock()

	if len(suggestions) > 0 {
		log.Printf("Suggestions for %s: %d candidates (top score %.3f)",
			note.Title, len(suggestions), suggestions[0].CompositeScore)
	}
	return suggestions, nil
}

// OnNoteChanged is a bus subscriber: a settled create or modify refreshes
// the note's suggestions, a deletion drops them.
func (s *Suggester) OnNoteChanged(ctx context.Context, event pipeline.Event) error {
	switch e := event.(type) {
	case pipeline.NoteCreatedEvent:
		if e.Note == nil {
			return nil
		}
		_, err := s.SuggestLinks(ctx, e.Note)
		return err
	case pipeline.NoteModifiedEvent:
		if e.Note == nil {
			return nil
		}
		_, err := s.SuggestLinks(ctx, e.Note)
		return err
	case pipeline.NoteDeletedEvent:
		s.mu.Lock()
		delete(s.results, e.Path)
		s.mu.Unlock()
		return nil
	}
	return nil
}

// Results returns the cached suggestions for a source note path.
func (s *Suggester) Results(notePath string) []Suggestion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Suggestion(nil), s.results[notePath]...)
}

// AllResults returns every cached suggestion list keyed by source path.
func (s *Suggester) AllResults() map[string][]Suggestion {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]Suggestion, len(s.results))
	for path, list := range s.results {
		out[path] = append([]Suggestion(nil), list...)
	}
	return out
}

// Count reports how many notes currently carry suggestions.
func (s *Suggester) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}

// ScanVault computes suggestions for every given note and returns the
// paths that got at least one.
func (s *Suggester) ScanVault(ctx context.Context, notes []*vault.Note) (map[string][]Suggestion, error) {
	all := make(map[string][]Suggestion)
	for _, note := range notes {
		list, err := s.SuggestLinks(ctx, note)
		if err != nil {
			return nil, err
		}
		if len(list) > 0 {
			all[note.Path] = list
		}
	}
	log.Printf("Suggestion scan: %d/%d notes have link suggestions", len(all), len(notes))
	return all, nil
}

// sourceEntities collects the note's entity names: frontmatter entities,
// plus wikilinks and graph attributions when a graph is available. All
// lowercased for overlap matching.
func (s *Suggester) sourceEntities(note *vault.Note) map[string]bool {
	out := make(map[string]bool)
	for _, e := range note.Entities {
		out[strings.ToLower(e)] = true
	}
	if s.graph == nil {
		return out
	}
	for _, link := range note.Links {
		if s.graph.GetEntity(link) != nil {
			out[strings.ToLower(link)] = true
		}
	}
	for _, e := range s.graph.EntitiesForNote(note.Path) {
		out[strings.ToLower(e)] = true
	}
	return out
}

// sharedEntities intersects the source entity set with the entities the
// graph attributes to the target note.
func (s *Suggester) sharedEntities(source map[string]bool, targetPath string) []string {
	if s.graph == nil || len(source) == 0 {
		return nil
	}

	var shared []string
	for _, e := range s.graph.EntitiesForNote(targetPath) {
		if source[strings.ToLower(e)] {
			shared = append(shared, e)
		}
	}
	sort.Strings(shared)
	return shared
}

// graphDistance is the hop count between the two note titles in the
// knowledge graph, or -1 when no graph or no path connects them.
func (s *Suggester) graphDistance(sourceTitle, targetTitle string) int {
	if s.graph == nil {
		return -1
	}
	path := s.graph.FindPath(sourceTitle, targetTitle)
	if path == nil {
		return -1
	}
	return len(path) - 1
}

// centroidVector sums the chunk vectors into one per-note vector. Cosine
// comparison ignores magnitude, so the sum stands in for the mean.
func centroidVector(chunks []store.Chunk) []float32 {
	if len(chunks) == 0 {
		return nil
	}
	centroid := make([]float32, len(chunks[0].Vector))
	for _, chunk := range chunks {
		for i, v := range chunk.Vector {
			if i < len(centroid) {
				centroid[i] += v
			}
		}
	}
	return centroid
}

// targetTitle resolves a note path to its indexed title, falling back to
// a title derived from the filename.
func (s *Suggester) targetTitle(ctx context.Context, notePath string) string {
	if doc, err := s.store.GetNote(ctx, notePath); err == nil && doc != nil && doc.Title != "" {
		return doc.Title
	}
	return vault.TitleFromFilename(filepath.Base(notePath))
}
