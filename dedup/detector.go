package dedup

import (
	"context"
	"log"
	"math"
	"sort"
	"sync"

	"github.com/vaultmind/vaultmind/pipeline"
	"github.com/vaultmind/vaultmind/store"
)

const (
	DefaultDuplicateThreshold = 0.92
	DefaultMergeThreshold     = 0.80
	DefaultMinContentLength   = 80
)

// Band classifies how similar a pair of notes is.
type Band string

const (
	BandDuplicate      Band = "duplicate"       // near-identical content
	BandMergeCandidate Band = "merge_candidate" // overlapping enough to consider merging
)

// Match is a pair of notes flagged as similar.
type Match struct {
	NoteA string  `json:"note_a"`
	NoteB string  `json:"note_b"`
	Score float32 `json:"score"`
	Band  Band    `json:"band"`
}

// Config tunes the detector's thresholds.
type Config struct {
	MinContentLength   int
	DuplicateThreshold float32
	MergeThreshold     float32
}

// Detector finds near-duplicate notes by comparing per-note centroid
// vectors built from the chunks already in the store. It refreshes its
// results whenever a note settles, via the event bus.
type Detector struct {
	cfg   Config
	store store.VectorStore

	mu      sync.RWMutex
	results []Match
}

func NewDetector(cfg Config, st store.VectorStore) *Detector {
	if cfg.DuplicateThreshold == 0 {
		cfg.DuplicateThreshold = DefaultDuplicateThreshold
	}
	if cfg.MergeThreshold == 0 {
		cfg.MergeThreshold = DefaultMergeThreshold
	}
	if cfg.MinContentLength == 0 {
		cfg.MinContentLength = DefaultMinContentLength
	}
	return &Detector{cfg: cfg, store: st}
}

type noteVector struct {
	path    string
	vector  []float32
	content int // total chunk content length
}

// FindDuplicates scans all indexed notes and returns similar pairs sorted
// by score. Notes shorter than MinContentLength are ignored: tiny notes
// (stubs, templates) score high without meaning anything.
func (d *Detector) FindDuplicates(ctx context.Context) ([]Match, error) {
	chunks, err := d.store.GetAllChunks(ctx)
	if err != nil {
		return nil, err
	}

	byNote := make(map[string]*noteVector)
	for _, chunk := range chunks {
		nv, ok := byNote[chunk.NotePath]
		if !ok {
			nv = &noteVector{path: chunk.NotePath, vector: make([]float32, len(chunk.Vector))}
			byNote[chunk.NotePath] = nv
		}
		nv.content += len(chunk.Content)
		for i, v := range chunk.Vector {
			if i < len(nv.vector) {
				nv.vector[i] += v
			}
		}
	}

	notes := make([]*noteVector, 0, len(byNote))
	for _, nv := range byNote {
		if nv.content < d.cfg.MinContentLength {
			continue
		}
		notes = append(notes, nv)
	}
	sort.Slice(notes, func(i, j int) bool { return notes[i].path < notes[j].path })

	var matches []Match
	for i := 0; i < len(notes); i++ {
		for j := i + 1; j < len(notes); j++ {
			score := cosineSimilarity(notes[i].vector, notes[j].vector)
			switch {
			case score >= d.cfg.DuplicateThreshold:
				matches = append(matches, Match{
					NoteA: notes[i].path, NoteB: notes[j].path, Score: score, Band: BandDuplicate,
				})
			case score >= d.cfg.MergeThreshold:
				matches = append(matches, Match{
					NoteA: notes[i].path, NoteB: notes[j].path, Score: score, Band: BandMergeCandidate,
				})
			}
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })

	d.mu.Lock()
	d.results = matches
	d.mu.Unlock()

	return matches, nil
}

// Results returns a snapshot of the latest scan.
func (d *Detector) Results() []Match {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Match(nil), d.results...)
}

// OnNoteChanged is a bus subscriber: any settled change or deletion
// triggers a rescan.
func (d *Detector) OnNoteChanged(ctx context.Context, event pipeline.Event) error {
	matches, err := d.FindDuplicates(ctx)
	if err != nil {
		return err
	}
	for _, m := range matches {
		if m.Band == BandDuplicate && (m.NoteA == event.NotePath() || m.NoteB == event.NotePath()) {
			log.Printf("Duplicate: %s ~ %s (%.2f)", m.NoteA, m.NoteB, m.Score)
		}
	}
	return nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
