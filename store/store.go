package store

import (
	"context"
	"time"
)

// Chunk represents a piece of a note with its vector embedding
type Chunk struct {
	ID          string    `json:"id"`
	NotePath    string    `json:"note_path"` // vault-relative
	Heading     string    `json:"heading"`   // nearest enclosing heading, empty for preamble
	Seq         int       `json:"seq"`       // position within the note
	Content     string    `json:"content"`
	Vector      []float32 `json:"vector"`
	Fingerprint string    `json:"fingerprint"` // fingerprint of the note version this chunk came from
	UpdatedAt   time.Time `json:"updated_at"`
}

// NoteDoc represents an indexed note with its chunks
type NoteDoc struct {
	Path        string    `json:"path"`
	Title       string    `json:"title"`
	Type        string    `json:"type"`
	Tags        []string  `json:"tags"`
	Fingerprint string    `json:"fingerprint"`
	ModTime     time.Time `json:"mod_time"`
	ChunkIDs    []string  `json:"chunk_ids"`
}

// SearchResult represents a search match with its relevance score
type SearchResult struct {
	Chunk Chunk   `json:"chunk"`
	Score float32 `json:"score"`
}

// IndexStats contains statistics about the index
type IndexStats struct {
	TotalNotes  int       `json:"total_notes"`
	TotalChunks int       `json:"total_chunks"`
	IndexSize   int64     `json:"index_size"` // bytes
	LastUpdated time.Time `json:"last_updated"`
}

// NoteStats contains statistics for a single note
type NoteStats struct {
	Path       string    `json:"path"`
	ChunkCount int       `json:"chunk_count"`
	ModTime    time.Time `json:"mod_time"`
}

// VectorStore defines the interface for vector storage backends
type VectorStore interface {
	// SaveChunks stores multiple chunks atomically
	SaveChunks(ctx context.Context, chunks []Chunk) error

	// DeleteByNote removes all chunks for a given note path
	DeleteByNote(ctx context.Context, notePath string) error

	// Search finds the most similar chunks to a query vector
	Search(ctx context.Context, queryVector []float32, limit int) ([]SearchResult, error)

	// GetNote retrieves note metadata by path
	GetNote(ctx context.Context, notePath string) (*NoteDoc, error)

	// SaveNote stores note metadata
	SaveNote(ctx context.Context, doc NoteDoc) error

	// DeleteNote removes note metadata
	DeleteNote(ctx context.Context, notePath string) error

	// ListNotes returns all indexed note paths
	ListNotes(ctx context.Context) ([]string, error)

	// Load reads the store from persistent storage
	Load(ctx context.Context) error

	// Persist writes the store to persistent storage
	Persist(ctx context.Context) error

	// Close cleanly shuts down the store
	Close() error

	// GetStats returns index statistics
	GetStats(ctx context.Context) (*IndexStats, error)

	// ListNotesWithStats returns all notes with their chunk counts
	ListNotesWithStats(ctx context.Context) ([]NoteStats, error)

	// GetChunksForNote returns all chunks for a specific note
	GetChunksForNote(ctx context.Context, notePath string) ([]Chunk, error)

	// GetAllChunks returns all chunks in the store (used by the duplicate
	// detector and for text search)
	GetAllChunks(ctx context.Context) ([]Chunk, error)
}
