package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// PostgresStore keeps chunks and note metadata in PostgreSQL with pgvector.
// Rows are scoped by vault root so several vaults can share one database.
type PostgresStore struct {
	pool       *pgxpool.Pool
	vault      string
	dimensions int
}

func NewPostgresStore(ctx context.Context, dsn, vaultRoot string, dimensions int) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres DSN: %w", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	s := &PostgresStore{
		pool:       pool,
		vault:      vaultRoot,
		dimensions: dimensions,
	}

	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS vaultmind_chunks (
			id TEXT PRIMARY KEY,
			vault TEXT NOT NULL,
			note_path TEXT NOT NULL,
			heading TEXT NOT NULL DEFAULT '',
			seq INT NOT NULL DEFAULT 0,
			content TEXT NOT NULL,
			embedding vector(%d),
			fingerprint TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.dimensions),
		`CREATE INDEX IF NOT EXISTS vaultmind_chunks_note_idx
			ON vaultmind_chunks (vault, note_path)`,
		`CREATE TABLE IF NOT EXISTS vaultmind_notes (
			vault TEXT NOT NULL,
			path TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			note_type TEXT NOT NULL DEFAULT '',
			tags TEXT[] NOT NULL DEFAULT '{}',
			fingerprint TEXT NOT NULL DEFAULT '',
			mod_time TIMESTAMPTZ NOT NULL DEFAULT now(),
			chunk_ids TEXT[] NOT NULL DEFAULT '{}',
			PRIMARY KEY (vault, path)
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, chunk := range chunks {
		batch.Queue(`INSERT INTO vaultmind_chunks
				(id, vault, note_path, heading, seq, content, embedding, fingerprint, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE SET
				note_path = EXCLUDED.note_path,
				heading = EXCLUDED.heading,
				seq = EXCLUDED.seq,
				content = EXCLUDED.content,
				embedding = EXCLUDED.embedding,
				fingerprint = EXCLUDED.fingerprint,
				updated_at = EXCLUDED.updated_at`,
			chunk.ID, s.vault, chunk.NotePath, chunk.Heading, chunk.Seq,
			chunk.Content, pgvector.NewVector(chunk.Vector), chunk.Fingerprint, chunk.UpdatedAt)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range chunks {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to save chunks: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) DeleteByNote(ctx context.Context, notePath string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM vaultmind_chunks WHERE vault = $1 AND note_path = $2`,
		s.vault, notePath)
	if err != nil {
		return fmt.Errorf("failed to delete chunks for %s: %w", notePath, err)
	}
	return nil
}

func (s *PostgresStore) Search(ctx context.Context, queryVector []float32, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, note_path, heading, seq, content, embedding, fingerprint, updated_at,
				1 - (embedding <=> $1) AS score
			FROM vaultmind_chunks
			WHERE vault = $2
			ORDER BY embedding <=> $1
			LIMIT $3`,
		pgvector.NewVector(queryVector), s.vault, limit)
	if err != nil {
		return nil, fmt.Errorf("search query failed: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var (
			chunk Chunk
			vec   pgvector.Vector
			score float32
		)
		if err := rows.Scan(&chunk.ID, &chunk.NotePath, &chunk.Heading, &chunk.Seq,
			&chunk.Content, &vec, &chunk.Fingerprint, &chunk.UpdatedAt, &score); err != nil {
			return nil, fmt.Errorf("failed to scan search row: %w", err)
		}
		chunk.Vector = vec.Slice()
		results = append(results, SearchResult{Chunk: chunk, Score: score})
	}
	return results, rows.Err()
}

func (s *PostgresStore) GetNote(ctx context.Context, notePath string) (*NoteDoc, error) {
	var doc NoteDoc
	err := s.pool.QueryRow(ctx,
		`SELECT path, title, note_type, tags, fingerprint, mod_time, chunk_ids
			FROM vaultmind_notes WHERE vault = $1 AND path = $2`,
		s.vault, notePath).
		Scan(&doc.Path, &doc.Title, &doc.Type, &doc.Tags, &doc.Fingerprint, &doc.ModTime, &doc.ChunkIDs)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note %s: %w", notePath, err)
	}
	return &doc, nil
}

func (s *PostgresStore) SaveNote(ctx context.Context, doc NoteDoc) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO vaultmind_notes (vault, path, title, note_type, tags, fingerprint, mod_time, chunk_ids)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (vault, path) DO UPDATE SET
				title = EXCLUDED.title,
				note_type = EXCLUDED.note_type,
				tags = EXCLUDED.tags,
				fingerprint = EXCLUDED.fingerprint,
				mod_time = EXCLUDED.mod_time,
				chunk_ids = EXCLUDED.chunk_ids`,
		s.vault, doc.Path, doc.Title, doc.Type, doc.Tags, doc.Fingerprint, doc.ModTime, doc.ChunkIDs)
	if err != nil {
		return fmt.Errorf("failed to save note %s: %w", doc.Path, err)
	}
	return nil
}

func (s *PostgresStore) DeleteNote(ctx context.Context, notePath string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM vaultmind_notes WHERE vault = $1 AND path = $2`,
		s.vault, notePath)
	if err != nil {
		return fmt.Errorf("failed to delete note %s: %w", notePath, err)
	}
	return nil
}

func (s *PostgresStore) ListNotes(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT path FROM vaultmind_notes WHERE vault = $1`, s.vault)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, rows.Err()
}

// Load is a no-op: postgres is the source of truth.
func (s *PostgresStore) Load(ctx context.Context) error {
	return nil
}

// Persist is a no-op: every write already hit the database.
func (s *PostgresStore) Persist(ctx context.Context) error {
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) GetStats(ctx context.Context) (*IndexStats, error) {
	stats := &IndexStats{}

	err := s.pool.QueryRow(ctx,
		`SELECT count(*), COALESCE(max(updated_at), 'epoch'::timestamptz)
			FROM vaultmind_chunks WHERE vault = $1`, s.vault).
		Scan(&stats.TotalChunks, &stats.LastUpdated)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}

	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM vaultmind_notes WHERE vault = $1`, s.vault).
		Scan(&stats.TotalNotes); err != nil {
		return nil, fmt.Errorf("failed to count notes: %w", err)
	}

	if err := s.pool.QueryRow(ctx,
		`SELECT pg_total_relation_size('vaultmind_chunks')`).
		Scan(&stats.IndexSize); err != nil {
		stats.IndexSize = 0
	}

	if stats.LastUpdated.Equal(time.Unix(0, 0).UTC()) {
		stats.LastUpdated = time.Time{}
	}
	return stats, nil
}

func (s *PostgresStore) ListNotesWithStats(ctx context.Context) ([]NoteStats, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT path, cardinality(chunk_ids), mod_time
			FROM vaultmind_notes WHERE vault = $1`, s.vault)
	if err != nil {
		return nil, fmt.Errorf("failed to list note stats: %w", err)
	}
	defer rows.Close()

	var stats []NoteStats
	for rows.Next() {
		var ns NoteStats
		if err := rows.Scan(&ns.Path, &ns.ChunkCount, &ns.ModTime); err != nil {
			return nil, err
		}
		stats = append(stats, ns)
	}
	return stats, rows.Err()
}

func (s *PostgresStore) GetChunksForNote(ctx context.Context, notePath string) ([]Chunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, note_path, heading, seq, content, embedding, fingerprint, updated_at
			FROM vaultmind_chunks
			WHERE vault = $1 AND note_path = $2
			ORDER BY seq`,
		s.vault, notePath)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks for %s: %w", notePath, err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

func (s *PostgresStore) GetAllChunks(ctx context.Context) ([]Chunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, note_path, heading, seq, content, embedding, fingerprint, updated_at
			FROM vaultmind_chunks WHERE vault = $1`, s.vault)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

func scanChunks(rows pgx.Rows) ([]Chunk, error) {
	var chunks []Chunk
	for rows.Next() {
		var (
			chunk Chunk
			vec   pgvector.Vector
		)
		if err := rows.Scan(&chunk.ID, &chunk.NotePath, &chunk.Heading, &chunk.Seq,
			&chunk.Content, &vec, &chunk.Fingerprint, &chunk.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		chunk.Vector = vec.Slice()
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}
