package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

const qdrantScrollLimit = 10000

// QdrantStore keeps chunks and note metadata in a Qdrant collection. Note
// metadata rides along as payload-only points with a zero vector, tagged
// kind=note; chunks are tagged kind=chunk.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dimensions int
}

func NewQdrantStore(ctx context.Context, host string, port int, useTLS bool, collection, apiKey string, dimensions int) (*QdrantStore, error) {
	if port == 0 {
		port = 6334
	}
	if collection == "" {
		collection = "vaultmind"
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	s := &QdrantStore{
		client:     client,
		collection: collection,
		dimensions: dimensions,
	}

	if err := s.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}

	return s, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", s.collection, err)
	}
	return nil
}

// notePointID derives a stable point ID for a note's metadata point.
func notePointID(notePath string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("vaultmind:note:"+notePath)).String()
}

func (s *QdrantStore) SaveChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, chunk := range chunks {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(chunk.ID),
			Vectors: qdrant.NewVectors(chunk.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"kind":        "chunk",
				"note_path":   chunk.NotePath,
				"heading":     chunk.Heading,
				"seq":         chunk.Seq,
				"content":     chunk.Content,
				"fingerprint": chunk.Fingerprint,
				"updated_at":  chunk.UpdatedAt.UTC().Format(time.RFC3339),
			}),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("failed to upsert chunks: %w", err)
	}
	return nil
}

func (s *QdrantStore) DeleteByNote(ctx context.Context, notePath string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("kind", "chunk"),
				qdrant.NewMatch("note_path", notePath),
			},
		}),
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("failed to delete chunks for %s: %w", notePath, err)
	}
	return nil
}

func (s *QdrantStore) Search(ctx context.Context, queryVector []float32, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(queryVector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("kind", "chunk")},
		},
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("search query failed: %w", err)
	}

	results := make([]SearchResult, 0, len(points))
	for _, point := range points {
		chunk := chunkFromPayload(point.Payload)
		chunk.ID = point.Id.GetUuid()
		results = append(results, SearchResult{Chunk: chunk, Score: point.Score})
	}
	return results, nil
}

func (s *QdrantStore) GetNote(ctx context.Context, notePath string) (*NoteDoc, error) {
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{qdrant.NewID(notePointID(notePath))},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get note %s: %w", notePath, err)
	}
	if len(points) == 0 {
		return nil, nil
	}

	doc := noteFromPayload(points[0].Payload)
	return &doc, nil
}

func (s *QdrantStore) SaveNote(ctx context.Context, doc NoteDoc) error {
	tags := make([]any, len(doc.Tags))
	for i, t := range doc.Tags {
		tags[i] = t
	}
	chunkIDs := make([]any, len(doc.ChunkIDs))
	for i, id := range doc.ChunkIDs {
		chunkIDs[i] = id
	}

	point := &qdrant.PointStruct{
		Id:      qdrant.NewID(notePointID(doc.Path)),
		Vectors: qdrant.NewVectors(make([]float32, s.dimensions)...),
		Payload: qdrant.NewValueMap(map[string]any{
			"kind":        "note",
			"path":        doc.Path,
			"title":       doc.Title,
			"note_type":   doc.Type,
			"tags":        tags,
			"fingerprint": doc.Fingerprint,
			"mod_time":    doc.ModTime.UTC().Format(time.RFC3339),
			"chunk_ids":   chunkIDs,
		}),
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         []*qdrant.PointStruct{point},
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("failed to save note %s: %w", doc.Path, err)
	}
	return nil
}

func (s *QdrantStore) DeleteNote(ctx context.Context, notePath string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: qdrant.NewPointsSelectorIDs([]*qdrant.PointId{
			qdrant.NewID(notePointID(notePath)),
		}),
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("failed to delete note %s: %w", notePath, err)
	}
	return nil
}

func (s *QdrantStore) ListNotes(ctx context.Context) ([]string, error) {
	points, err := s.scrollKind(ctx, "note", false)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(points))
	for _, point := range points {
		paths = append(paths, stringValue(point.Payload, "path"))
	}
	return paths, nil
}

// Load is a no-op: qdrant is the source of truth.
func (s *QdrantStore) Load(ctx context.Context) error {
	return nil
}

// Persist is a no-op: every write already hit the server.
func (s *QdrantStore) Persist(ctx context.Context) error {
	return nil
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func (s *QdrantStore) GetStats(ctx context.Context) (*IndexStats, error) {
	chunkCount, err := s.countKind(ctx, "chunk")
	if err != nil {
		return nil, err
	}
	noteCount, err := s.countKind(ctx, "note")
	if err != nil {
		return nil, err
	}

	return &IndexStats{
		TotalNotes:  noteCount,
		TotalChunks: chunkCount,
	}, nil
}

func (s *QdrantStore) ListNotesWithStats(ctx context.Context) ([]NoteStats, error) {
	points, err := s.scrollKind(ctx, "note", false)
	if err != nil {
		return nil, err
	}

	stats := make([]NoteStats, 0, len(points))
	for _, point := range points {
		doc := noteFromPayload(point.Payload)
		stats = append(stats, NoteStats{
			Path:       doc.Path,
			ChunkCount: len(doc.ChunkIDs),
			ModTime:    doc.ModTime,
		})
	}
	return stats, nil
}

func (s *QdrantStore) GetChunksForNote(ctx context.Context, notePath string) ([]Chunk, error) {
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("kind", "chunk"),
				qdrant.NewMatch("note_path", notePath),
			},
		},
		Limit:       qdrant.PtrOf(uint32(qdrantScrollLimit)),
		WithPayload: qdrant.NewWithPayload(true),
		WithVectors: qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks for %s: %w", notePath, err)
	}

	return chunksFromPoints(points), nil
}

func (s *QdrantStore) GetAllChunks(ctx context.Context) ([]Chunk, error) {
	points, err := s.scrollKind(ctx, "chunk", true)
	if err != nil {
		return nil, err
	}
	return chunksFromPoints(points), nil
}

func (s *QdrantStore) scrollKind(ctx context.Context, kind string, withVectors bool) ([]*qdrant.RetrievedPoint, error) {
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("kind", kind)},
		},
		Limit:       qdrant.PtrOf(uint32(qdrantScrollLimit)),
		WithPayload: qdrant.NewWithPayload(true),
		WithVectors: qdrant.NewWithVectors(withVectors),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scroll %s points: %w", kind, err)
	}
	return points, nil
}

func (s *QdrantStore) countKind(ctx context.Context, kind string) (int, error) {
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("kind", kind)},
		},
		Exact: qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count %s points: %w", kind, err)
	}
	return int(count), nil
}

func chunksFromPoints(points []*qdrant.RetrievedPoint) []Chunk {
	chunks := make([]Chunk, 0, len(points))
	for _, point := range points {
		chunk := chunkFromPayload(point.Payload)
		chunk.ID = point.Id.GetUuid()
		if vectors := point.Vectors.GetVector(); vectors != nil {
			chunk.Vector = vectors.Data
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

func chunkFromPayload(payload map[string]*qdrant.Value) Chunk {
	updatedAt, _ := time.Parse(time.RFC3339, stringValue(payload, "updated_at"))
	return Chunk{
		NotePath:    stringValue(payload, "note_path"),
		Heading:     stringValue(payload, "heading"),
		Seq:         int(payload["seq"].GetIntegerValue()),
		Content:     stringValue(payload, "content"),
		Fingerprint: stringValue(payload, "fingerprint"),
		UpdatedAt:   updatedAt,
	}
}

func noteFromPayload(payload map[string]*qdrant.Value) NoteDoc {
	modTime, _ := time.Parse(time.RFC3339, stringValue(payload, "mod_time"))
	return NoteDoc{
		Path:        stringValue(payload, "path"),
		Title:       stringValue(payload, "title"),
		Type:        stringValue(payload, "note_type"),
		Tags:        stringListValue(payload, "tags"),
		Fingerprint: stringValue(payload, "fingerprint"),
		ModTime:     modTime,
		ChunkIDs:    stringListValue(payload, "chunk_ids"),
	}
}

func stringValue(payload map[string]*qdrant.Value, key string) string {
	if v, ok := payload[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func stringListValue(payload map[string]*qdrant.Value, key string) []string {
	v, ok := payload[key]
	if !ok {
		return nil
	}
	list := v.GetListValue()
	if list == nil {
		return nil
	}
	out := make([]string, 0, len(list.Values))
	for _, item := range list.Values {
		out = append(out, item.GetStringValue())
	}
	return out
}
