package rag

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/docqa-go/internal/chunker"
)

// QdrantConfig holds connection parameters for a Qdrant vector index.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this
	// collection. All upserted vectors must match it — mixing
	// dimensionalities in one collection is an error.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantIndex implements VectorIndex backed by a Qdrant collection.
// One collection holds the chunks of all documents; every query carries a
// document_id payload filter so results never leak across documents.
type QdrantIndex struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this index.
	cfg *QdrantConfig
}

// NewQdrantIndex creates a QdrantIndex, ensuring the target collection and
// its document_id payload index exist, and returns a ready-to-use VectorIndex.
func NewQdrantIndex(ctx context.Context, cfg *QdrantConfig) (*QdrantIndex, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.VectorSize == 0 {
		return nil, fmt.Errorf("qdrant: vector size must be set before creating the collection")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	idx := &QdrantIndex{client: client, cfg: cfg}
	if err := idx.ensureCollection(ctx); err != nil {
		return nil, err
	}

	return idx, nil
}

// ensureCollection creates the collection and the document_id keyword index
// if they do not already exist.
func (s *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}

	// Keyword index on document_id keeps per-document filtering fast as the
	// collection grows.
	_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: s.cfg.Collection,
		FieldName:      "document_id",
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to index document_id field: %w", err)
	}

	return nil
}

// Upsert stores or replaces chunks with their pre-computed embeddings.
// Deterministic chunk ids make repeated upserts of identical content a no-op
// replace rather than a duplicate insert.
func (s *QdrantIndex) Upsert(ctx context.Context, chunks []chunker.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return &IndexError{Op: "upsert", Err: fmt.Errorf("got %d chunks but %d vectors", len(chunks), len(vectors))}
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for i, c := range chunks {
		if uint64(len(vectors[i])) != s.cfg.VectorSize {
			return &IndexError{Op: "upsert", Err: fmt.Errorf(
				"vector %d has dimension %d, collection expects %d", i, len(vectors[i]), s.cfg.VectorSize)}
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(c.ID),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(map[string]any{
				"document_id": c.DocumentID,
				"filename":    c.Filename,
				"chunk_index": c.Index,
				"line_start":  c.LineStart,
				"line_end":    c.LineEnd,
				"content":     c.Text,
			}),
		})
	}

	wait := true
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points:         points,
		Wait:           &wait,
	})
	if err != nil {
		return &IndexError{Op: "upsert", Err: err}
	}

	return nil
}

// Query performs a cosine similarity search restricted to the given document.
func (s *QdrantIndex) Query(ctx context.Context, documentID string, vector []float32, k int) ([]Hit, error) {
	limit := uint64(k)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("document_id", documentID),
			},
		},
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, &IndexError{Op: "query", Err: err}
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		p := r.Payload
		if p == nil {
			continue
		}
		hits = append(hits, Hit{
			Chunk: chunker.Chunk{
				ID:         r.Id.GetUuid(),
				DocumentID: p["document_id"].GetStringValue(),
				Filename:   p["filename"].GetStringValue(),
				Index:      int(p["chunk_index"].GetIntegerValue()),
				LineStart:  int(p["line_start"].GetIntegerValue()),
				LineEnd:    int(p["line_end"].GetIntegerValue()),
				Text:       p["content"].GetStringValue(),
			},
			Score: clamp01(r.Score),
		})
	}

	return hits, nil
}

// DeleteDocument removes every chunk of the document in one filtered delete,
// so concurrent queries observe either all chunks or none.
func (s *QdrantIndex) DeleteDocument(ctx context.Context, documentID string) error {
	wait := true
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("document_id", documentID),
			},
		}),
		Wait: &wait,
	})
	if err != nil {
		return &IndexError{Op: "delete", Err: err}
	}
	return nil
}

// Ping probes the Qdrant instance with its native health check RPC.
// Used by the server's readiness endpoint.
func (s *QdrantIndex) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantIndex) Close() error {
	return s.client.Close()
}

// clamp01 forces a backend similarity score into the [0, 1] contract.
// Qdrant cosine scores can dip slightly below 0 for dissimilar vectors.
func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
