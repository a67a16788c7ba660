// Package rag defines the interfaces and shared types of the retrieval core:
// embedding, per-document vector storage, query expansion, and the retrieval
// orchestrator that combines them. Concrete backends (Qdrant, in-memory,
// Ollama, OpenAI) satisfy these interfaces so the HTTP and CLI layers never
// depend on a specific implementation.
package rag

import (
	"context"

	"github.com/54b3r/docqa-go/internal/chunker"
)

// Hit is a single retrieval match: a chunk and its relevance score.
type Hit struct {
	// Chunk is the matched document chunk, including its line range.
	Chunk chunker.Chunk

	// Score is the similarity score in [0, 1], higher is more relevant.
	Score float32
}

// RetrievalResult is the ranked outcome of one retrieval pass over a single
// document: hits sorted by descending score, deduplicated by chunk id, and
// bounded to the requested top-k.
type RetrievalResult struct {
	// Question is the original, unexpanded user question.
	Question string

	// Variants are the query strings that were actually searched, the
	// normalized original always first.
	Variants []string

	// Hits is the ranked, deduplicated sequence of matches.
	Hits []Hit
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice — callers zip
	// vectors back onto their inputs positionally.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex persists chunk embeddings and supports per-document
// nearest-neighbor search. Implementations must be safe to call from
// multiple goroutines.
type VectorIndex interface {
	// Upsert stores or replaces chunks with their pre-computed embeddings.
	// vectors must be parallel to chunks. Re-upserting a chunk id replaces
	// the previous entry, so calling Upsert twice with identical data is
	// idempotent.
	Upsert(ctx context.Context, chunks []chunker.Chunk, vectors [][]float32) error

	// DeleteDocument removes every chunk belonging to the given document.
	// Deleting a document with no indexed chunks is not an error.
	DeleteDocument(ctx context.Context, documentID string) error

	// Query returns up to k chunks of the given document ranked by
	// similarity to the query vector. Chunks of other documents are never
	// returned. A document with no indexed chunks yields an empty result,
	// not an error.
	Query(ctx context.Context, documentID string, vector []float32, k int) ([]Hit, error)

	// Close releases any resources held by the index.
	Close() error
}

// QueryExpander derives related query variants from one user question to
// widen retrieval recall. Implementations always return at least one variant
// — the normalized original question, first — and degrade to that alone when
// variant generation fails. Expansion is a recall optimization, never a hard
// dependency, so Expand does not return an error.
type QueryExpander interface {
	Expand(ctx context.Context, question string) []string
}
