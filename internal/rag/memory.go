package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/54b3r/docqa-go/internal/chunker"
)

// MemoryIndex is an in-process VectorIndex using exact cosine similarity.
// It backs the "memory" index backend for local, single-process runs and is
// the substitute index in tests. All operations are guarded by a single
// RWMutex, so deletes are atomic with respect to concurrent queries.
type MemoryIndex struct {
	mu sync.RWMutex

	// dim is the vector dimensionality, fixed by the first upsert.
	dim int

	// docs maps document id → chunk id → stored entry.
	docs map[string]map[string]memoryEntry
}

// memoryEntry pairs a chunk with its embedding.
type memoryEntry struct {
	chunk  chunker.Chunk
	vector []float32
}

// NewMemoryIndex returns an empty MemoryIndex.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{docs: make(map[string]map[string]memoryEntry)}
}

// Upsert stores or replaces chunks keyed by chunk id.
func (m *MemoryIndex) Upsert(_ context.Context, chunks []chunker.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return &IndexError{Op: "upsert", Err: fmt.Errorf("got %d chunks but %d vectors", len(chunks), len(vectors))}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i, c := range chunks {
		if m.dim == 0 {
			m.dim = len(vectors[i])
		}
		if len(vectors[i]) != m.dim {
			return &IndexError{Op: "upsert", Err: fmt.Errorf(
				"vector %d has dimension %d, index expects %d", i, len(vectors[i]), m.dim)}
		}
		entries, ok := m.docs[c.DocumentID]
		if !ok {
			entries = make(map[string]memoryEntry)
			m.docs[c.DocumentID] = entries
		}
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		entries[c.ID] = memoryEntry{chunk: c, vector: vec}
	}

	return nil
}

// DeleteDocument removes all chunks of the document in one critical section.
func (m *MemoryIndex) DeleteDocument(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, documentID)
	return nil
}

// Query ranks the document's chunks by cosine similarity to vector and
// returns the top k. Unknown documents yield an empty result.
func (m *MemoryIndex) Query(_ context.Context, documentID string, vector []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	entries, ok := m.docs[documentID]
	if !ok {
		return nil, nil
	}

	hits := make([]Hit, 0, len(entries))
	for _, e := range entries {
		hits = append(hits, Hit{Chunk: e.chunk, Score: clamp01(cosine(vector, e.vector))})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Chunk.Index < hits[j].Chunk.Index
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Close is a no-op; the MemoryIndex holds no external resources.
func (m *MemoryIndex) Close() error { return nil }

// cosine returns the cosine similarity of a and b, or 0 when either vector
// has zero magnitude or the dimensions disagree.
func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
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
