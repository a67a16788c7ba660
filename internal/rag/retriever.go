package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/54b3r/docqa-go/internal/logging"
)

// Retriever orchestrates one retrieval pass: query expansion, a single
// batched embedding call for all variants, a per-variant fan-out query
// against the vector index, and a merge into one ranked, deduplicated,
// top-k bounded result.
type Retriever struct {
	// embedder converts query variants to vectors in one batched call.
	embedder Embedder

	// index performs the per-document similarity search.
	index VectorIndex

	// expander widens recall with related query variants. May be nil, in
	// which case only the normalized original question is searched.
	expander QueryExpander

	// defaultTopK is the result count used when the caller passes 0.
	defaultTopK int
}

// NewRetriever constructs a Retriever. expander may be nil; defaultTopK
// falls back to 5 when not positive.
func NewRetriever(embedder Embedder, index VectorIndex, expander QueryExpander, defaultTopK int) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("rag: index must not be nil")
	}
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &Retriever{
		embedder:    embedder,
		index:       index,
		expander:    expander,
		defaultTopK: defaultTopK,
	}, nil
}

// mergedHit tracks the best-scoring appearance of a chunk across variants.
type mergedHit struct {
	hit Hit
	// variant is the index of the query variant that produced the kept
	// score. Variant 0 is always the original question.
	variant int
}

// Retrieve returns the top-k most relevant chunks of the given document for
// the question. A chunk retrieved by multiple variants keeps only its best
// score; score ties prefer the hit from the original, unexpanded question.
// The result is sorted by score descending, chunk index ascending, and never
// exceeds topK entries.
func (r *Retriever) Retrieve(ctx context.Context, documentID, question string, topK int) (*RetrievalResult, error) {
	log := logging.FromContext(ctx)

	if topK <= 0 {
		topK = r.defaultTopK
	}

	variants := []string{normalizeQuery(question)}
	if r.expander != nil {
		variants = r.expander.Expand(ctx, question)
	}

	vectors, err := r.embedder.Embed(ctx, variants)
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query variants failed: %w", err)
	}
	if len(vectors) != len(variants) {
		return nil, fmt.Errorf("rag: embedder returned %d vectors for %d variants", len(vectors), len(variants))
	}

	// Fan out wider than topK so deduplication across variants still leaves
	// enough distinct chunks to fill the final result.
	fanout := topK * len(variants)

	merged := make(map[string]mergedHit)
	for i, vec := range vectors {
		hits, err := r.index.Query(ctx, documentID, vec, fanout)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			cur, seen := merged[h.Chunk.ID]
			switch {
			case !seen:
				merged[h.Chunk.ID] = mergedHit{hit: h, variant: i}
			case h.Score > cur.hit.Score:
				merged[h.Chunk.ID] = mergedHit{hit: h, variant: i}
			case h.Score == cur.hit.Score && i == 0 && cur.variant != 0:
				merged[h.Chunk.ID] = mergedHit{hit: h, variant: 0}
			}
		}
	}

	ranked := make([]Hit, 0, len(merged))
	for _, m := range merged {
		ranked = append(ranked, m.hit)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Chunk.Index < ranked[j].Chunk.Index
	})
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	log.Debug("retrieval complete",
		slog.String("document_id", documentID),
		slog.Int("variants", len(variants)),
		slog.Int("hits", len(ranked)),
	)

	return &RetrievalResult{
		Question: question,
		Variants: variants,
		Hits:     ranked,
	}, nil
}

// normalizeQuery folds whitespace so equivalent questions embed identically.
func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(q), " ")
}
