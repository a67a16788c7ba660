package rag

import (
	"errors"
	"fmt"
)

// ErrNotReady is returned when retrieval is attempted against a document
// whose indexing has not completed. Callers must surface this distinctly
// from an empty-but-successful retrieval.
var ErrNotReady = errors.New("rag: document is not indexed yet")

// EmbeddingError is a typed service-boundary error from the embedding
// backend. Transient failures (network, rate limit, 5xx) may be retried;
// permanent ones (auth, quota exhaustion) must abort ingestion.
type EmbeddingError struct {
	// Transient indicates the failure is worth retrying with backoff.
	Transient bool

	// Indices identifies the affected positions within the texts slice
	// passed to Embed, so callers know exactly which inputs never got
	// vectors. The positions need not be contiguous when some inputs were
	// served from cache.
	Indices []int

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *EmbeddingError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("rag: %s embedding failure for %d inputs %v: %v", kind, len(e.Indices), e.Indices, e.Err)
}

// Unwrap returns the underlying cause for errors.Is / errors.As chains.
func (e *EmbeddingError) Unwrap() error { return e.Err }

// IndexError is a typed service-boundary error from the vector index.
// A missing document is never an IndexError — queries for unknown documents
// return empty results.
type IndexError struct {
	// Op is the index operation that failed: "upsert", "query", "delete".
	Op string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *IndexError) Error() string {
	return fmt.Sprintf("rag: vector index %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause for errors.Is / errors.As chains.
func (e *IndexError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a transient embedding failure that the
// caller may retry later without operator intervention.
func IsTransient(err error) bool {
	var ee *EmbeddingError
	return errors.As(err, &ee) && ee.Transient
}
