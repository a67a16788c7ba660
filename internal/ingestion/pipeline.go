// Package ingestion implements the document ingestion pipeline. It validates
// incoming text, stores the document record, then chunks, embeds, and
// upserts vectors, driving the document through its indexing lifecycle
// (not_indexed → indexing → indexed). The pipeline is invoked by the
// `docqa ingest` CLI command and the document upload API.
package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/54b3r/docqa-go/internal/chunker"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/store"
)

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// Chunking tunes the line-based splitter. Zero values use
	// chunker.DefaultConfig.
	Chunking chunker.Config

	// MaxDocumentBytes caps accepted document size. Defaults to 10 MiB.
	MaxDocumentBytes int
}

// Pipeline orchestrates the validate → store → chunk → embed → upsert flow
// and the inverse removal flow. All vector writes for one document are
// serialized by a per-document lock, so concurrent Index/Reindex/Remove
// calls for the same document never interleave.
type Pipeline struct {
	// docs is the metadata store holding document records and lifecycle state.
	docs store.DocumentStore

	// embedder converts chunk texts into dense vector embeddings.
	embedder rag.Embedder

	// index persists and serves the embedded chunks.
	index rag.VectorIndex

	// cfg holds the resolved pipeline configuration.
	cfg *Config

	// mu guards locks.
	mu sync.Mutex
	// locks holds one mutex per document id with in-flight work.
	locks map[string]*sync.Mutex
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(docs store.DocumentStore, embedder rag.Embedder, index rag.VectorIndex, cfg *Config) (*Pipeline, error) {
	if docs == nil {
		return nil, fmt.Errorf("ingestion: document store must not be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("ingestion: vector index must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.MaxDocumentBytes <= 0 {
		cfg.MaxDocumentBytes = 10 << 20
	}
	if cfg.Chunking.TargetLines <= 0 {
		cfg.Chunking = *chunker.DefaultConfig()
	}

	return &Pipeline{
		docs:     docs,
		embedder: embedder,
		index:    index,
		cfg:      cfg,
		locks:    make(map[string]*sync.Mutex),
	}, nil
}

// Add validates content and persists a new document record in the
// not_indexed state. It does not index; call Index next.
func (p *Pipeline) Add(ctx context.Context, filename, content string) (*store.Document, error) {
	if err := ValidateDocument(filename, content, p.cfg.MaxDocumentBytes); err != nil {
		return nil, err
	}

	doc := &store.Document{
		ID:        uuid.NewString(),
		Filename:  filename,
		Content:   content,
		WordCount: len(strings.Fields(content)),
		LineCount: chunker.LineCount(content),
		Status:    store.StatusNotIndexed,
	}
	if err := p.docs.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("ingestion: add %s: %w", filename, err)
	}

	logging.FromContext(ctx).Info("document added",
		slog.String("document_id", doc.ID),
		slog.String("filename", filename),
		slog.Int("lines", doc.LineCount),
		slog.Int("words", doc.WordCount),
	)
	return doc, nil
}

// Index chunks, embeds, and upserts the document's vectors, then marks it
// indexed. A failure after the indexing transition leaves the document in
// the indexing state; queries against it keep failing with rag.ErrNotReady
// until a later Index or Reindex succeeds.
func (p *Pipeline) Index(ctx context.Context, documentID string) error {
	unlock := p.lock(documentID)
	defer unlock()
	return p.indexLocked(ctx, documentID)
}

// Reindex drops the document's existing vectors and indexes it from scratch.
// Use after changing the chunking configuration or the embedding model.
func (p *Pipeline) Reindex(ctx context.Context, documentID string) error {
	unlock := p.lock(documentID)
	defer unlock()

	if err := p.index.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("ingestion: reindex %s: drop vectors: %w", documentID, err)
	}
	return p.indexLocked(ctx, documentID)
}

// Update replaces the document's content and re-indexes it: the stale
// vectors are dropped and the new content is chunked, embedded, and
// upserted. The document passes through the indexing state while the rebuild
// runs, so concurrent queries fail with rag.ErrNotReady instead of answering
// from stale chunks. A failure after the content write leaves the document in
// the indexing state until a later Index or Reindex succeeds.
func (p *Pipeline) Update(ctx context.Context, documentID, content string) error {
	unlock := p.lock(documentID)
	defer unlock()

	doc, err := p.docs.Get(ctx, documentID)
	if err != nil {
		return fmt.Errorf("ingestion: update %s: %w", documentID, err)
	}
	if doc.Status == store.StatusRemoved {
		return fmt.Errorf("ingestion: update %s: document is removed", documentID)
	}
	if err := ValidateDocument(doc.Filename, content, p.cfg.MaxDocumentBytes); err != nil {
		return err
	}

	words := len(strings.Fields(content))
	lines := chunker.LineCount(content)
	if err := p.docs.UpdateContent(ctx, documentID, content, words, lines); err != nil {
		return fmt.Errorf("ingestion: update %s: %w", documentID, err)
	}
	if err := p.index.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("ingestion: update %s: drop vectors: %w", documentID, err)
	}

	logging.FromContext(ctx).Info("document content updated",
		slog.String("document_id", documentID),
		slog.Int("lines", lines),
		slog.Int("words", words),
	)
	return p.indexLocked(ctx, documentID)
}

// Remove drops the document's vectors and marks the record removed. The
// record itself is kept so existing chat history stays resolvable.
func (p *Pipeline) Remove(ctx context.Context, documentID string) error {
	unlock := p.lock(documentID)
	defer unlock()

	if _, err := p.docs.Get(ctx, documentID); err != nil {
		return fmt.Errorf("ingestion: remove %s: %w", documentID, err)
	}
	if err := p.index.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("ingestion: remove %s: drop vectors: %w", documentID, err)
	}
	if err := p.docs.SetStatus(ctx, documentID, store.StatusRemoved); err != nil {
		return fmt.Errorf("ingestion: remove %s: %w", documentID, err)
	}

	logging.FromContext(ctx).Info("document removed",
		slog.String("document_id", documentID),
	)
	return nil
}

// indexLocked runs the chunk → embed → upsert flow. Callers must hold the
// document lock.
func (p *Pipeline) indexLocked(ctx context.Context, documentID string) error {
	log := logging.FromContext(ctx)

	doc, err := p.docs.Get(ctx, documentID)
	if err != nil {
		return fmt.Errorf("ingestion: index %s: %w", documentID, err)
	}
	if doc.Status == store.StatusRemoved {
		return fmt.Errorf("ingestion: index %s: document is removed", documentID)
	}

	if err := p.docs.SetStatus(ctx, documentID, store.StatusIndexing); err != nil {
		return fmt.Errorf("ingestion: index %s: %w", documentID, err)
	}

	chunks, err := chunker.Split(doc.ID, doc.Filename, doc.Content, &p.cfg.Chunking)
	if err != nil {
		return fmt.Errorf("ingestion: index %s: chunk: %w", documentID, err)
	}
	if len(chunks) == 0 {
		// Whitespace-only document: nothing to embed, but it is "indexed".
		if err := p.docs.SetIndexed(ctx, documentID, 0); err != nil {
			return fmt.Errorf("ingestion: index %s: %w", documentID, err)
		}
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("ingestion: index %s: embed: %w", documentID, err)
	}

	if err := p.index.Upsert(ctx, chunks, vectors); err != nil {
		return fmt.Errorf("ingestion: index %s: upsert: %w", documentID, err)
	}

	if err := p.docs.SetIndexed(ctx, documentID, len(chunks)); err != nil {
		return fmt.Errorf("ingestion: index %s: %w", documentID, err)
	}

	log.Info("document indexed",
		slog.String("document_id", documentID),
		slog.String("filename", doc.Filename),
		slog.Int("chunks", len(chunks)),
	)
	return nil
}

// lock acquires the per-document mutex and returns its release func.
func (p *Pipeline) lock(documentID string) func() {
	p.mu.Lock()
	m, ok := p.locks[documentID]
	if !ok {
		m = &sync.Mutex{}
		p.locks[documentID] = m
	}
	p.mu.Unlock()

	m.Lock()
	return m.Unlock
}
