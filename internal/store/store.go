// Package store provides the SQLite-backed metadata layer: document records
// with their indexing lifecycle, and per-document chat history. Vectors live
// in the vector index; this store is the source of truth for everything
// else. State survives server restarts.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// ErrNotFound is returned when no document matches the requested id.
var ErrNotFound = errors.New("store: document not found")

// DocumentStatus tracks a document through its indexing lifecycle.
type DocumentStatus string

const (
	// StatusNotIndexed means the document is stored but has no vectors yet.
	StatusNotIndexed DocumentStatus = "not_indexed"
	// StatusIndexing means chunking/embedding is in progress.
	StatusIndexing DocumentStatus = "indexing"
	// StatusIndexed means the document is fully queryable.
	StatusIndexed DocumentStatus = "indexed"
	// StatusRemoved means the document was deleted; kept for history joins.
	StatusRemoved DocumentStatus = "removed"
)

// Document is a stored source document and its indexing state.
type Document struct {
	// ID is the document's UUID.
	ID string
	// Filename is the name the document was uploaded under.
	Filename string
	// Content is the full plain-text body.
	Content string
	// Summary is an optional generated summary ("" until produced).
	Summary string
	// WordCount and LineCount describe Content.
	WordCount int
	LineCount int
	// ChunkCount is the number of chunks produced by the last indexing run.
	ChunkCount int
	// Status is the current lifecycle state.
	Status DocumentStatus
	// CreatedAt and UpdatedAt are persistence timestamps.
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DocumentStore persists documents and their lifecycle state.
// Implementations must be safe for concurrent use.
type DocumentStore interface {
	// Create persists a new document. Status defaults to not_indexed when empty.
	Create(ctx context.Context, doc *Document) error
	// Get returns the document with the given id, or ErrNotFound.
	// Removed documents are returned — callers filter on Status.
	Get(ctx context.Context, id string) (*Document, error)
	// List returns all non-removed documents, newest first, without Content
	// (listing must stay cheap for large documents).
	List(ctx context.Context) ([]Document, error)
	// UpdateContent replaces the document's content and its derived word and
	// line counts. The indexing lifecycle is managed separately via SetStatus.
	UpdateContent(ctx context.Context, id, content string, wordCount, lineCount int) error
	// SetStatus transitions the document's lifecycle state.
	SetStatus(ctx context.Context, id string, status DocumentStatus) error
	// SetIndexed marks the document indexed and records its chunk count.
	SetIndexed(ctx context.Context, id string, chunkCount int) error
	// SetSummary stores a generated summary.
	SetSummary(ctx context.Context, id, summary string) error
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore implements DocumentStore and ChatStore on a local SQLite
// database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the metadata database.
// It resolves to ~/.docqa/docqa.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".docqa")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "docqa.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS documents (
    id           TEXT    PRIMARY KEY,
    filename     TEXT    NOT NULL,
    content      TEXT    NOT NULL,
    summary      TEXT    NOT NULL DEFAULT '',
    word_count   INTEGER NOT NULL DEFAULT 0,
    line_count   INTEGER NOT NULL DEFAULT 0,
    chunk_count  INTEGER NOT NULL DEFAULT 0,
    status       TEXT    NOT NULL CHECK(status IN ('not_indexed','indexing','indexed','removed')),
    created_at   INTEGER NOT NULL,  -- Unix timestamp (seconds)
    updated_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_status_created
    ON documents (status, created_at);

CREATE TABLE IF NOT EXISTS chat_messages (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    document_id  TEXT    NOT NULL,
    role         TEXT    NOT NULL CHECK(role IN ('user','assistant')),
    content      TEXT    NOT NULL,
    sources      TEXT    NOT NULL DEFAULT '[]',  -- JSON array of references
    created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_messages_document_created
    ON chat_messages (document_id, created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Create persists a new document.
func (s *SQLiteStore) Create(ctx context.Context, doc *Document) error {
	if doc.ID == "" {
		return fmt.Errorf("store: create: document id must not be empty")
	}
	if doc.Status == "" {
		doc.Status = StatusNotIndexed
	}
	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	const q = `
INSERT INTO documents (id, filename, content, summary, word_count, line_count, chunk_count, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		doc.ID, doc.Filename, doc.Content, doc.Summary,
		doc.WordCount, doc.LineCount, doc.ChunkCount,
		string(doc.Status), now.Unix(), now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("store: create %s: %w", doc.ID, err)
	}
	return nil
}

// Get returns the document with the given id, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Document, error) {
	const q = `
SELECT id, filename, content, summary, word_count, line_count, chunk_count, status, created_at, updated_at
FROM   documents
WHERE  id = ?`
	var (
		doc       Document
		status    string
		created   int64
		updated   int64
	)
	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&doc.ID, &doc.Filename, &doc.Content, &doc.Summary,
		&doc.WordCount, &doc.LineCount, &doc.ChunkCount,
		&status, &created, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", id, err)
	}
	doc.Status = DocumentStatus(status)
	doc.CreatedAt = time.Unix(created, 0)
	doc.UpdatedAt = time.Unix(updated, 0)
	return &doc, nil
}

// List returns all non-removed documents, newest first. Content is omitted.
func (s *SQLiteStore) List(ctx context.Context) ([]Document, error) {
	const q = `
SELECT id, filename, summary, word_count, line_count, chunk_count, status, created_at, updated_at
FROM   documents
WHERE  status != 'removed'
ORDER  BY created_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			doc     Document
			status  string
			created int64
			updated int64
		)
		if err := rows.Scan(
			&doc.ID, &doc.Filename, &doc.Summary,
			&doc.WordCount, &doc.LineCount, &doc.ChunkCount,
			&status, &created, &updated,
		); err != nil {
			return nil, fmt.Errorf("store: list scan: %w", err)
		}
		doc.Status = DocumentStatus(status)
		doc.CreatedAt = time.Unix(created, 0)
		doc.UpdatedAt = time.Unix(updated, 0)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list rows: %w", err)
	}
	return docs, nil
}

// UpdateContent replaces the document's content and refreshes its word and
// line counts.
func (s *SQLiteStore) UpdateContent(ctx context.Context, id, content string, wordCount, lineCount int) error {
	const q = `UPDATE documents SET content = ?, word_count = ?, line_count = ?, updated_at = ? WHERE id = ?`
	return s.update(ctx, q, content, wordCount, lineCount, time.Now().Unix(), id)
}

// SetStatus transitions the document's lifecycle state.
func (s *SQLiteStore) SetStatus(ctx context.Context, id string, status DocumentStatus) error {
	const q = `UPDATE documents SET status = ?, updated_at = ? WHERE id = ?`
	return s.update(ctx, q, string(status), time.Now().Unix(), id)
}

// SetIndexed marks the document indexed and records its chunk count.
func (s *SQLiteStore) SetIndexed(ctx context.Context, id string, chunkCount int) error {
	const q = `UPDATE documents SET status = ?, chunk_count = ?, updated_at = ? WHERE id = ?`
	return s.update(ctx, q, string(StatusIndexed), chunkCount, time.Now().Unix(), id)
}

// SetSummary stores a generated summary.
func (s *SQLiteStore) SetSummary(ctx context.Context, id, summary string) error {
	const q = `UPDATE documents SET summary = ?, updated_at = ? WHERE id = ?`
	return s.update(ctx, q, summary, time.Now().Unix(), id)
}

// update runs a single-row UPDATE and maps zero affected rows to ErrNotFound.
func (s *SQLiteStore) update(ctx context.Context, q string, args ...any) error {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("store: update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
