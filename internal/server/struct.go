package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docqa-go/internal/answer"
	"github.com/54b3r/docqa-go/internal/attribution"
	"github.com/54b3r/docqa-go/internal/search"
	"github.com/54b3r/docqa-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// QueryTimeout bounds a single /api/query request end to end, covering
	// retrieval and answer generation. Defaults to 2 minutes if zero.
	QueryTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives the server's Prometheus metric registrations.
	// Defaults to prometheus.DefaultRegisterer if nil; tests inject a fresh
	// registry to stay hermetic.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer
	// if nil.
	MetricsGatherer prometheus.Gatherer
}

// Dependencies holds the domain services the server exposes over HTTP.
// All fields except Search are required.
type Dependencies struct {
	// Docs is the document metadata store backing list/get endpoints.
	Docs store.DocumentStore
	// History is the per-document chat history store. May be nil, in which
	// case the history endpoints return 404.
	History store.ChatStore
	// Ingestor handles document upload, indexing, and removal.
	Ingestor Ingestor
	// Answerer produces grounded answers with citations.
	Answerer Answerer
	// Summarizer generates and persists document summaries. May be nil, in
	// which case the summary endpoint returns 501.
	Summarizer Summarizer
	// Search is the optional web search provider. May be nil, in which case
	// POST /api/search returns 501.
	Search search.Provider
}

// Ingestor is the interface the document handlers call to mutate the corpus.
// *ingestion.Pipeline satisfies it; tests inject a fake.
type Ingestor interface {
	// Add validates and stores a new document, returning its metadata.
	Add(ctx context.Context, filename, content string) (*store.Document, error)
	// Index chunks, embeds, and indexes the document's content.
	Index(ctx context.Context, documentID string) error
	// Reindex rebuilds the document's vectors from scratch.
	Reindex(ctx context.Context, documentID string) error
	// Update replaces the document's content and re-indexes it.
	Update(ctx context.Context, documentID, content string) error
	// Remove deletes the document's vectors and marks it removed.
	Remove(ctx context.Context, documentID string) error
}

// Answerer is the interface handleQuery calls to produce an answer.
// *answer.Service satisfies it; tests inject a fake.
type Answerer interface {
	// Answer retrieves up to topK relevant passages and generates a cited
	// answer. topK <= 0 uses the configured default.
	Answer(ctx context.Context, documentID, question string, topK int, saveChat bool) (*answer.Result, error)
}

// Summarizer is the interface the summary handler calls.
// *summarizer.Summarizer satisfies it; tests inject a fake.
type Summarizer interface {
	// Summarize generates, persists, and returns the document's summary.
	Summarize(ctx context.Context, documentID string) (string, error)
}

// Server is the HTTP server that exposes document ingestion, question
// answering, and search over a REST API.
type Server struct {
	// deps holds the wired domain services.
	deps Dependencies
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
	// metrics holds the server's Prometheus instruments.
	metrics *serverMetrics
}

// queryRequest is the JSON body for POST /api/query.
type queryRequest struct {
	// DocumentID identifies the document to answer against.
	DocumentID string `json:"document_id"`
	// Question is the user's natural language question.
	Question string `json:"question"`
	// TopK is how many passages to retrieve for this question. Omitted or
	// zero uses the configured default; values above maxTopK are clamped.
	TopK int `json:"top_k"`
	// SaveChat requests that the exchange be persisted to chat history.
	SaveChat bool `json:"save_chat"`
}

// queryResponse is the JSON response for POST /api/query.
type queryResponse struct {
	// Answer is the generated answer text.
	Answer string `json:"answer"`
	// Sources lists the source passages the answer is grounded on.
	Sources []attribution.Citation `json:"sources"`
	// ChatSaved reports whether the exchange was persisted to history.
	ChatSaved bool `json:"chat_saved"`
}

// uploadRequest is the JSON body for POST /api/documents.
type uploadRequest struct {
	// Filename is the display name of the document.
	Filename string `json:"filename"`
	// Content is the full document text.
	Content string `json:"content"`
}

// updateRequest is the JSON body for PUT /api/documents/{id}.
type updateRequest struct {
	// Content is the replacement document text.
	Content string `json:"content"`
}

// documentResponse is the JSON shape of a document in API responses.
type documentResponse struct {
	// ID is the document's unique identifier.
	ID string `json:"id"`
	// Filename is the display name of the document.
	Filename string `json:"filename"`
	// Summary is the generated document summary, if any.
	Summary string `json:"summary,omitempty"`
	// WordCount is the number of whitespace-separated words in the content.
	WordCount int `json:"wordCount"`
	// LineCount is the number of lines in the content.
	LineCount int `json:"lineCount"`
	// ChunkCount is the number of chunks indexed for retrieval.
	ChunkCount int `json:"chunkCount"`
	// Status is the document's lifecycle state.
	Status string `json:"status"`
	// CreatedAt is the upload timestamp in RFC 3339 format.
	CreatedAt string `json:"createdAt"`
}

// searchRequest is the JSON body for POST /api/search.
type searchRequest struct {
	// Query is the web search query.
	Query string `json:"query"`
}

// searchResponse is the JSON response for POST /api/search.
type searchResponse struct {
	// Provider is the name of the search provider that served the query.
	Provider string `json:"provider"`
	// Answer is the provider's synthesized answer.
	Answer string `json:"answer"`
	// Sources lists the URLs the provider cited.
	Sources []string `json:"sources"`
}

// historyMessage is the JSON shape of one chat message in history responses.
type historyMessage struct {
	// Role is "user" or "assistant".
	Role string `json:"role"`
	// Content is the message text.
	Content string `json:"content"`
	// Sources lists source references attached to assistant messages.
	Sources []string `json:"sources"`
	// CreatedAt is the message timestamp in RFC 3339 format.
	CreatedAt string `json:"createdAt"`
}

// toDocumentResponse converts a store.Document to its API representation.
func toDocumentResponse(d *store.Document) documentResponse {
	return documentResponse{
		ID:         d.ID,
		Filename:   d.Filename,
		Summary:    d.Summary,
		WordCount:  d.WordCount,
		LineCount:  d.LineCount,
		ChunkCount: d.ChunkCount,
		Status:     string(d.Status),
		CreatedAt:  d.CreatedAt.UTC().Format(time.RFC3339),
	}
}
