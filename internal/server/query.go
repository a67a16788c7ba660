package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/54b3r/docqa-go/internal/attribution"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/store"
)

// maxTopK caps the per-request passage count so a single query cannot pull
// the whole index into the model context.
const maxTopK = 15

// handleQuery handles POST /api/query. It retrieves relevant passages from
// the named document and returns a generated answer with source citations.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.DocumentID = strings.TrimSpace(req.DocumentID)
	req.Question = strings.TrimSpace(req.Question)
	if req.DocumentID == "" {
		writeError(w, http.StatusBadRequest, "document_id is required")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	topK := req.TopK
	if topK < 0 {
		writeError(w, http.StatusBadRequest, "top_k must not be negative")
		return
	}
	if topK > maxTopK {
		topK = maxTopK
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.QueryTimeout)
	defer cancel()

	start := time.Now()
	result, err := s.deps.Answerer.Answer(ctx, req.DocumentID, req.Question, topK, req.SaveChat)
	elapsed := time.Since(start)

	status := http.StatusOK
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, rag.ErrNotReady):
		status = http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	default:
		status = http.StatusInternalServerError
	}

	outcome := outcomeLabel(status)
	s.metrics.queryRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.queryDurationSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())

	if err != nil {
		log.Warn("query failed",
			slog.String("document_id", req.DocumentID),
			slog.Duration("duration", elapsed),
			slog.Any("error", err),
		)
		writeError(w, status, err.Error())
		return
	}

	s.metrics.queryCitations.Observe(float64(len(result.Citations)))
	log.Info("query answered",
		slog.String("document_id", req.DocumentID),
		slog.Int("citations", len(result.Citations)),
		slog.Bool("chat_saved", result.ChatSaved),
		slog.Duration("duration", elapsed),
	)

	sources := result.Citations
	if sources == nil {
		sources = []attribution.Citation{}
	}
	writeJSON(w, http.StatusOK, queryResponse{
		Answer:    result.Answer,
		Sources:   sources,
		ChatSaved: result.ChatSaved,
	})
}

// handleSearch handles POST /api/search. It forwards the query to the
// configured web search provider, or returns 501 when none is configured.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.deps.Search == nil {
		writeError(w, http.StatusNotImplemented, "no search provider configured")
		return
	}
	if !s.deps.Search.Configured() {
		writeError(w, http.StatusNotImplemented, "search provider is missing credentials")
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	result, err := s.deps.Search.Search(r.Context(), req.Query)
	if err != nil {
		logging.FromContext(r.Context()).Warn("web search failed",
			slog.String("provider", s.deps.Search.Name()),
			slog.Any("error", err),
		)
		writeError(w, http.StatusBadGateway, "search provider error")
		return
	}

	sources := result.Sources
	if sources == nil {
		sources = []string{}
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Provider: s.deps.Search.Name(),
		Answer:   result.Answer,
		Sources:  sources,
	})
}
