package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/store"
)

// handleDocumentUpload handles POST /api/documents. The document is stored,
// then chunked, embedded, and indexed synchronously so the response status
// reflects whether the document is queryable.
func (s *Server) handleDocumentUpload(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	doc, err := s.deps.Ingestor.Add(r.Context(), req.Filename, req.Content)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.metrics.documentsIngestedTotal.Inc()

	if err := s.deps.Ingestor.Index(r.Context(), doc.ID); err != nil {
		s.metrics.indexOperationsTotal.WithLabelValues("index", "error").Inc()
		log.Error("indexing failed after upload",
			slog.String("document_id", doc.ID),
			slog.Any("error", err),
		)
		// The document exists but is not queryable; the client can retry via
		// the reindex endpoint.
		writeError(w, http.StatusBadGateway, "document stored but indexing failed: "+err.Error())
		return
	}
	s.metrics.indexOperationsTotal.WithLabelValues("index", "ok").Inc()

	indexed, err := s.deps.Docs.Get(r.Context(), doc.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, toDocumentResponse(indexed))
}

// handleDocumentList handles GET /api/documents, returning all non-removed
// documents newest-first.
func (s *Server) handleDocumentList(w http.ResponseWriter, r *http.Request) {
	docs, err := s.deps.Docs.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := make([]documentResponse, 0, len(docs))
	for i := range docs {
		resp = append(resp, toDocumentResponse(&docs[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDocumentGet handles GET /api/documents/{id}.
func (s *Server) handleDocumentGet(w http.ResponseWriter, r *http.Request) {
	doc, err := s.deps.Docs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDocumentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

// handleDocumentUpdate handles PUT /api/documents/{id}. The document's
// content is replaced and its vectors are rebuilt synchronously, so a 200
// response means the new content is queryable.
func (s *Server) handleDocumentUpdate(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := r.PathValue("id")
	if err := s.deps.Ingestor.Update(r.Context(), id, req.Content); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "document not found")
		case errors.Is(err, ingestion.ErrInvalidDocument):
			// Validation runs before any write, so the document is unchanged.
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.metrics.indexOperationsTotal.WithLabelValues("update", "error").Inc()
			log.Error("re-indexing failed after content update",
				slog.String("document_id", id),
				slog.Any("error", err),
			)
			// The content was written; the client can retry via the reindex
			// endpoint.
			writeError(w, http.StatusBadGateway, "document updated but indexing failed: "+err.Error())
		}
		return
	}
	s.metrics.indexOperationsTotal.WithLabelValues("update", "ok").Inc()

	doc, err := s.deps.Docs.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

// handleDocumentDelete handles DELETE /api/documents/{id}. Vectors are
// removed from the index and the document is marked removed; its metadata is
// retained so chat history stays resolvable.
func (s *Server) handleDocumentDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.deps.Ingestor.Remove(r.Context(), id); err != nil {
		s.metrics.indexOperationsTotal.WithLabelValues("remove", "error").Inc()
		writeDocumentError(w, err)
		return
	}
	s.metrics.indexOperationsTotal.WithLabelValues("remove", "ok").Inc()
	w.WriteHeader(http.StatusNoContent)
}

// handleDocumentReindex handles POST /api/documents/{id}/reindex. Existing
// vectors are dropped and the document is chunked and embedded from scratch.
func (s *Server) handleDocumentReindex(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.deps.Ingestor.Reindex(r.Context(), id); err != nil {
		s.metrics.indexOperationsTotal.WithLabelValues("reindex", "error").Inc()
		writeDocumentError(w, err)
		return
	}
	s.metrics.indexOperationsTotal.WithLabelValues("reindex", "ok").Inc()

	doc, err := s.deps.Docs.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

// handleDocumentSummary handles POST /api/documents/{id}/summary. The
// generated summary is persisted on the document and returned.
func (s *Server) handleDocumentSummary(w http.ResponseWriter, r *http.Request) {
	if s.deps.Summarizer == nil {
		writeError(w, http.StatusNotImplemented, "summarization not configured")
		return
	}

	id := r.PathValue("id")
	summary, err := s.deps.Summarizer.Summarize(r.Context(), id)
	if err != nil {
		writeDocumentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"documentId": id, "summary": summary})
}

// handleHistoryGet handles GET /api/documents/{id}/history, returning the
// document's chat history oldest-first. The limit query parameter caps the
// number of most recent messages returned (default 50).
func (s *Server) handleHistoryGet(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeError(w, http.StatusNotFound, "chat history not configured")
		return
	}

	id := r.PathValue("id")
	if _, err := s.deps.Docs.Get(r.Context(), id); err != nil {
		writeDocumentError(w, err)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	msgs, err := s.deps.History.History(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := make([]historyMessage, 0, len(msgs))
	for _, m := range msgs {
		sources := m.Sources
		if sources == nil {
			sources = []string{}
		}
		resp = append(resp, historyMessage{
			Role:      string(m.Role),
			Content:   m.Content,
			Sources:   sources,
			CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleHistoryClear handles DELETE /api/documents/{id}/history.
func (s *Server) handleHistoryClear(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeError(w, http.StatusNotFound, "chat history not configured")
		return
	}

	id := r.PathValue("id")
	if _, err := s.deps.Docs.Get(r.Context(), id); err != nil {
		writeDocumentError(w, err)
		return
	}
	if err := s.deps.History.ClearHistory(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeDocumentError maps store and index errors to HTTP status codes.
func writeDocumentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "document not found")
	case errors.Is(err, rag.ErrNotReady):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
