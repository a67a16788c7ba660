package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docqa-go/internal/answer"
	"github.com/54b3r/docqa-go/internal/attribution"
	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/search"
	"github.com/54b3r/docqa-go/internal/store"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// fakeDocs is an in-memory DocumentStore for handler tests.
type fakeDocs struct {
	mu   sync.Mutex
	docs map[string]*store.Document
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{docs: make(map[string]*store.Document)}
}

func (f *fakeDocs) Create(_ context.Context, doc *store.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if doc.Status == "" {
		doc.Status = store.StatusNotIndexed
	}
	cp := *doc
	cp.CreatedAt = time.Now()
	f.docs[doc.ID] = &cp
	return nil
}

func (f *fakeDocs) Get(_ context.Context, id string) (*store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDocs) List(_ context.Context) ([]store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Document
	for _, d := range f.docs {
		if d.Status == store.StatusRemoved {
			continue
		}
		cp := *d
		cp.Content = ""
		out = append(out, cp)
	}
	return out, nil
}

func (f *fakeDocs) UpdateContent(_ context.Context, id, content string, wordCount, lineCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return store.ErrNotFound
	}
	d.Content = content
	d.WordCount = wordCount
	d.LineCount = lineCount
	return nil
}

func (f *fakeDocs) SetStatus(_ context.Context, id string, status store.DocumentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return store.ErrNotFound
	}
	d.Status = status
	return nil
}

func (f *fakeDocs) SetIndexed(_ context.Context, id string, chunkCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return store.ErrNotFound
	}
	d.Status = store.StatusIndexed
	d.ChunkCount = chunkCount
	return nil
}

func (f *fakeDocs) SetSummary(_ context.Context, id, summary string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return store.ErrNotFound
	}
	d.Summary = summary
	return nil
}

func (f *fakeDocs) Close() error { return nil }

// fakeIngestor simulates the ingestion pipeline against a fakeDocs.
type fakeIngestor struct {
	docs *fakeDocs
	// addErr forces Add to fail.
	addErr error
	// indexErr forces Index to fail.
	indexErr error
	// seq numbers generated document IDs.
	seq int
}

func (f *fakeIngestor) Add(ctx context.Context, filename, content string) (*store.Document, error) {
	if f.addErr != nil {
		return nil, f.addErr
	}
	if filename == "" {
		return nil, errors.New("ingestion: filename must not be empty")
	}
	f.seq++
	doc := &store.Document{
		ID:       fmt.Sprintf("doc-%d", f.seq),
		Filename: filename,
		Content:  content,
		Status:   store.StatusNotIndexed,
	}
	if err := f.docs.Create(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (f *fakeIngestor) Index(ctx context.Context, documentID string) error {
	if f.indexErr != nil {
		return f.indexErr
	}
	return f.docs.SetIndexed(ctx, documentID, 3)
}

func (f *fakeIngestor) Reindex(ctx context.Context, documentID string) error {
	return f.Index(ctx, documentID)
}

func (f *fakeIngestor) Update(ctx context.Context, documentID, content string) error {
	doc, err := f.docs.Get(ctx, documentID)
	if err != nil {
		return err
	}
	if err := ingestion.ValidateDocument(doc.Filename, content, 0); err != nil {
		return err
	}
	if err := f.docs.UpdateContent(ctx, documentID, content, len(content), 1); err != nil {
		return err
	}
	if f.indexErr != nil {
		// Mirror the pipeline: a failed re-index strands the document in
		// the indexing state.
		_ = f.docs.SetStatus(ctx, documentID, store.StatusIndexing)
		return f.indexErr
	}
	return f.Index(ctx, documentID)
}

func (f *fakeIngestor) Remove(ctx context.Context, documentID string) error {
	if _, err := f.docs.Get(ctx, documentID); err != nil {
		return err
	}
	return f.docs.SetStatus(ctx, documentID, store.StatusRemoved)
}

// fakeAnswerer returns a canned result or error.
type fakeAnswerer struct {
	result *answer.Result
	err    error
	// gotTopK records the topK value of the last call.
	gotTopK int
	// gotSaveChat records the saveChat flag of the last call.
	gotSaveChat bool
}

func (f *fakeAnswerer) Answer(_ context.Context, _, _ string, topK int, saveChat bool) (*answer.Result, error) {
	f.gotTopK = topK
	f.gotSaveChat = saveChat
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// fakeSummarizer returns a canned summary or error.
type fakeSummarizer struct {
	err error
}

func (f *fakeSummarizer) Summarize(_ context.Context, documentID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "summary of " + documentID, nil
}

// fakeChat is an in-memory ChatStore.
type fakeChat struct {
	mu   sync.Mutex
	msgs map[string][]store.ChatMessage
}

func newFakeChat() *fakeChat {
	return &fakeChat{msgs: make(map[string][]store.ChatMessage)}
}

func (f *fakeChat) AppendMessage(_ context.Context, documentID string, role store.Role, content string, sources []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs[documentID] = append(f.msgs[documentID], store.ChatMessage{
		Role: role, Content: content, Sources: sources, CreatedAt: time.Now(),
	})
	return nil
}

func (f *fakeChat) History(_ context.Context, documentID string, n int) ([]store.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.msgs[documentID]
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return msgs, nil
}

func (f *fakeChat) ClearHistory(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.msgs, documentID)
	return nil
}

// fakeSearchProvider returns a canned web search result. The zero value is
// configured.
type fakeSearchProvider struct {
	result       *search.Result
	err          error
	unconfigured bool
}

func (f *fakeSearchProvider) Name() string { return "fake" }

func (f *fakeSearchProvider) Configured() bool { return !f.unconfigured }

func (f *fakeSearchProvider) Search(_ context.Context, _ string) (*search.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// testEnv bundles the server and its fakes so tests can manipulate state.
type testEnv struct {
	server   *Server
	docs     *fakeDocs
	ingestor *fakeIngestor
	answerer *fakeAnswerer
	chat     *fakeChat
}

// newTestEnv builds a fully wired Server backed by fakes and an isolated
// Prometheus registry.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	docs := newFakeDocs()
	ingestor := &fakeIngestor{docs: docs}
	answerer := &fakeAnswerer{result: &answer.Result{Answer: "42"}}
	chat := newFakeChat()

	reg := prometheus.NewRegistry()
	s, err := New(Dependencies{
		Docs:       docs,
		History:    chat,
		Ingestor:   ingestor,
		Answerer:   answerer,
		Summarizer: &fakeSummarizer{},
	}, &Config{
		MetricsRegistry: reg,
		MetricsGatherer: reg,
		RateLimit:       1000,
		RateBurst:       1000,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.stopRL)

	return &testEnv{server: s, docs: docs, ingestor: ingestor, answerer: answerer, chat: chat}
}

// newTestServer builds a minimal *Server for tests that call handlers
// directly and do not need routing or fakes beyond the zero state.
func newTestServer() *Server {
	docs := newFakeDocs()
	reg := prometheus.NewRegistry()
	s, err := New(Dependencies{
		Docs:     docs,
		Ingestor: &fakeIngestor{docs: docs},
		Answerer: &fakeAnswerer{result: &answer.Result{Answer: "ok"}},
	}, &Config{MetricsRegistry: reg, MetricsGatherer: reg})
	if err != nil {
		panic(err)
	}
	s.stopRL()
	return s
}

// do routes a request through the server's full middleware and mux stack.
func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	e.server.httpServer.Handler.ServeHTTP(w, req)
	return w
}

// upload stores and indexes a document, returning its ID.
func (e *testEnv) upload(t *testing.T, filename, content string) string {
	t.Helper()

	w := e.do(t, http.MethodPost, "/api/documents", uploadRequest{Filename: filename, Content: content})
	if w.Code != http.StatusCreated {
		t.Fatalf("upload: expected 201, got %d — body: %s", w.Code, w.Body.String())
	}
	var doc documentResponse
	if err := json.NewDecoder(w.Body).Decode(&doc); err != nil {
		t.Fatalf("upload decode: %v", err)
	}
	return doc.ID
}

// ---------------------------------------------------------------------------
// POST /api/query
// ---------------------------------------------------------------------------

func TestHandleQuery_OK(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.answerer.result = &answer.Result{
		Answer: "The refund window is 30 days.",
		Citations: []attribution.Citation{
			{Filename: "policy.txt", LineStart: 1, LineEnd: 20, RelevanceScore: 0.91, Reference: "policy.txt:1-20"},
		},
		ChatSaved: true,
	}

	w := env.do(t, http.MethodPost, "/api/query", queryRequest{
		DocumentID: "doc-1", Question: "What is the refund window?", SaveChat: true,
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var resp queryResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Answer != "The refund window is 30 days." {
		t.Errorf("answer: got %q", resp.Answer)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].Reference != "policy.txt:1-20" {
		t.Errorf("sources: got %+v", resp.Sources)
	}
	if !resp.ChatSaved {
		t.Errorf("expected chat_saved:true")
	}
	if !env.answerer.gotSaveChat {
		t.Errorf("expected saveChat to be forwarded")
	}
}

func TestHandleQuery_WireFormat(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.answerer.result = &answer.Result{
		Answer: "ok",
		Citations: []attribution.Citation{
			{Filename: "a.txt", LineStart: 1, LineEnd: 5, RelevanceScore: 0.8, Reference: "a.txt:1-5"},
		},
	}

	body := bytes.NewBufferString(`{"document_id": "doc-1", "question": "q", "top_k": 7, "save_chat": true}`)
	req := httptest.NewRequest(http.MethodPost, "/api/query", body)
	w := httptest.NewRecorder()
	env.server.httpServer.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}
	if env.answerer.gotTopK != 7 {
		t.Errorf("top_k forwarded as %d, want 7", env.answerer.gotTopK)
	}
	if !env.answerer.gotSaveChat {
		t.Error("save_chat not forwarded")
	}

	var resp map[string]json.RawMessage
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"answer", "sources", "chat_saved"} {
		if _, ok := resp[key]; !ok {
			t.Errorf("response missing %q key — got keys %v", key, keysOf(resp))
		}
	}

	var sources []map[string]json.RawMessage
	if err := json.Unmarshal(resp["sources"], &sources); err != nil {
		t.Fatalf("decode sources: %v", err)
	}
	if len(sources) != 1 {
		t.Fatalf("expected 1 source, got %d", len(sources))
	}
	for _, key := range []string{"filename", "line_start", "line_end", "relevance_score", "content", "reference"} {
		if _, ok := sources[0][key]; !ok {
			t.Errorf("source missing %q key — got keys %v", key, keysOf(sources[0]))
		}
	}
}

func keysOf(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func TestHandleQuery_TopKBounds(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	// Omitted top_k reaches the answerer as zero, which selects the
	// configured default.
	w := env.do(t, http.MethodPost, "/api/query", queryRequest{DocumentID: "doc-1", Question: "q"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if env.answerer.gotTopK != 0 {
		t.Errorf("omitted top_k forwarded as %d, want 0", env.answerer.gotTopK)
	}

	// Oversized values are clamped.
	w = env.do(t, http.MethodPost, "/api/query", queryRequest{DocumentID: "doc-1", Question: "q", TopK: 100})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if env.answerer.gotTopK != maxTopK {
		t.Errorf("top_k=100 forwarded as %d, want clamp to %d", env.answerer.gotTopK, maxTopK)
	}

	// Negative values are rejected outright.
	w = env.do(t, http.MethodPost, "/api/query", queryRequest{DocumentID: "doc-1", Question: "q", TopK: -1})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for negative top_k, got %d", w.Code)
	}
}

func TestHandleQuery_MissingFields(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	cases := []struct {
		name string
		req  queryRequest
	}{
		{"missing document id", queryRequest{Question: "anything"}},
		{"missing question", queryRequest{DocumentID: "doc-1"}},
		{"whitespace question", queryRequest{DocumentID: "doc-1", Question: "   "}},
	}
	for _, tc := range cases {
		w := env.do(t, http.MethodPost, "/api/query", tc.req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", tc.name, w.Code)
		}
	}
}

func TestHandleQuery_DocumentNotFound(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.answerer.err = fmt.Errorf("answer: document doc-x: %w", store.ErrNotFound)

	w := env.do(t, http.MethodPost, "/api/query", queryRequest{DocumentID: "doc-x", Question: "q"})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d — body: %s", w.Code, w.Body.String())
	}
}

func TestHandleQuery_DocumentNotReady(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.answerer.err = fmt.Errorf("answer: document doc-1 has status \"indexing\": %w", rag.ErrNotReady)

	w := env.do(t, http.MethodPost, "/api/query", queryRequest{DocumentID: "doc-1", Question: "q"})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d — body: %s", w.Code, w.Body.String())
	}
}

func TestHandleQuery_GenerationError(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.answerer.err = errors.New("answer: generate: model unavailable")

	w := env.do(t, http.MethodPost, "/api/query", queryRequest{DocumentID: "doc-1", Question: "q"})
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Document endpoints
// ---------------------------------------------------------------------------

func TestHandleDocumentUpload_IndexesSynchronously(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/documents", uploadRequest{
		Filename: "policy.txt", Content: "All purchases may be refunded within 30 days.",
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d — body: %s", w.Code, w.Body.String())
	}

	var doc documentResponse
	if err := json.NewDecoder(w.Body).Decode(&doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Status != string(store.StatusIndexed) {
		t.Errorf("status: expected indexed, got %q", doc.Status)
	}
	if doc.ChunkCount == 0 {
		t.Errorf("expected non-zero chunk count after indexing")
	}
}

func TestHandleDocumentUpload_ValidationError(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/documents", uploadRequest{Filename: "", Content: "text"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleDocumentUpload_IndexFailure(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.ingestor.indexErr = errors.New("ingestion: embed chunks: connection refused")

	w := env.do(t, http.MethodPost, "/api/documents", uploadRequest{Filename: "a.txt", Content: "text"})
	if w.Code != http.StatusBadGateway {
		t.Errorf("expected 502 when indexing fails, got %d — body: %s", w.Code, w.Body.String())
	}
}

func TestHandleDocumentList(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.upload(t, "a.txt", "first document")
	env.upload(t, "b.txt", "second document")

	w := env.do(t, http.MethodGet, "/api/documents", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var docs []documentResponse
	if err := json.NewDecoder(w.Body).Decode(&docs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(docs) != 2 {
		t.Errorf("expected 2 documents, got %d", len(docs))
	}
}

func TestHandleDocumentGet_NotFound(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/documents/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestHandleDocumentUpdate(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	id := env.upload(t, "a.txt", "original content")

	w := env.do(t, http.MethodPut, "/api/documents/"+id, updateRequest{Content: "revised content"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var doc documentResponse
	if err := json.NewDecoder(w.Body).Decode(&doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Status != string(store.StatusIndexed) {
		t.Errorf("status: expected indexed after update, got %q", doc.Status)
	}

	got, err := env.docs.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Content != "revised content" {
		t.Errorf("content: got %q, not replaced", got.Content)
	}
}

func TestHandleDocumentUpdate_NotFound(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	w := env.do(t, http.MethodPut, "/api/documents/nope", updateRequest{Content: "text"})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestHandleDocumentUpdate_ValidationError(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	id := env.upload(t, "a.txt", "original content")

	w := env.do(t, http.MethodPut, "/api/documents/"+id, updateRequest{Content: ""})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty content, got %d — body: %s", w.Code, w.Body.String())
	}

	// The rejected update must not touch the stored document.
	got, err := env.docs.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Content != "original content" || got.Status != store.StatusIndexed {
		t.Errorf("document mutated by rejected update: %q, %q", got.Content, got.Status)
	}
}

func TestHandleDocumentUpdate_IndexFailure(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	id := env.upload(t, "a.txt", "original content")
	env.ingestor.indexErr = errors.New("ingestion: embed chunks: connection refused")

	w := env.do(t, http.MethodPut, "/api/documents/"+id, updateRequest{Content: "revised content"})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 when re-indexing fails, got %d — body: %s", w.Code, w.Body.String())
	}

	// The edit moved the document out of indexed; queries must not answer
	// from the stale vectors.
	got, err := env.docs.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != store.StatusIndexing {
		t.Errorf("status: expected indexing after failed update, got %q", got.Status)
	}
}

func TestHandleDocumentDelete(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	id := env.upload(t, "a.txt", "to be removed")

	w := env.do(t, http.MethodDelete, "/api/documents/"+id, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d — body: %s", w.Code, w.Body.String())
	}

	// Removed documents disappear from the list but stay directly fetchable.
	wList := env.do(t, http.MethodGet, "/api/documents", nil)
	var docs []documentResponse
	if err := json.NewDecoder(wList.Body).Decode(&docs); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("expected empty list after delete, got %d documents", len(docs))
	}

	wGet := env.do(t, http.MethodGet, "/api/documents/"+id, nil)
	if wGet.Code != http.StatusOK {
		t.Errorf("expected removed document to remain fetchable, got %d", wGet.Code)
	}
}

func TestHandleDocumentReindex(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	id := env.upload(t, "a.txt", "content")

	w := env.do(t, http.MethodPost, "/api/documents/"+id+"/reindex", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var doc documentResponse
	if err := json.NewDecoder(w.Body).Decode(&doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Status != string(store.StatusIndexed) {
		t.Errorf("status: expected indexed, got %q", doc.Status)
	}
}

func TestHandleDocumentSummary(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	id := env.upload(t, "a.txt", "content")

	w := env.do(t, http.MethodPost, "/api/documents/"+id+"/summary", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["summary"] != "summary of "+id {
		t.Errorf("summary: got %q", resp["summary"])
	}
}

// ---------------------------------------------------------------------------
// Chat history endpoints
// ---------------------------------------------------------------------------

func TestHandleHistory_RoundTrip(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	id := env.upload(t, "a.txt", "content")

	ctx := context.Background()
	if err := env.chat.AppendMessage(ctx, id, store.RoleUser, "what is it?", nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := env.chat.AppendMessage(ctx, id, store.RoleAssistant, "it is a test", []string{"a.txt:1-5"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	w := env.do(t, http.MethodGet, "/api/documents/"+id+"/history", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var msgs []historyMessage
	if err := json.NewDecoder(w.Body).Decode(&msgs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Errorf("roles: got %q, %q", msgs[0].Role, msgs[1].Role)
	}
	if len(msgs[1].Sources) != 1 || msgs[1].Sources[0] != "a.txt:1-5" {
		t.Errorf("assistant sources: got %v", msgs[1].Sources)
	}

	// Clear and verify the history is empty.
	wClear := env.do(t, http.MethodDelete, "/api/documents/"+id+"/history", nil)
	if wClear.Code != http.StatusNoContent {
		t.Fatalf("clear: expected 204, got %d", wClear.Code)
	}

	wAfter := env.do(t, http.MethodGet, "/api/documents/"+id+"/history", nil)
	var after []historyMessage
	if err := json.NewDecoder(wAfter.Body).Decode(&after); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(after) != 0 {
		t.Errorf("expected empty history after clear, got %d messages", len(after))
	}
}

func TestHandleHistory_UnknownDocument(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/documents/nope/history", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestHandleHistory_InvalidLimit(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	id := env.upload(t, "a.txt", "content")

	w := env.do(t, http.MethodGet, "/api/documents/"+id+"/history?limit=abc", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// POST /api/search
// ---------------------------------------------------------------------------

func TestHandleSearch_NoProvider(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/search", searchRequest{Query: "latest release"})
	if w.Code != http.StatusNotImplemented {
		t.Errorf("expected 501 without a provider, got %d", w.Code)
	}
}

func TestHandleSearch_UnconfiguredProvider(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.server.deps.Search = &fakeSearchProvider{unconfigured: true}

	w := env.do(t, http.MethodPost, "/api/search", searchRequest{Query: "latest release"})
	if w.Code != http.StatusNotImplemented {
		t.Errorf("expected 501 for unconfigured provider, got %d", w.Code)
	}
}

func TestHandleSearch_OK(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.server.deps.Search = &fakeSearchProvider{
		result: &search.Result{Answer: "v2.1 shipped in June.", Sources: []string{"https://example.com/releases"}},
	}

	w := env.do(t, http.MethodPost, "/api/search", searchRequest{Query: "latest release"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var resp searchResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Provider != "fake" {
		t.Errorf("provider: got %q", resp.Provider)
	}
	if resp.Answer != "v2.1 shipped in June." {
		t.Errorf("answer: got %q", resp.Answer)
	}
	if len(resp.Sources) != 1 {
		t.Errorf("sources: got %v", resp.Sources)
	}
}

func TestHandleSearch_ProviderError(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.server.deps.Search = &fakeSearchProvider{err: errors.New("upstream 500")}

	w := env.do(t, http.MethodPost, "/api/search", searchRequest{Query: "anything"})
	if w.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", w.Code)
	}
}
