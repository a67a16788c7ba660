package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/cloudwego/eino/components/model"

	"github.com/54b3r/docqa-go/internal/answer"
	"github.com/54b3r/docqa-go/internal/chunker"
	"github.com/54b3r/docqa-go/internal/embedder"
	"github.com/54b3r/docqa-go/internal/expander"
	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/provider"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/search"
	"github.com/54b3r/docqa-go/internal/store"
	"github.com/54b3r/docqa-go/internal/summarizer"
)

// services bundles the wired domain stack shared by the ask, ingest, and
// serve commands.
type services struct {
	// store backs both document metadata and chat history.
	store *store.SQLiteStore
	// providerCfg is the resolved LLM backend configuration.
	providerCfg *provider.Config
	// chatModel is the LLM used for answering, summarization, and expansion.
	chatModel model.ToolCallingChatModel
	// embedder converts text to vectors, with caching and retries.
	embedder rag.Embedder
	// index is the vector index, Qdrant-backed or in-memory.
	index rag.VectorIndex
	// qdrant is non-nil when Qdrant backs the index; used for readiness probes.
	qdrant *rag.QdrantIndex
	// pipeline handles document add/index/remove.
	pipeline *ingestion.Pipeline
	// answerer produces grounded answers with citations.
	answerer *answer.Service
	// summarizer generates document summaries.
	summarizer *summarizer.Summarizer
	// close releases the store and index.
	close func()
}

// buildServices wires the full stack from environment configuration.
// The in-memory index is used when QDRANT_HOST is unset, which keeps local
// usage zero-dependency but loses vectors on restart.
func buildServices(ctx context.Context, log *slog.Logger) (*services, error) {
	dbPath := os.Getenv("DOCQA_DB")
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve database path: %w", err)
		}
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}
	log.Info("document store opened", slog.String("path", dbPath))

	providerCfg := provider.ConfigFromEnv()
	chatModel, err := provider.New(ctx, providerCfg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialise model provider: %w", err)
	}
	log.Info("provider initialised", slog.String("backend", string(providerCfg.Backend)))

	if err := embedder.ValidateConfig(log); err != nil {
		_ = db.Close()
		return nil, err
	}
	emb, err := embedder.NewFromEnv()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialise embedder: %w", err)
	}

	index, qdrantIndex, err := buildIndex(ctx, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	gen := expander.NewModelGenerator(chatModel)
	exp := expander.New(gen, &expander.Config{
		MaxVariants: getEnvInt("RETRIEVAL_MAX_VARIANTS", 0),
	})

	retriever, err := rag.NewRetriever(emb, index, exp, getEnvInt("RETRIEVAL_TOP_K", 0))
	if err != nil {
		_ = db.Close()
		_ = index.Close()
		return nil, fmt.Errorf("initialise retriever: %w", err)
	}

	pipeline, err := ingestion.NewPipeline(db, emb, index, &ingestion.Config{
		Chunking: chunker.Config{
			TargetLines:  getEnvInt("RETRIEVAL_CHUNK_LINES", 0),
			OverlapLines: getEnvInt("RETRIEVAL_CHUNK_OVERLAP", 0),
		},
	})
	if err != nil {
		_ = db.Close()
		_ = index.Close()
		return nil, fmt.Errorf("initialise ingestion pipeline: %w", err)
	}

	answerer, err := answer.New(&answer.Config{
		ChatModel: chatModel,
		Docs:      db,
		Retriever: retriever,
		History:   db,
		TopK:      getEnvInt("RETRIEVAL_TOP_K", 0),
	})
	if err != nil {
		_ = db.Close()
		_ = index.Close()
		return nil, fmt.Errorf("initialise answer service: %w", err)
	}

	summ, err := summarizer.New(chatModel, db, 0)
	if err != nil {
		_ = db.Close()
		_ = index.Close()
		return nil, fmt.Errorf("initialise summarizer: %w", err)
	}

	return &services{
		store:       db,
		providerCfg: providerCfg,
		chatModel:   chatModel,
		embedder:    emb,
		index:       index,
		qdrant:      qdrantIndex,
		pipeline:    pipeline,
		answerer:    answerer,
		summarizer:  summ,
		close: func() {
			_ = index.Close()
			_ = db.Close()
		},
	}, nil
}

// buildIndex constructs the vector index. Qdrant is used when QDRANT_HOST is
// set; otherwise an in-memory index is returned.
func buildIndex(ctx context.Context, log *slog.Logger) (rag.VectorIndex, *rag.QdrantIndex, error) {
	host := os.Getenv("QDRANT_HOST")
	if host == "" {
		log.Warn("QDRANT_HOST not set — using in-memory vector index; vectors are lost on restart")
		return rag.NewMemoryIndex(), nil, nil
	}

	embBackend := getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))
	port := getEnvInt("QDRANT_PORT", 6334)
	qi, err := rag.NewQdrantIndex(ctx, &rag.QdrantConfig{
		Host:       host,
		Port:       port,
		Collection: getEnvOrDefault("QDRANT_COLLECTION", "docqa-chunks"),
		VectorSize: uint64(embedder.DefaultDimensions(embBackend)), //nolint:gosec // dimensions are bounded
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect to Qdrant at %s:%d: %w", host, port, err)
	}
	log.Info("qdrant index ready", slog.String("host", host), slog.Int("port", port))
	return qi, qi, nil
}

// buildSearchProvider constructs the optional web search provider from
// SEARCH_PROVIDER. Returns nil when unset.
func buildSearchProvider(log *slog.Logger) search.Provider {
	name := os.Getenv("SEARCH_PROVIDER")
	if name == "" {
		return nil
	}
	p, err := search.New(name, &search.Config{
		APIKey: os.Getenv("SEARCH_API_KEY"),
		Model:  os.Getenv("SEARCH_MODEL"),
	})
	if err != nil {
		log.Warn("web search disabled", slog.Any("error", err))
		return nil
	}
	if !p.Configured() {
		// Keep the provider wired so the API reports missing credentials
		// instead of pretending search does not exist.
		log.Warn("web search provider missing credentials", slog.String("provider", p.Name()))
		return p
	}
	log.Info("web search enabled", slog.String("provider", p.Name()))
	return p
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
