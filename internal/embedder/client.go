package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
)

// Default client tuning. Batch size keeps request payloads bounded; the
// retry and cache limits are deliberately conservative.
const (
	DefaultBatchSize   = 32
	DefaultMaxAttempts = 4
	DefaultCacheSize   = 4096
)

// statusError carries the HTTP status of a failed backend call so the retry
// layer can distinguish transient from permanent failures.
type statusError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *statusError) Error() string { return e.Message }

// ClientConfig tunes the batching Client.
type ClientConfig struct {
	// ModelID namespaces cache keys so switching models never serves stale
	// vectors. Use "<backend>/<model>".
	ModelID string
	// BatchSize is the maximum number of texts per backend request.
	// Defaults to DefaultBatchSize.
	BatchSize int
	// MaxAttempts bounds retries per batch, first try included.
	// Defaults to DefaultMaxAttempts.
	MaxAttempts int
	// RequestsPerSecond throttles backend calls. Zero disables throttling.
	RequestsPerSecond float64
	// CacheSize is the maximum number of cached text vectors. Zero uses
	// DefaultCacheSize; negative disables the cache.
	CacheSize int
}

// Client wraps a backend rag.Embedder with batching, retries, rate limiting,
// and a content-addressed vector cache. It is safe for concurrent use and
// itself implements rag.Embedder, so it layers transparently over any
// backend.
type Client struct {
	backend     rag.Embedder
	modelID     string
	batchSize   int
	maxAttempts int
	limiter     *rate.Limiter

	mu       sync.Mutex
	cache    map[string][]float32
	order    []string
	cacheCap int
}

// NewClient wraps backend with the batching layer.
func NewClient(backend rag.Embedder, cfg *ClientConfig) (*Client, error) {
	if backend == nil {
		return nil, fmt.Errorf("embedder: backend must not be nil")
	}
	c := &Client{
		backend:     backend,
		batchSize:   DefaultBatchSize,
		maxAttempts: DefaultMaxAttempts,
		cacheCap:    DefaultCacheSize,
	}
	if cfg != nil {
		c.modelID = cfg.ModelID
		if cfg.BatchSize > 0 {
			c.batchSize = cfg.BatchSize
		}
		if cfg.MaxAttempts > 0 {
			c.maxAttempts = cfg.MaxAttempts
		}
		if cfg.RequestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
		}
		if cfg.CacheSize > 0 {
			c.cacheCap = cfg.CacheSize
		} else if cfg.CacheSize < 0 {
			c.cacheCap = 0
		}
	}
	if c.cacheCap > 0 {
		c.cache = make(map[string][]float32)
	}
	return c, nil
}

// Embed returns one vector per input text, parallel to texts. Cached texts
// are served without a backend call; misses are grouped into batches, each
// retried with exponential backoff on transient failures. On failure the
// returned error is a *rag.EmbeddingError identifying exactly which inputs
// never got vectors.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	log := logging.FromContext(ctx)

	out := make([][]float32, len(texts))
	var missIdx []int
	for i, text := range texts {
		if v, ok := c.cacheGet(text); ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
	}

	if len(missIdx) > 0 {
		log.Debug("embedding cache lookup",
			slog.Int("texts", len(texts)),
			slog.Int("misses", len(missIdx)),
		)
	}

	for start := 0; start < len(missIdx); start += c.batchSize {
		end := start + c.batchSize
		if end > len(missIdx) {
			end = len(missIdx)
		}
		batch := missIdx[start:end]

		inputs := make([]string, len(batch))
		for i, idx := range batch {
			inputs[i] = texts[idx]
		}

		vectors, err := c.embedBatch(ctx, inputs)
		if err != nil {
			// Report the original input positions. The batch holds cache
			// misses only, so the positions may be non-contiguous; anything
			// outside them was served from cache.
			return nil, &rag.EmbeddingError{
				Transient: isTransient(err),
				Indices:   append([]int(nil), batch...),
				Err:       err,
			}
		}
		for i, idx := range batch {
			out[idx] = vectors[i]
			c.cachePut(texts[idx], vectors[i])
		}
	}

	return out, nil
}

// embedBatch performs one backend call with rate limiting and retry.
func (c *Client) embedBatch(ctx context.Context, inputs []string) ([][]float32, error) {
	op := func() ([][]float32, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, backoff.Permanent(err)
			}
		}
		vectors, err := c.backend.Embed(ctx, inputs)
		if err != nil {
			if !isTransient(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if len(vectors) != len(inputs) {
			return nil, backoff.Permanent(fmt.Errorf("embedder: expected %d vectors, got %d", len(inputs), len(vectors)))
		}
		return vectors, nil
	}

	bo := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	return backoff.RetryWithData(op, backoff.WithMaxRetries(bo, uint64(c.maxAttempts-1)))
}

// isTransient classifies a backend error. Rate limiting and server-side
// failures are retryable; auth and client errors are not. Errors that carry
// no HTTP status (network-level failures) are treated as transient.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.Status == http.StatusTooManyRequests || se.Status >= 500
	}
	return true
}

func (c *Client) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(c.modelID + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func (c *Client) cacheGet(text string) ([]float32, bool) {
	if c.cache == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.cache[c.cacheKey(text)]
	return v, ok
}

func (c *Client) cachePut(text string, vector []float32) {
	if c.cache == nil {
		return
	}
	key := c.cacheKey(text)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.cache[key]; ok {
		return
	}
	// FIFO eviction keeps the cache bounded without LRU bookkeeping.
	if len(c.order) >= c.cacheCap {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.cache, oldest)
	}
	c.cache[key] = vector
	c.order = append(c.order, key)
}
