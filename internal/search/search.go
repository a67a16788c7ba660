// Package search provides pluggable web search providers for questions that
// documents cannot answer. Providers are registered by name; the active one
// is selected through configuration. Web search is optional — the service
// runs fully without it.
package search

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Result is one provider answer with its source links.
type Result struct {
	// Answer is the provider's synthesized answer text.
	Answer string
	// Sources are the URLs the provider cited, in citation order.
	Sources []string
}

// Provider answers free-form queries against the web.
type Provider interface {
	// Name returns the provider's registry name.
	Name() string
	// Configured reports whether the provider has the credentials it needs.
	// Search on an unconfigured provider always fails, but construction
	// succeeds so callers can distinguish "no provider" from "provider
	// missing credentials".
	Configured() bool
	// Search runs the query and returns a synthesized answer.
	Search(ctx context.Context, query string) (*Result, error)
}

// Config carries provider construction settings.
type Config struct {
	// APIKey authenticates with the provider.
	APIKey string
	// Model is the provider-specific model name ("" uses the provider default).
	Model string
}

// Factory constructs a Provider from config.
type Factory func(cfg *Config) (Provider, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a provider factory available under name. Called from
// provider init functions.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = f
}

// New constructs the named provider.
func New(name string, cfg *Config) (Provider, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("search: unknown provider %q — available: %v", name, Names())
	}
	if cfg == nil {
		cfg = &Config{}
	}
	return f(cfg)
}

// Names returns the registered provider names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
