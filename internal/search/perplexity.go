package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// defaultPerplexityModel is an online model that performs live web search.
const defaultPerplexityModel = "sonar"

func init() {
	Register("perplexity", func(cfg *Config) (Provider, error) {
		return NewPerplexity(cfg)
	})
}

// Perplexity implements Provider using the Perplexity chat completions API.
// It is safe for concurrent use.
type Perplexity struct {
	// baseURL is the API base; overridable for tests.
	baseURL string
	// apiKey is the Bearer token.
	apiKey string
	// model is the Perplexity model name.
	model string
	// client is the shared HTTP client with a sensible timeout.
	client *http.Client
}

// NewPerplexity constructs a Perplexity provider. A missing API key is not a
// construction error; the provider reports it through Configured.
func NewPerplexity(cfg *Config) (*Perplexity, error) {
	model := cfg.Model
	if model == "" {
		model = defaultPerplexityModel
	}
	return &Perplexity{
		baseURL: "https://api.perplexity.ai",
		apiKey:  cfg.APIKey,
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// Name returns the registry name.
func (p *Perplexity) Name() string { return "perplexity" }

// Configured reports whether an API key is present.
func (p *Perplexity) Configured() bool { return p.apiKey != "" }

// perplexityRequest is the JSON body sent to the chat completions endpoint.
type perplexityRequest struct {
	Model    string              `json:"model"`
	Messages []perplexityMessage `json:"messages"`
}

type perplexityMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// perplexityResponse is the JSON body returned from the chat completions
// endpoint. Citations is the Perplexity-specific source URL list.
type perplexityResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Citations []string `json:"citations"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Search runs the query through an online model and returns the synthesized
// answer with its cited URLs.
func (p *Perplexity) Search(ctx context.Context, query string) (*Result, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("search: perplexity: no API key configured")
	}
	body := perplexityRequest{
		Model: p.model,
		Messages: []perplexityMessage{
			{Role: "user", Content: query},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("search: perplexity: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("search: perplexity: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: perplexity: request failed: %w", err)
	}
	defer resp.Body.Close()

	var result perplexityResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("search: perplexity: decode response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if result.Error != nil {
			msg = result.Error.Message
		}
		return nil, fmt.Errorf("search: perplexity: %s", msg)
	}

	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("search: perplexity: response contained no choices")
	}
	return &Result{
		Answer:  result.Choices[0].Message.Content,
		Sources: result.Citations,
	}, nil
}
