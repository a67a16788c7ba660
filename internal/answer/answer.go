// Package answer generates grounded answers to document questions. It runs
// retrieval, formats the retrieved passages and prior chat turns into the
// model context, and returns the model's answer together with the citations
// it was grounded on. The model only ever sees passages from the requested
// document, so answers cannot leak content across documents.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/docqa-go/internal/attribution"
	"github.com/54b3r/docqa-go/internal/budget"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/store"
)

// systemPrompt establishes the answering contract: grounded answers only,
// with explicit refusal when the context does not contain the answer.
const systemPrompt = `You are a document question-answering assistant. Answer the user's question
using ONLY the numbered context passages provided. Each passage is an excerpt
from the user's document, labeled with its source location.

Rules:
- Base every statement on the provided passages. Do not use outside knowledge.
- When citing, reference passages by their source location (e.g. "notes.txt:18-40").
- If the passages do not contain the answer, say so plainly — do not guess.
- Answer concisely and directly.`

// Config holds the dependencies required to construct a Service.
type Config struct {
	// ChatModel is the LLM backend constructed by the provider factory.
	ChatModel model.ToolCallingChatModel

	// Docs is the document metadata store used to gate answering on the
	// document's indexing state.
	Docs store.DocumentStore

	// Retriever performs per-document retrieval.
	Retriever *rag.Retriever

	// History is the optional chat store used to persist and replay prior
	// turns. If nil, every question is stateless.
	History store.ChatStore

	// HistoryDepth is the number of prior turns (user+assistant pairs) to
	// inject per question. Defaults to 10 if zero.
	HistoryDepth int

	// TopK is how many passages are retrieved per question. Zero uses the
	// retriever's default.
	TopK int

	// MaxContextTokens is the estimated token budget for the full input
	// context. History is trimmed oldest-first to fit. Defaults to
	// budget.DefaultMaxContextTokens if zero.
	MaxContextTokens int
}

// Service answers questions about a single document at a time.
type Service struct {
	chatModel        model.ToolCallingChatModel
	docs             store.DocumentStore
	retriever        *rag.Retriever
	history          store.ChatStore
	historyDepth     int
	topK             int
	maxContextTokens int
}

// Result is a grounded answer and its supporting citations.
type Result struct {
	// Answer is the model's answer text.
	Answer string

	// Citations are the passages the answer was grounded on, ranked by
	// relevance.
	Citations []attribution.Citation

	// ChatSaved reports whether this exchange was persisted to chat history.
	ChatSaved bool
}

// New constructs a Service from the provided Config.
func New(cfg *Config) (*Service, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("answer: ChatModel must not be nil")
	}
	if cfg.Docs == nil {
		return nil, fmt.Errorf("answer: Docs must not be nil")
	}
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("answer: Retriever must not be nil")
	}

	depth := cfg.HistoryDepth
	if depth <= 0 {
		depth = 10
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}

	return &Service{
		chatModel:        cfg.ChatModel,
		docs:             cfg.Docs,
		retriever:        cfg.Retriever,
		history:          cfg.History,
		historyDepth:     depth,
		topK:             cfg.TopK,
		maxContextTokens: maxCtx,
	}, nil
}

// Answer runs retrieval for the question against the given document and
// generates a grounded answer. topK overrides the configured passage count
// for this question; zero or negative uses the service default. When
// saveChat is true and a chat store is configured, the question and answer
// are persisted; persistence failures are logged but never fail the answer.
//
// Returns rag.ErrNotReady when the document exists but is not indexed.
func (s *Service) Answer(ctx context.Context, documentID, question string, topK int, saveChat bool) (*Result, error) {
	log := logging.FromContext(ctx)

	doc, err := s.docs.Get(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("answer: %w", err)
	}
	if doc.Status != store.StatusIndexed {
		return nil, fmt.Errorf("answer: document %s has status %q: %w", documentID, doc.Status, rag.ErrNotReady)
	}

	k := topK
	if k <= 0 {
		k = s.topK
	}
	retrieved, err := s.retriever.Retrieve(ctx, documentID, question, k)
	if err != nil {
		return nil, fmt.Errorf("answer: retrieve: %w", err)
	}
	citations := attribution.Attribute(retrieved)

	messages := s.buildMessages(ctx, documentID, question, citations)
	resp, err := s.chatModel.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("answer: generate: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("answer: generate returned nil response")
	}

	result := &Result{
		Answer:    resp.Content,
		Citations: citations,
	}

	if saveChat && s.history != nil {
		refs := make([]string, len(citations))
		for i, c := range citations {
			refs[i] = c.Reference
		}
		saved := true
		if err := s.history.AppendMessage(ctx, documentID, store.RoleUser, question, nil); err != nil {
			log.Warn("chat history: failed to persist question", slog.Any("error", err))
			saved = false
		}
		if err := s.history.AppendMessage(ctx, documentID, store.RoleAssistant, resp.Content, refs); err != nil {
			log.Warn("chat history: failed to persist answer", slog.Any("error", err))
			saved = false
		}
		result.ChatSaved = saved
	}

	return result, nil
}

// buildMessages assembles [system, ...history, context, user], trimming
// history oldest-first to fit the token budget.
func (s *Service) buildMessages(ctx context.Context, documentID, question string, citations []attribution.Citation) []*schema.Message {
	messages := []*schema.Message{
		schema.SystemMessage(systemPrompt),
	}

	var historyMsgs []*schema.Message
	if s.history != nil {
		prior, err := s.history.History(ctx, documentID, s.historyDepth*2)
		if err != nil {
			logging.FromContext(ctx).Warn("chat history: failed to load prior messages", slog.Any("error", err))
		} else {
			for _, m := range prior {
				switch m.Role {
				case store.RoleUser:
					historyMsgs = append(historyMsgs, schema.UserMessage(m.Content))
				case store.RoleAssistant:
					historyMsgs = append(historyMsgs, schema.AssistantMessage(m.Content, nil))
				}
			}
		}
	}

	if len(citations) > 0 {
		messages = append(messages, schema.SystemMessage(buildContext(citations)))
	}

	// Fixed messages (system prompt, context, current question) are never
	// trimmed; only history gives way.
	fixed := append(messages, schema.UserMessage(question)) //nolint:gocritic // intentional copy
	before := len(historyMsgs)
	historyMsgs = budget.TrimHistory(fixed, historyMsgs, s.maxContextTokens)
	if dropped := before - len(historyMsgs); dropped > 0 {
		logging.FromContext(ctx).Warn("budget: dropped history messages to fit context window",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(historyMsgs)),
			slog.Int("max_tokens", s.maxContextTokens),
		)
	}

	result := make([]*schema.Message, 0, len(messages)+len(historyMsgs)+1)
	result = append(result, messages[0])     // system prompt
	result = append(result, historyMsgs...)  // trimmed history
	result = append(result, messages[1:]...) // retrieved context
	result = append(result, schema.UserMessage(question))
	return result
}

// buildContext formats citations into a numbered context block the model can
// reference by source location.
func buildContext(citations []attribution.Citation) string {
	var sb strings.Builder
	sb.WriteString("## Context Passages\n\n" +
		"The following excerpts were retrieved from the user's document, " +
		"most relevant first.\n\n")
	for i, c := range citations {
		fmt.Fprintf(&sb, "### Passage %d (%s)\n%s\n\n", i+1, c.Reference, c.Content)
	}
	return sb.String()
}
