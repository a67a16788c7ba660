// Package summarizer generates and persists short document summaries.
// Summaries are shown in document listings so users can tell documents apart
// without opening them; they are never used as retrieval context.
package summarizer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/docqa-go/internal/budget"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/store"
)

const summaryPrompt = `Summarize the following document in 2-3 sentences.
State what the document is and what it covers. Output only the summary.

Document (%s):

%s`

// Summarizer produces summaries with a chat model and stores them on the
// document record.
type Summarizer struct {
	chatModel model.ToolCallingChatModel
	docs      store.DocumentStore

	// maxInputTokens bounds how much document text is sent to the model.
	maxInputTokens int
}

// New constructs a Summarizer. maxInputTokens defaults to
// budget.DefaultMaxContextTokens when not positive.
func New(chatModel model.ToolCallingChatModel, docs store.DocumentStore, maxInputTokens int) (*Summarizer, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("summarizer: chat model must not be nil")
	}
	if docs == nil {
		return nil, fmt.Errorf("summarizer: document store must not be nil")
	}
	if maxInputTokens <= 0 {
		maxInputTokens = budget.DefaultMaxContextTokens
	}
	return &Summarizer{chatModel: chatModel, docs: docs, maxInputTokens: maxInputTokens}, nil
}

// Summarize generates a summary for the document, persists it, and returns
// it. Documents longer than the input budget are truncated — a summary of
// the head is better than no summary.
func (s *Summarizer) Summarize(ctx context.Context, documentID string) (string, error) {
	doc, err := s.docs.Get(ctx, documentID)
	if err != nil {
		return "", fmt.Errorf("summarizer: %w", err)
	}
	if doc.Status == store.StatusRemoved {
		return "", fmt.Errorf("summarizer: document %s is removed", documentID)
	}

	content := doc.Content
	if truncated := truncateToTokens(content, s.maxInputTokens); truncated != content {
		logging.FromContext(ctx).Debug("summarizer: truncated document to fit input budget",
			slog.String("document_id", documentID),
			slog.Int("original_bytes", len(content)),
			slog.Int("sent_bytes", len(truncated)),
		)
		content = truncated
	}

	msgs := []*schema.Message{
		schema.UserMessage(fmt.Sprintf(summaryPrompt, doc.Filename, content)),
	}
	resp, err := s.chatModel.Generate(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("summarizer: generate: %w", err)
	}
	if resp == nil || resp.Content == "" {
		return "", fmt.Errorf("summarizer: model returned an empty summary")
	}

	if err := s.docs.SetSummary(ctx, documentID, resp.Content); err != nil {
		return "", fmt.Errorf("summarizer: persist: %w", err)
	}
	return resp.Content, nil
}

// truncateToTokens cuts s so its estimated token count fits maxTokens,
// breaking on a line boundary where possible.
func truncateToTokens(s string, maxTokens int) string {
	if budget.Estimate(s) <= maxTokens {
		return s
	}
	limit := maxTokens * 4 // inverse of the chars-per-token heuristic
	if limit >= len(s) {
		return s
	}
	cut := s[:limit]
	for i := len(cut) - 1; i > 0; i-- {
		if cut[i] == '\n' {
			return cut[:i]
		}
	}
	return cut
}
