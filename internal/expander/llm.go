package expander

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// paraphrasePrompt instructs the model to emit one rewrite per line with no
// commentary, which keeps parsing trivial.
const paraphrasePrompt = `Rewrite the following question in %d different ways that preserve its meaning.
Use different wording and phrasing in each rewrite.
Output only the rewrites, one per line, with no numbering and no extra text.

Question: %s`

// ModelGenerator produces query paraphrases with a chat model. It implements
// Generator.
type ModelGenerator struct {
	model model.ToolCallingChatModel
}

// NewModelGenerator wraps m as a paraphrase Generator.
func NewModelGenerator(m model.ToolCallingChatModel) *ModelGenerator {
	return &ModelGenerator{model: m}
}

// Variants asks the model for up to n rewrites of question, one per line.
func (g *ModelGenerator) Variants(ctx context.Context, question string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	msgs := []*schema.Message{
		schema.UserMessage(fmt.Sprintf(paraphrasePrompt, n, question)),
	}
	resp, err := g.model.Generate(ctx, msgs)
	if err != nil {
		return nil, fmt.Errorf("expander: generate failed: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("expander: generate returned nil response")
	}
	return parseVariants(resp.Content, n), nil
}

// parseVariants splits model output into cleaned, non-empty lines, tolerating
// numbering and bullet prefixes the model may add despite instructions.
func parseVariants(content string, n int) []string {
	var out []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*•0123456789.) ")
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == n {
			break
		}
	}
	return out
}
