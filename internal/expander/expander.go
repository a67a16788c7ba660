// Package expander derives related query variants from one user question to
// widen retrieval recall. The normalized original question is always the
// first and highest-priority variant; deterministic heuristics (and an
// optional LLM paraphraser) add more. Expansion failures never fail the
// query — the expander degrades to the original question alone.
package expander

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/54b3r/docqa-go/internal/logging"
)

// DefaultMaxVariants bounds the query fan-out when no explicit limit is
// configured.
const DefaultMaxVariants = 4

// Generator produces additional query phrasings for a question. It is the
// optional, typically LLM-backed variant source; errors are tolerated.
type Generator interface {
	// Variants returns up to n alternative phrasings of question.
	Variants(ctx context.Context, question string, n int) ([]string, error)
}

// Config holds expansion parameters.
type Config struct {
	// MaxVariants caps the total variant count, the original included.
	// Defaults to DefaultMaxVariants when not positive.
	MaxVariants int
}

// Expander implements rag.QueryExpander with deterministic heuristics plus
// an optional Generator.
type Expander struct {
	// gen is the optional paraphrase source. Nil disables LLM expansion.
	gen Generator

	// max is the resolved variant cap.
	max int
}

// New constructs an Expander. gen may be nil.
func New(gen Generator, cfg *Config) *Expander {
	max := DefaultMaxVariants
	if cfg != nil && cfg.MaxVariants > 0 {
		max = cfg.MaxVariants
	}
	return &Expander{gen: gen, max: max}
}

// Expand returns the ordered variant list for question: the normalized
// original first, then heuristic variants, then generated paraphrases,
// deduplicated after case/whitespace folding and capped at the configured
// maximum. Expand never returns an empty slice and never fails.
func (e *Expander) Expand(ctx context.Context, question string) []string {
	log := logging.FromContext(ctx)

	original := Normalize(question)
	variants := []string{original}

	if v := temporalVariant(original); v != "" {
		variants = append(variants, v)
	}
	if v := keywordVariant(original); v != "" {
		variants = append(variants, v)
	}

	if e.gen != nil && len(variants) < e.max {
		generated, err := e.gen.Variants(ctx, original, e.max-len(variants))
		if err != nil {
			// Degraded, not fatal: heuristic variants still apply.
			log.Warn("query expansion generator failed, continuing without it",
				slog.Any("error", err),
			)
		} else {
			variants = append(variants, generated...)
		}
	}

	return dedupe(variants, e.max)
}

// Normalize folds whitespace so equivalent questions compare and embed
// identically. Case is preserved — embeddings are case-sensitive inputs.
func Normalize(q string) string {
	return strings.Join(strings.Fields(q), " ")
}

// yearPattern matches four-digit years between 1900 and 2099.
var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// temporalVariant augments questions that reference a span of years with
// terms that documents commonly use for the same information, improving
// recall for "from X to Y" style questions. Returns "" when the heuristic
// does not apply.
func temporalVariant(question string) string {
	years := yearPattern.FindAllString(question, -1)
	if len(years) < 2 {
		return ""
	}

	lower := strings.ToLower(question)
	var extra []string
	if strings.Contains(lower, "work") {
		extra = append(extra, "employment", "job", "position", "company")
	}
	for _, w := range []string{"from", "to", "until", "through", "between", "during"} {
		if containsWord(lower, w) {
			extra = append(extra, "time period", "duration")
			break
		}
	}
	if len(extra) == 0 {
		return ""
	}
	return question + " " + strings.Join(extra, " ")
}

// stopwords are dropped by the keyword variant so embedding similarity
// concentrates on content-bearing terms.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "at": true, "be": true,
	"by": true, "did": true, "do": true, "does": true, "for": true,
	"from": true, "how": true, "in": true, "is": true, "it": true,
	"of": true, "on": true, "or": true, "the": true, "to": true,
	"was": true, "were": true, "what": true, "when": true, "where": true,
	"which": true, "who": true, "why": true, "with": true,
}

// keywordVariant strips stopwords for a keyword-style match. Returns ""
// when too little remains or nothing was removed.
func keywordVariant(question string) string {
	fields := strings.Fields(question)
	kept := make([]string, 0, len(fields))
	for _, f := range fields {
		if !stopwords[strings.ToLower(strings.Trim(f, "?.,!"))] {
			kept = append(kept, f)
		}
	}
	if len(kept) < 2 || len(kept) == len(fields) {
		return ""
	}
	return strings.Join(kept, " ")
}

// containsWord reports whether s contains w as a whole word.
func containsWord(s, w string) bool {
	for _, f := range strings.Fields(s) {
		if strings.Trim(f, "?.,!") == w {
			return true
		}
	}
	return false
}

// dedupe removes empty and duplicate variants (compared after lowercasing
// and whitespace folding), preserving first-seen order, and caps the result.
func dedupe(variants []string, max int) []string {
	seen := make(map[string]bool, len(variants))
	out := make([]string, 0, len(variants))
	for _, v := range variants {
		v = Normalize(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
		if len(out) == max {
			break
		}
	}
	return out
}
