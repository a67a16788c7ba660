package expander

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

// fakeGenerator returns canned paraphrases or a canned error.
type fakeGenerator struct {
	variants []string
	err      error
	gotN     int
}

func (f *fakeGenerator) Variants(_ context.Context, _ string, n int) ([]string, error) {
	f.gotN = n
	if f.err != nil {
		return nil, f.err
	}
	if len(f.variants) > n {
		return f.variants[:n], nil
	}
	return f.variants, nil
}

func TestExpand_OriginalAlwaysFirst(t *testing.T) {
	t.Parallel()

	e := New(nil, nil)
	got := e.Expand(context.Background(), "  What   is the   refund policy?  ")
	if len(got) == 0 {
		t.Fatal("Expand returned no variants")
	}
	if got[0] != "What is the refund policy?" {
		t.Errorf("first variant = %q, want normalized original", got[0])
	}
}

func TestExpand_TemporalVariant(t *testing.T) {
	t.Parallel()

	e := New(nil, nil)
	got := e.Expand(context.Background(), "Where did she work from 2019 to 2022?")
	if len(got) < 2 {
		t.Fatalf("expected a temporal variant, got %v", got)
	}
	v := got[1]
	for _, term := range []string{"employment", "job", "position", "company"} {
		if !strings.Contains(v, term) {
			t.Errorf("temporal variant %q missing term %q", v, term)
		}
	}
	if !strings.HasPrefix(v, "Where did she work from 2019 to 2022?") {
		t.Errorf("temporal variant should extend the original, got %q", v)
	}
}

func TestExpand_NoTemporalVariantForSingleYear(t *testing.T) {
	t.Parallel()

	e := New(nil, nil)
	got := e.Expand(context.Background(), "What happened in 2021?")
	for _, v := range got[1:] {
		if strings.Contains(v, "duration") || strings.Contains(v, "employment") {
			t.Errorf("unexpected temporal variant %q for single-year question", v)
		}
	}
}

func TestExpand_KeywordVariant(t *testing.T) {
	t.Parallel()

	e := New(nil, nil)
	got := e.Expand(context.Background(), "What is the capital of France?")
	var found bool
	for _, v := range got[1:] {
		if v == "capital France?" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected stopword-reduced variant in %v", got)
	}
}

func TestExpand_GeneratorVariantsAppended(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{variants: []string{"Which city is the French capital?"}}
	e := New(gen, nil)
	got := e.Expand(context.Background(), "What is the capital of France?")
	var found bool
	for _, v := range got {
		if v == "Which city is the French capital?" {
			found = true
		}
	}
	if !found {
		t.Errorf("generated variant missing from %v", got)
	}
	if gen.gotN <= 0 || gen.gotN >= DefaultMaxVariants {
		t.Errorf("generator asked for %d variants, want remaining budget below cap", gen.gotN)
	}
}

func TestExpand_GeneratorFailureDegrades(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{err: errors.New("backend down")}
	e := New(gen, nil)
	got := e.Expand(context.Background(), "What is the capital of France?")
	if len(got) == 0 || got[0] != "What is the capital of France?" {
		t.Fatalf("expected heuristic variants despite generator failure, got %v", got)
	}
}

func TestExpand_DedupAndCap(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{variants: []string{
		"what is the CAPITAL of france?", // dup of original after folding
		"Name the capital city of France",
		"France capital city name",
		"French capital?",
	}}
	e := New(gen, &Config{MaxVariants: 3})
	got := e.Expand(context.Background(), "What is the capital of France?")
	if len(got) > 3 {
		t.Fatalf("variant count %d exceeds cap 3: %v", len(got), got)
	}
	seen := map[string]bool{}
	for _, v := range got {
		k := strings.ToLower(v)
		if seen[k] {
			t.Errorf("duplicate variant %q", v)
		}
		seen[k] = true
	}
}

func TestParseVariants(t *testing.T) {
	t.Parallel()

	content := "1. First rewrite\n- Second rewrite\n\n• Third rewrite\nFourth rewrite"
	got := parseVariants(content, 3)
	want := []string{"First rewrite", "Second rewrite", "Third rewrite"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseVariants = %v, want %v", got, want)
	}
}
