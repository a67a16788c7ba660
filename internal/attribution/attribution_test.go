package attribution

import (
	"testing"

	"github.com/54b3r/docqa-go/internal/chunker"
	"github.com/54b3r/docqa-go/internal/rag"
)

func TestAttribute_PreservesOrderAndRendersReferences(t *testing.T) {
	t.Parallel()

	result := &rag.RetrievalResult{
		Question: "what changed?",
		Hits: []rag.Hit{
			{Chunk: chunker.Chunk{Filename: "notes.md", LineStart: 18, LineEnd: 40, Text: "second section"}, Score: 0.91},
			{Chunk: chunker.Chunk{Filename: "notes.md", LineStart: 1, LineEnd: 20, Text: "first section"}, Score: 0.74},
		},
	}

	citations := Attribute(result)
	if len(citations) != 2 {
		t.Fatalf("got %d citations, want 2", len(citations))
	}
	if citations[0].Reference != "notes.md:18-40" {
		t.Errorf("Reference = %q, want %q", citations[0].Reference, "notes.md:18-40")
	}
	if citations[0].Content != "second section" {
		t.Errorf("Content = %q, want chunk text", citations[0].Content)
	}
	if citations[1].Reference != "notes.md:1-20" {
		t.Errorf("Reference = %q, want %q", citations[1].Reference, "notes.md:1-20")
	}
	if citations[0].RelevanceScore < citations[1].RelevanceScore {
		t.Error("citation order does not follow hit order")
	}
}

func TestAttribute_SingleLineCollapses(t *testing.T) {
	t.Parallel()

	result := &rag.RetrievalResult{
		Hits: []rag.Hit{
			{Chunk: chunker.Chunk{Filename: "faq.txt", LineStart: 7, LineEnd: 7}, Score: 0.5},
		},
	}
	citations := Attribute(result)
	if citations[0].Reference != "faq.txt:7" {
		t.Errorf("Reference = %q, want %q", citations[0].Reference, "faq.txt:7")
	}
}

func TestAttribute_ClampsScores(t *testing.T) {
	t.Parallel()

	result := &rag.RetrievalResult{
		Hits: []rag.Hit{
			{Chunk: chunker.Chunk{Filename: "a.txt", LineStart: 1, LineEnd: 2}, Score: 1.2},
			{Chunk: chunker.Chunk{Filename: "a.txt", LineStart: 3, LineEnd: 4}, Score: -0.1},
		},
	}
	citations := Attribute(result)
	if citations[0].RelevanceScore != 1 {
		t.Errorf("RelevanceScore = %v, want 1", citations[0].RelevanceScore)
	}
	if citations[1].RelevanceScore != 0 {
		t.Errorf("RelevanceScore = %v, want 0", citations[1].RelevanceScore)
	}
}

func TestAttribute_Empty(t *testing.T) {
	t.Parallel()

	if got := Attribute(nil); got != nil {
		t.Errorf("Attribute(nil) = %v, want nil", got)
	}
	if got := Attribute(&rag.RetrievalResult{}); got != nil {
		t.Errorf("Attribute(empty) = %v, want nil", got)
	}
}

func TestReference(t *testing.T) {
	t.Parallel()

	tests := []struct {
		filename   string
		start, end int
		want       string
	}{
		{"doc.txt", 1, 20, "doc.txt:1-20"},
		{"doc.txt", 5, 5, "doc.txt:5"},
		{"nested name.md", 38, 60, "nested name.md:38-60"},
	}
	for _, tt := range tests {
		if got := Reference(tt.filename, tt.start, tt.end); got != tt.want {
			t.Errorf("Reference(%q, %d, %d) = %q, want %q", tt.filename, tt.start, tt.end, got, tt.want)
		}
	}
}
