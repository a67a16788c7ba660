// Package attribution turns retrieval hits into user-facing citations.
// Every citation carries the source filename and the line range of the
// supporting chunk, rendered as "filename:start-end" so an answer can point
// back to the exact passage it came from.
package attribution

import (
	"fmt"

	"github.com/54b3r/docqa-go/internal/rag"
)

// Citation is one attributed source passage.
type Citation struct {
	// Filename is the source document's filename as ingested.
	Filename string `json:"filename"`
	// LineStart is the 1-based first line of the supporting passage.
	LineStart int `json:"line_start"`
	// LineEnd is the 1-based last line of the supporting passage, inclusive.
	LineEnd int `json:"line_end"`
	// RelevanceScore is the retrieval similarity in [0, 1].
	RelevanceScore float32 `json:"relevance_score"`
	// Content is the passage text.
	Content string `json:"content"`
	// Reference is the rendered "filename:start-end" locator.
	Reference string `json:"reference"`
}

// Attribute converts ranked retrieval hits into citations, preserving hit
// order. Scores outside [0, 1] are clamped.
func Attribute(result *rag.RetrievalResult) []Citation {
	if result == nil || len(result.Hits) == 0 {
		return nil
	}
	citations := make([]Citation, 0, len(result.Hits))
	for _, hit := range result.Hits {
		citations = append(citations, Citation{
			Filename:       hit.Chunk.Filename,
			LineStart:      hit.Chunk.LineStart,
			LineEnd:        hit.Chunk.LineEnd,
			RelevanceScore: clamp01(hit.Score),
			Content:        hit.Chunk.Text,
			Reference:      Reference(hit.Chunk.Filename, hit.Chunk.LineStart, hit.Chunk.LineEnd),
		})
	}
	return citations
}

// Reference renders the "filename:start-end" locator. A single-line passage
// collapses to "filename:start".
func Reference(filename string, lineStart, lineEnd int) string {
	if lineStart == lineEnd {
		return fmt.Sprintf("%s:%d", filename, lineStart)
	}
	return fmt.Sprintf("%s:%d-%d", filename, lineStart, lineEnd)
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
