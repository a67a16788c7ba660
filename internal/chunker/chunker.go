// Package chunker splits raw document text into line-addressable chunks.
// Chunks are the atomic unit of indexing and retrieval: every chunk carries
// the exact 1-indexed line range it was cut from, so retrieval hits can be
// traced back to `filename:line_start-line_end` citations.
package chunker

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// chunkIDNamespace is the fixed UUIDv5 namespace for deterministic chunk IDs.
// The same document id and chunk index always produce the same ID, which
// makes re-indexing unchanged content an idempotent upsert.
var chunkIDNamespace = uuid.MustParse("c29c9b66-40d7-4db8-9b5a-4f31f1f0a2d1")

// Chunk is a line-bounded slice of a document's text.
type Chunk struct {
	// ID is the deterministic identifier derived from DocumentID and Index.
	ID string

	// DocumentID is the id of the document this chunk belongs to.
	DocumentID string

	// Filename is the original filename of the document, carried on every
	// chunk so citations can be built without a store lookup.
	Filename string

	// Index is the 0-based position of this chunk within the document.
	Index int

	// LineStart is the 1-indexed first line covered by this chunk (inclusive).
	LineStart int

	// LineEnd is the 1-indexed last line covered by this chunk (inclusive).
	LineEnd int

	// Text is the raw chunk content, exactly as cut from the document.
	Text string

	// LeadOverlap is the number of leading lines repeated from the previous
	// chunk. It is 0 for the first chunk. Dropping the first LeadOverlap
	// lines of every chunk and joining the rest reconstructs the document.
	LeadOverlap int
}

// Config holds the chunking parameters.
type Config struct {
	// TargetLines is the upper bound on lines per chunk.
	TargetLines int

	// OverlapLines is how many trailing lines of a chunk are repeated as the
	// leading lines of the next chunk. Must be strictly smaller than
	// TargetLines.
	OverlapLines int
}

// DefaultConfig returns the chunking parameters used when the caller passes
// a nil config.
func DefaultConfig() *Config {
	return &Config{TargetLines: 20, OverlapLines: 3}
}

// Split cuts text into ordered, overlapping chunks on line boundaries.
//
// Chunk boundaries prefer blank lines: when the target size would cut the
// middle of a paragraph, the boundary snaps back to the nearest blank line
// within a lookback window of a quarter of TargetLines. An empty document
// yields zero chunks; a document shorter than TargetLines yields exactly one
// chunk spanning the whole document; a trailing partial chunk is always kept.
//
// Split is deterministic: identical input and parameters produce
// byte-identical chunks with identical IDs.
func Split(documentID, filename, text string, cfg *Config) ([]Chunk, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.TargetLines <= 0 {
		return nil, fmt.Errorf("chunker: target lines must be positive, got %d", cfg.TargetLines)
	}
	if cfg.OverlapLines < 0 || cfg.OverlapLines >= cfg.TargetLines {
		return nil, fmt.Errorf("chunker: overlap lines must be in [0, %d), got %d", cfg.TargetLines, cfg.OverlapLines)
	}
	if documentID == "" {
		return nil, fmt.Errorf("chunker: document id must not be empty")
	}

	if text == "" {
		return nil, nil
	}

	lines := strings.Split(text, "\n")
	window := cfg.TargetLines / 4
	if window < 1 {
		window = 1
	}

	var chunks []Chunk
	start := 0
	prevEnd := 0
	for start < len(lines) {
		// lead is how many lines at the head of this chunk repeat the tail
		// of the previous one. The target bounds the new lines per chunk;
		// the overlap rides on top of it.
		lead := prevEnd - start
		end := start + lead + cfg.TargetLines
		if end >= len(lines) {
			end = len(lines)
		} else {
			end = snapToParagraph(lines, start+lead+1, end, window)
		}

		idx := len(chunks)
		chunks = append(chunks, Chunk{
			ID:          ChunkID(documentID, idx),
			DocumentID:  documentID,
			Filename:    filename,
			Index:       idx,
			LineStart:   start + 1,
			LineEnd:     end,
			Text:        strings.Join(lines[start:end], "\n"),
			LeadOverlap: lead,
		})

		if end == len(lines) {
			break
		}

		prevEnd = end
		next := end - cfg.OverlapLines
		if next <= start {
			// Snapping produced a chunk smaller than the overlap; advance
			// without overlap so the split always terminates.
			next = end
		}
		start = next
	}

	return chunks, nil
}

// snapToParagraph moves the exclusive boundary end back to just after the
// nearest blank line within window lines, so chunks end at paragraph breaks
// rather than mid-sentence. floor is the smallest permitted boundary — a
// chunk must always extend past the previous chunk's end. Returns end
// unchanged when no blank line is found in the window.
func snapToParagraph(lines []string, floor, end, window int) int {
	lo := end - window
	if lo < floor {
		lo = floor
	}
	for j := end; j >= lo; j-- {
		if strings.TrimSpace(lines[j-1]) == "" {
			return j
		}
	}
	return end
}

// ChunkID returns the deterministic UUIDv5 id for the chunk at the given
// index of the given document.
func ChunkID(documentID string, index int) string {
	return uuid.NewSHA1(chunkIDNamespace, []byte(documentID+"#"+strconv.Itoa(index))).String()
}

// LineCount returns the number of lines in text using the same line-splitting
// convention as Split, so stored line counts always agree with chunk ranges.
func LineCount(text string) int {
	if text == "" {
		return 0
	}
	return strings.Count(text, "\n") + 1
}

// Reassemble joins chunks back into the original document text by dropping
// each chunk's declared leading overlap. It is the inverse of Split and
// exists mainly to let callers verify a chunk set before indexing it.
func Reassemble(chunks []Chunk) string {
	var b strings.Builder
	for i, c := range chunks {
		lines := strings.Split(c.Text, "\n")
		if c.LeadOverlap > 0 && c.LeadOverlap <= len(lines) {
			lines = lines[c.LeadOverlap:]
		}
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(strings.Join(lines, "\n"))
	}
	return b.String()
}
