package ingestion

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrInvalidDocument is wrapped by every validation failure so transports can
// map rejected input to a client error.
var ErrInvalidDocument = errors.New("ingestion: invalid document")

// ValidateDocument rejects content the pipeline cannot index faithfully:
// binary data, invalid UTF-8, oversized bodies, and records with no
// filename. Line-addressable citations only make sense for text, so this
// check runs before anything is persisted. All failures wrap
// ErrInvalidDocument.
func ValidateDocument(filename, content string, maxBytes int) error {
	if strings.TrimSpace(filename) == "" {
		return fmt.Errorf("%w: filename must not be empty", ErrInvalidDocument)
	}
	if strings.ContainsAny(filename, "/\\") {
		return fmt.Errorf("%w: filename %q must not contain path separators", ErrInvalidDocument, filename)
	}
	if len(content) == 0 {
		return fmt.Errorf("%w: %s: document is empty", ErrInvalidDocument, filename)
	}
	if maxBytes > 0 && len(content) > maxBytes {
		return fmt.Errorf("%w: %s: document is %d bytes, limit is %d", ErrInvalidDocument, filename, len(content), maxBytes)
	}
	if !utf8.ValidString(content) {
		return fmt.Errorf("%w: %s: content is not valid UTF-8", ErrInvalidDocument, filename)
	}
	if strings.ContainsRune(content, '\x00') {
		return fmt.Errorf("%w: %s: content contains NUL bytes (binary file?)", ErrInvalidDocument, filename)
	}
	return nil
}
