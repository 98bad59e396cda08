package document

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Extractor decodes an uploaded document into plain text. PDF and DOCX
// decoding live behind this interface in a separate service; the pipeline
// only ever sees the normalized string.
type Extractor interface {
	ExtractText(filename string, data []byte) (string, error)
}

// PlainTextExtractor handles documents that are already plain text
// (.txt files, or text piped through another decoder).
type PlainTextExtractor struct{}

// ExtractText normalizes a UTF-8 text payload: CRLF/CR unified, zero-width
// and non-breaking characters cleaned, blank lines dropped, each line
// trimmed. Mirrors what the binary decoders emit so downstream patterns
// behave the same regardless of source format.
func (PlainTextExtractor) ExtractText(filename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".txt" && ext != "" {
		return "", fmt.Errorf("plain text extractor cannot decode %q files", ext)
	}
	return CleanText(string(data)), nil
}

// CleanText normalizes common extraction artifacts so searches and
// patterns behave reliably.
func CleanText(text string) string {
	if text == "" {
		return ""
	}

	text = normalizeNewlines(text)

	// Problematic Unicode characters
	text = strings.ReplaceAll(text, "​", "")
	text = strings.ReplaceAll(text, " ", " ")

	// Dash variants
	text = strings.ReplaceAll(text, "–", "-")
	text = strings.ReplaceAll(text, "—", "-")

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, ln := range lines {
		ln = strings.TrimSpace(ln)
		if ln != "" {
			out = append(out, ln)
		}
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
