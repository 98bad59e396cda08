// Package document isolates the TO-BE section of a requirements document
// and extracts the project identifier. Both operations work on the plain
// text produced by an upstream extractor; binary decoding (PDF/DOCX) is
// an opaque collaborator behind the Extractor interface.
package document

import (
	"regexp"
	"strings"

	"tcgen/internal/logging"
)

// sectionPatterns holds the compiled heading patterns used to locate the
// TO-BE section. Built once via NewLocator and never mutated afterwards.
type sectionPatterns struct {
	start         *regexp.Regexp
	startFallback *regexp.Regexp
	end           *regexp.Regexp
	endFallback   *regexp.Regexp
	actionMarker  *regexp.Regexp
}

// lookaheadChars bounds the window scanned for an action marker after each
// start-heading candidate. Discriminates the real section body from a
// table-of-contents entry reusing the same heading text.
const lookaheadChars = 80000

// Locator finds the TO-BE section inside the full document text.
type Locator struct {
	patterns sectionPatterns
}

// NewLocator compiles the section heading patterns.
//
// DOCX extraction (tables especially) commonly inserts " | " cell
// separators, and some documents concatenate "TO-BE2.4" without a space,
// so the patterns tolerate both.
func NewLocator() *Locator {
	return &Locator{patterns: sectionPatterns{
		start: regexp.MustCompile(
			`(?mi)^\s*2\.4\s*(?:\|\s*)?Acciones\s+detalladas\s+del\s+proceso\s+TO[-\s]?BE.*$`),
		startFallback: regexp.MustCompile(
			`(?mi)^\s*(?:\|\s*)?Acciones\s+detalladas\s+del\s+proceso\s+TO[-\s]?BE.*$`),
		end: regexp.MustCompile(
			`(?mi)^\s*2\.5\s*(?:\|\s*)?Matriz\s+(?:de\s+)?criterios\s+de\s+aceptaci[oó]n.*$`),
		endFallback: regexp.MustCompile(
			`(?mi)^\s*(?:\|\s*)?Matriz\s+(?:de\s+)?criterios\s+de\s+aceptaci[oó]n.*$`),
		actionMarker: regexp.MustCompile(
			`(?mi)^\s*\d{1,3}(?:\.\d{1,3})*\.?\s*(?:\|\s*)?Nombre\s+de\s+la\s+acci[oó]n\b`),
	}}
}

// Slice extracts the TO-BE section without being fooled by the table of
// contents. Every occurrence of the start heading is considered; the one
// whose first action marker appears closest wins. The section runs to the
// next-section heading, or end of document when none is found. Returns
// an empty string when no start heading exists at all.
func (l *Locator) Slice(text string) string {
	normalized := normalizeNewlines(text)
	if strings.TrimSpace(normalized) == "" {
		return ""
	}

	starts := l.patterns.start.FindAllStringIndex(normalized, -1)
	if starts == nil {
		starts = l.patterns.startFallback.FindAllStringIndex(normalized, -1)
	}
	if starts == nil {
		return ""
	}

	var best []int
	bestDist := -1

	for _, m := range starts {
		end := m[1] + lookaheadChars
		if end > len(normalized) {
			end = len(normalized)
		}
		lookahead := normalized[m[1]:end]
		am := l.patterns.actionMarker.FindStringIndex(lookahead)
		if am == nil {
			continue
		}
		if bestDist < 0 || am[0] < bestDist {
			best = m
			bestDist = am[0]
		}
	}

	// No candidate has an action marker nearby: take the last occurrence.
	start := best
	if start == nil {
		start = starts[len(starts)-1]
	}
	startPos := start[1]

	rest := normalized[startPos:]
	endMatch := l.patterns.end.FindStringIndex(rest)
	if endMatch == nil {
		endMatch = l.patterns.endFallback.FindStringIndex(rest)
	}

	section := rest
	if endMatch != nil && endMatch[0] > 0 {
		section = rest[:endMatch[0]]
	}

	logging.DocumentDebug("TO-BE section sliced: candidates=%d chars=%d", len(starts), len(section))
	return strings.TrimSpace(section)
}

// normalizeNewlines unifies CRLF/CR line endings.
func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
