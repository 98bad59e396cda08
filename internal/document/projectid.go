package document

import (
	"regexp"
	"strings"

	"tcgen/internal/logging"
)

// idLabel pairs a label pattern with its priority (lower is better).
// "ID del proyecto" outranks the shorter "ID proyecto" variant.
type idLabel struct {
	re       *regexp.Regexp
	priority int
}

// projectIDLookahead is how far past a label hit a candidate token is
// searched for. Covers cover-page tables where the value sits a few
// cells away from the label.
const projectIDLookahead = 600

// IDExtractor finds the dotted project identifier in the full document.
type IDExtractor struct {
	labels []idLabel
	token  *regexp.Regexp
}

// NewIDExtractor compiles the label and token patterns.
func NewIDExtractor() *IDExtractor {
	const segment = `(?:[A-Z]{1,10}|\d{1,6}|[A-Z]{1,10}\d{1,10})`
	return &IDExtractor{
		labels: []idLabel{
			{regexp.MustCompile(`(?i)\bID\s+del\s+proyecto\b`), 0},
			{regexp.MustCompile(`(?i)\bID\s+proyecto\b`), 1},
		},
		token: regexp.MustCompile(`(?i)[A-Z]{2,10}(?:\.` + segment + `){1,8}`),
	}
}

// idScore orders candidates: more segments and more length win, the
// better label wins, and ties break toward later position in the text
// (body mentions outrank cover-page mentions).
type idScore struct {
	score    int
	position int
	length   int
}

func (s idScore) less(other idScore) bool {
	if s.score != other.score {
		return s.score < other.score
	}
	if s.position != other.position {
		return s.position < other.position
	}
	return s.length < other.length
}

// Extract returns the most plausible project id, uppercased, or false
// when no valid candidate follows any label occurrence.
func (e *IDExtractor) Extract(text string) (string, bool) {
	t := normalizeNewlines(text)
	if strings.TrimSpace(t) == "" {
		return "", false
	}

	var bestID string
	var bestScore idScore
	found := false

	for _, label := range e.labels {
		for _, m := range label.re.FindAllStringIndex(t, -1) {
			end := m[1] + projectIDLookahead
			if end > len(t) {
				end = len(t)
			}
			// Flatten table-cell separators and newlines so a value split
			// across cells still matches.
			lookahead := strings.NewReplacer("|", " ", "\n", " ").Replace(t[m[1]:end])

			candidate, ok := e.findToken(lookahead)
			if !ok {
				continue
			}

			score := idScore{
				score:    strings.Count(candidate, ".")*100 + 100 + len(candidate) - label.priority*10,
				position: m[0],
				length:   len(candidate),
			}
			if !found || bestScore.less(score) {
				bestScore = score
				bestID = candidate
				found = true
			}
		}
	}

	if found {
		logging.Document("project id extracted: %s", bestID)
	}
	return bestID, found
}

// findToken returns the first id token in the window that survives the
// boundary check, or false. Go's regexp has no lookahead, so the "not
// followed by a dot" boundary is checked explicitly: a match immediately
// followed by '.' is a truncated longer token and the scan moves past it.
// Only one boundary-passing token is considered per window; if it fails
// validation this label occurrence yields no candidate.
func (e *IDExtractor) findToken(window string) (string, bool) {
	offset := 0
	for offset < len(window) {
		loc := e.token.FindStringIndex(window[offset:])
		if loc == nil {
			return "", false
		}
		start, end := offset+loc[0], offset+loc[1]
		if end < len(window) && window[end] == '.' {
			offset = end + 1
			continue
		}

		candidate := strings.ToUpper(strings.TrimSpace(window[start:end]))
		if isValidProjectID(candidate) {
			return candidate, true
		}
		return "", false
	}
	return "", false
}

// isValidProjectID rejects false positives: the id must be dotted and
// carry at least one digit in some segment.
func isValidProjectID(candidate string) bool {
	if candidate == "" || !strings.Contains(candidate, ".") {
		return false
	}
	return strings.ContainsAny(candidate, "0123456789")
}
