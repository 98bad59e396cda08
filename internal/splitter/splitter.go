// Package splitter divides the TO-BE section into one block per
// requirement/action, surviving the usual PDF and DOCX extraction damage:
// headings split across lines, table-cell separators, boilerplate noise,
// page-break reprints of the same heading, and stray hierarchical numbers
// inside 1..N documents.
package splitter

import (
	"regexp"
	"strconv"
	"strings"

	"tcgen/internal/logging"
)

// Block is one requirement extracted from the TO-BE section.
type Block struct {
	RequirementNumber int
	ScenarioName      string
	InputText         string
}

// DefaultScenarioName is used when a heading carries no usable title and
// for the synthetic whole-input block.
const DefaultScenarioName = "InputText"

const (
	tableCellSep = "|"

	// lookaheadLines bounds the search for the label line in the two-part
	// heading form ("12." on its own line, name a few lines below).
	lookaheadLines = 8

	// modeScanLines bounds the header census that decides whether
	// hierarchical numbering is accepted.
	modeScanLines = 2000

	// dedupTitleLen is how much of the normalized title participates in
	// the duplicate-heading key. Two distinct titles sharing a 120-char
	// prefix collide; known approximation.
	dedupTitleLen = 120
)

// headerPatterns holds the compiled patterns for one splitter instance.
type headerPatterns struct {
	noise       *regexp.Regexp
	sameLine    *regexp.Regexp
	numOnly     *regexp.Regexp
	nameLine    *regexp.Regexp
	labelPrefix *regexp.Regexp
	nonNumeric  *regexp.Regexp
	multiSpace  *regexp.Regexp
}

// Splitter splits a TO-BE section into requirement blocks. Construct once
// and reuse; it holds no per-invocation state.
type Splitter struct {
	patterns headerPatterns
}

// New compiles the splitter patterns.
func New() *Splitter {
	return &Splitter{patterns: headerPatterns{
		// Classification/version/date boilerplate that leaks into every page.
		noise: regexp.MustCompile(
			`(?i)^\s*(Público|Interno|Código|Tipo|Documento|Versión|Fecha de emisión.*|PDD_.*|ID\s*(?:del|de)?\s*proyecto.*)\s*$`),
		// Case A: "12. Nombre de la accion: Escenario" (also "1.1.1. | Nombre ...").
		sameLine: regexp.MustCompile(
			`(?i)^\s*(\d{1,3}(?:\.\d{1,3})*)\.?\s*(?:\|\s*)?Nombre\s+de\s+la\s+acci[oó]n\s*:\s*(.+?)\s*$`),
		// Case B: bare "12" or "1.1.1." on its own line.
		numOnly: regexp.MustCompile(`^\s*(\d{1,3}(?:\.\d{1,3})*)\.?\s*$`),
		nameLine: regexp.MustCompile(
			`(?i)^\s*(?:\|\s*)?Nombre\s+de\s+la\s+acci[oó]n\s*:\s*(.*)\s*$`),
		labelPrefix: regexp.MustCompile(`(?i)\bNombre\s+de\s+la\s+acci[oó]n\s*:`),
		nonNumeric:  regexp.MustCompile(`[^0-9.]`),
		multiSpace:  regexp.MustCompile(`\s{2,}`),
	}}
}

// normalizeLines normalizes line endings, splits table cells into their
// own tokens, and drops boilerplate noise and bare bullet glyphs.
func (s *Splitter) normalizeLines(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	normalized = strings.ReplaceAll(normalized, "​", "")

	var out []string
	for _, line := range strings.Split(normalized, "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			continue
		}

		// DOCX tables: split cells apart so headings and markers buried in
		// cell content are recovered.
		for _, part := range strings.Split(stripped, tableCellSep) {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if s.patterns.noise.MatchString(part) {
				continue
			}
			if part == "◦" || part == "•" {
				continue
			}
			out = append(out, part)
		}
	}
	return out
}

// parseActionNumber converts "12" or "1.1.1" to an integer ordering key
// by concatenating the digits of all segments ("1.1.1" -> 111). This
// avoids collisions when a document uses hierarchical numbering.
func (s *Splitter) parseActionNumber(numStr string) int {
	raw := strings.Trim(s.patterns.nonNumeric.ReplaceAllString(strings.TrimSpace(numStr), ""), ".")
	if raw == "" {
		return 0
	}
	var digits strings.Builder
	for _, part := range strings.Split(raw, ".") {
		if part != "" && isDigits(part) {
			digits.WriteString(part)
		}
	}
	if digits.Len() == 0 {
		return 0
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0
	}
	return n
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// cleanScenarioName strips extraction garbage from a title: duplicated
// "Nombre de la accion:" fragments and leftover cell separators.
func (s *Splitter) cleanScenarioName(text string) string {
	out := strings.TrimSpace(text)
	if loc := s.patterns.labelPrefix.FindStringIndex(out); loc != nil {
		out = strings.TrimSpace(out[:loc[0]])
	}
	out = strings.TrimSpace(strings.ReplaceAll(out, "|", " "))
	out = s.patterns.multiSpace.ReplaceAllString(out, " ")
	if out == "" {
		return DefaultScenarioName
	}
	return out
}

// actionKey keeps the dotted hierarchy (e.g. "33.1") as a stable key.
func (s *Splitter) actionKey(numStr string) string {
	return strings.Trim(s.patterns.nonNumeric.ReplaceAllString(strings.TrimSpace(numStr), ""), ".")
}

// scenarioKey normalizes a title for de-duplication: lowercase, quote
// variants unified, whitespace collapsed, truncated to dedupTitleLen.
func (s *Splitter) scenarioKey(text string) string {
	out := strings.ToLower(strings.TrimSpace(text))
	out = strings.NewReplacer(
		"“", `"`, "”", `"`,
		"‘", "'", "’", "'",
		"|", " ",
	).Replace(out)
	out = s.patterns.multiSpace.ReplaceAllString(out, " ")
	if len(out) > dedupTitleLen {
		out = out[:dedupTitleLen]
	}
	return out
}

// allowHierarchicalHeaders decides whether dotted numbers (33.1, 1.1.1)
// count as headings. When enough simple 1..N candidates exist the
// document is assumed flat and dotted lines are rejected, so a single
// stray "33.1" cannot fragment a flat document.
func (s *Splitter) allowHierarchicalHeaders(lines []string) bool {
	simple, hierarchical := 0, 0

	limit := len(lines)
	if limit > modeScanLines {
		limit = modeScanLines
	}
	for _, line := range lines[:limit] {
		var num string
		if m := s.patterns.sameLine.FindStringSubmatch(line); m != nil {
			num = m[1]
		} else if m := s.patterns.numOnly.FindStringSubmatch(line); m != nil {
			num = m[1]
		} else {
			continue
		}

		num = strings.Trim(strings.TrimSpace(num), ".")
		if num == "" {
			continue
		}
		if strings.Contains(num, ".") {
			hierarchical++
		} else {
			simple++
		}
	}

	return simple < 3 && hierarchical > 0
}

// isValidHeaderNum filters false positives from PDF extraction: numbers
// with a leading zero ("05") are stray page artifacts, and dotted numbers
// are rejected unless hierarchical mode is on.
func (s *Splitter) isValidHeaderNum(numRaw string, allowHierarchical bool) bool {
	cleaned := strings.Trim(s.patterns.nonNumeric.ReplaceAllString(strings.TrimSpace(numRaw), ""), ".")
	if cleaned == "" {
		return false
	}
	if isDigits(cleaned) && len(cleaned) > 1 && cleaned[0] == '0' {
		return false
	}
	if strings.Contains(cleaned, ".") && !allowHierarchical {
		return false
	}
	return true
}

// header is the result of detecting a heading at one line.
type header struct {
	key      string // dedup key: "<number>|<normalized title prefix>"
	num      int
	scenario string
	skip     int // lines consumed in detection (used when skipping duplicates)
}

// detectHeader tries to read a heading starting at lines[i]. Returns nil
// when the line does not open a heading.
func (s *Splitter) detectHeader(lines []string, i int, allowHierarchical bool) *header {
	line := lines[i]

	// Case A: "N(.?) Nombre de la accion: <title>"
	if m := s.patterns.sameLine.FindStringSubmatch(line); m != nil {
		if !s.isValidHeaderNum(m[1], allowHierarchical) {
			return nil
		}
		scenario := s.cleanScenarioName(m[2])
		return &header{
			key:      s.actionKey(m[1]) + "|" + s.scenarioKey(scenario),
			num:      s.parseActionNumber(m[1]),
			scenario: scenario,
			skip:     1,
		}
	}

	// Case B: "N" or "N." alone, label line within the next few lines.
	m := s.patterns.numOnly.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	if !s.isValidHeaderNum(m[1], allowHierarchical) {
		return nil
	}

	reqNum := s.parseActionNumber(m[1])
	maxJ := i + 1 + lookaheadLines
	if maxJ > len(lines) {
		maxJ = len(lines)
	}
	for j := i + 1; j < maxJ; j++ {
		mn := s.patterns.nameLine.FindStringSubmatch(lines[j])
		if mn == nil {
			continue
		}

		if tail := strings.TrimSpace(mn[1]); tail != "" {
			scenario := s.cleanScenarioName(tail)
			return &header{
				key:      s.actionKey(m[1]) + "|" + s.scenarioKey(scenario),
				num:      reqNum,
				scenario: scenario,
				skip:     j - i + 1,
			}
		}

		// Label line has no trailing text: the title is the next line.
		if j+1 < len(lines) && strings.TrimSpace(lines[j+1]) != "" {
			scenario := s.cleanScenarioName(lines[j+1])
			return &header{
				key:      s.actionKey(m[1]) + "|" + s.scenarioKey(scenario),
				num:      reqNum,
				scenario: scenario,
				skip:     j - i + 2,
			}
		}
	}

	return nil
}

// Split separates the TO-BE section into blocks using action headings.
//
// Blocks come out in first-seen heading order, which is not necessarily
// monotone in the numeric key; callers must not assume it. A heading whose
// dedup key has been seen before (page-break reprint) is skipped without
// opening a new block. When no heading ever matches, the whole input
// becomes a single synthetic block.
func (s *Splitter) Split(text string) []Block {
	lines := s.normalizeLines(text)
	if len(lines) == 0 {
		return nil
	}

	allowHierarchical := s.allowHierarchicalHeaders(lines)
	logging.SplitterDebug("hierarchical headers allowed: %v", allowHierarchical)

	var blocks []Block
	seen := make(map[string]struct{})

	currentNum := -1
	currentScenario := ""
	var buf []string

	flush := func() {
		if currentNum < 0 {
			return
		}
		chunk := strings.TrimSpace(strings.Join(buf, "\n"))
		if chunk == "" {
			return
		}
		scenario := strings.TrimSpace(currentScenario)
		if scenario == "" {
			scenario = DefaultScenarioName
		}
		blocks = append(blocks, Block{
			RequirementNumber: currentNum,
			ScenarioName:      scenario,
			InputText:         chunk,
		})
	}

	for i := 0; i < len(lines); {
		h := s.detectHeader(lines, i, allowHierarchical)
		if h == nil {
			// Ordinary content line.
			if currentNum >= 0 {
				buf = append(buf, lines[i])
			}
			i++
			continue
		}

		if _, dup := seen[h.key]; dup {
			// Reprinted heading: skip the lines it spans without emitting.
			skip := h.skip
			if skip < 1 {
				skip = 1
			}
			i += skip
			continue
		}

		flush()
		seen[h.key] = struct{}{}

		currentNum = h.num
		if currentNum == 0 {
			currentNum = len(blocks) + 1
		}
		currentScenario = h.scenario
		buf = []string{lines[i]}
		i++
	}

	flush()

	if len(blocks) == 0 {
		joined := strings.TrimSpace(strings.Join(lines, "\n"))
		if joined == "" {
			return nil
		}
		blocks = []Block{{RequirementNumber: 1, ScenarioName: DefaultScenarioName, InputText: joined}}
	}

	logging.Splitter("split produced %d block(s)", len(blocks))
	return blocks
}
