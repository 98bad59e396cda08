// Package contextpack distills a deterministic global context summary from
// the TO-BE section, so every per-requirement prompt carries the same shared
// background (systems, inputs/outputs, named artifacts, repeated notes,
// cross-activity references, format hints) at a bounded size. No LLM is
// involved; everything is pattern extraction.
package contextpack

import (
	"regexp"
	"sort"
	"strings"

	"tcgen/internal/logging"
)

const (
	maxChars = 2400
	maxLines = 80

	longLineSplit   = 180
	maxFormatLines  = 30
	maxItemsPerList = 12

	truncatedMarker = "(Truncated)"
	packHeader      = "GLOBAL_CONTEXT (extracted from TO-BE; use only if applicable):"
)

// patterns holds the compiled matchers for one builder; the table is built
// once and never mutated afterwards.
type patterns struct {
	system      *regexp.Regexp
	input       *regexp.Regexp
	output      *regexp.Regexp
	note        *regexp.Regexp
	activityRef *regexp.Regexp
	quotedName  *regexp.Regexp
	formatHint  *regexp.Regexp
	sentenceEnd *regexp.Regexp
}

// Builder extracts the global context pack. Stateless after construction.
type Builder struct {
	p patterns
}

// NewBuilder compiles the extraction patterns.
func NewBuilder() *Builder {
	return &Builder{p: patterns{
		system: regexp.MustCompile(`(?i)\bSistema\s*:\s*([^\n]+)`),
		input:  regexp.MustCompile(`(?i)\bInput\s*:\s*([^\n]+)`),
		output: regexp.MustCompile(`(?i)\bOutput\s*:\s*([^\n]+)`),
		note:   regexp.MustCompile(`(?i)^\s*Nota(?:\s*\d+)?\s*:\s*(.+)$`),
		activityRef: regexp.MustCompile(
			`(?i)\b(?:obtenid[ao]s?\s+en\s+la\s+actividad|actividad)\s+\d+\b`),
		// Straight or typographic quotes around a named artifact.
		quotedName: regexp.MustCompile(`["“”']([^"“”'\n]{3,90})["“”']`),
		formatHint: regexp.MustCompile(
			`(?i)\b(DD/MM/YYYY|DD/MM/AAAA|HH:MI|YYYYMMDDhhmmss|ANSI|\.csv|SharePoint|Outlook|GeoVictoria|Turnex)\b`),
		sentenceEnd: regexp.MustCompile(`\.\s+`),
	}}
}

// Build extracts the shared context from the TO-BE text. The result always
// begins with the fixed header line; categories with no matches are omitted.
func (b *Builder) Build(toBeText string) string {
	normalized := normalize(toBeText)

	systems := sortedUnique(collectGroup(b.p.system, normalized))
	inputs := sortedUnique(collectGroup(b.p.input, normalized))
	outputs := sortedUnique(collectGroup(b.p.output, normalized))
	quoted := sortedUnique(collectGroup(b.p.quotedName, normalized))

	var lines []string
	for _, raw := range strings.Split(normalized, "\n") {
		lines = append(lines, b.splitLongLine(strings.TrimSpace(raw))...)
	}

	// Notes that recur verbatim (case-insensitive) across the document are
	// global facts worth repeating in every prompt; one-off notes stay with
	// their own block.
	var noteTexts []string
	for _, ln := range lines {
		if m := b.p.note.FindStringSubmatch(ln); m != nil {
			noteTexts = append(noteTexts, strings.TrimSpace(m[1]))
		}
	}
	noteCounts := make(map[string]int)
	for _, n := range noteTexts {
		noteCounts[strings.ToLower(n)]++
	}
	var repeatedNotes []string
	for _, n := range noteTexts {
		if noteCounts[strings.ToLower(n)] >= 2 {
			repeatedNotes = append(repeatedNotes, n)
		}
	}
	repeatedNotes = stableUnique(repeatedNotes)

	var activityRefs []string
	for _, ln := range lines {
		if b.p.activityRef.MatchString(ln) {
			activityRefs = append(activityRefs, ln)
		}
	}
	activityRefs = stableUnique(activityRefs)

	var formatHints []string
	for _, ln := range lines {
		if b.p.formatHint.MatchString(ln) {
			formatHints = append(formatHints, ln)
		}
	}
	formatHints = stableUnique(formatHints)
	if len(formatHints) > maxFormatLines {
		formatHints = formatHints[:maxFormatLines]
	}

	out := []string{packHeader}

	if len(systems) > 0 {
		out = append(out, "- Systems: "+strings.Join(systems, ", "))
	}
	out = appendCappedInline(out, "- Inputs mentioned: ", inputs)
	out = appendCappedInline(out, "- Outputs mentioned: ", outputs)
	out = appendCappedInline(out, "- Named folders/files (quoted): ", quoted)
	out = appendBulletList(out, "- Repeated notes (appear multiple times):", repeatedNotes)
	out = appendBulletList(out, "- Cross-activity references (dependencies):", activityRefs)
	out = appendBulletList(out, "- Format/tooling hints (verbatim lines containing formats/tools):", formatHints)

	if len(out) > maxLines {
		out = out[:maxLines]
	}
	pack := strings.TrimSpace(strings.Join(out, "\n"))
	if len(pack) > maxChars {
		pack = strings.TrimRight(pack[:maxChars], " \t\n") + "\n" + truncatedMarker
	}

	logging.ContextPack("context pack: %d byte(s)", len(pack))
	return pack
}

// appendCappedInline emits one "label: a, b, c ..." line, capped at
// maxItemsPerList with a trailing ellipsis when items were dropped.
func appendCappedInline(out []string, label string, items []string) []string {
	if len(items) == 0 {
		return out
	}
	shown := items
	suffix := ""
	if len(shown) > maxItemsPerList {
		shown = shown[:maxItemsPerList]
		suffix = " ..."
	}
	return append(out, label+strings.Join(shown, ", ")+suffix)
}

// appendBulletList emits a label line followed by indented bullet items.
func appendBulletList(out []string, label string, items []string) []string {
	if len(items) == 0 {
		return out
	}
	out = append(out, label)
	shown := items
	if len(shown) > maxItemsPerList {
		shown = shown[:maxItemsPerList]
	}
	for _, it := range shown {
		out = append(out, "  • "+it)
	}
	return out
}

// splitLongLine breaks a long line at sentence boundaries, falling back to
// hard cuts, so one pasted table row cannot dominate a category.
func (b *Builder) splitLongLine(line string) []string {
	cleaned := strings.TrimSpace(line)
	if cleaned == "" {
		return nil
	}
	if len(cleaned) <= longLineSplit {
		return []string{cleaned}
	}

	var parts []string
	var buf strings.Builder
	for _, chunk := range splitKeepSeparators(b.p.sentenceEnd, cleaned) {
		if chunk == "" {
			continue
		}
		if buf.Len()+len(chunk) <= longLineSplit {
			buf.WriteString(chunk)
			continue
		}
		if s := strings.TrimSpace(buf.String()); s != "" {
			parts = append(parts, s)
		}
		buf.Reset()
		buf.WriteString(chunk)
	}
	if s := strings.TrimSpace(buf.String()); s != "" {
		parts = append(parts, s)
	}

	var out []string
	for _, part := range parts {
		for len(part) > longLineSplit {
			out = append(out, strings.TrimSpace(part[:longLineSplit]))
			part = part[longLineSplit:]
		}
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// splitKeepSeparators splits s around matches of re, keeping the separators
// as their own elements so sentence-final punctuation is not lost.
func splitKeepSeparators(re *regexp.Regexp, s string) []string {
	locs := re.FindAllStringIndex(s, -1)
	if locs == nil {
		return []string{s}
	}
	var out []string
	prev := 0
	for _, loc := range locs {
		if loc[0] > prev {
			out = append(out, s[prev:loc[0]])
		}
		out = append(out, s[loc[0]:loc[1]])
		prev = loc[1]
	}
	if prev < len(s) {
		out = append(out, s[prev:])
	}
	return out
}

func normalize(text string) string {
	out := strings.ReplaceAll(text, "\r\n", "\n")
	out = strings.ReplaceAll(out, "\r", "\n")
	return strings.ReplaceAll(out, "​", "")
}

func collectGroup(re *regexp.Regexp, text string) []string {
	var items []string
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		if v := strings.TrimSpace(m[1]); v != "" {
			items = append(items, v)
		}
	}
	return items
}

func sortedUnique(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	var out []string
	for _, it := range items {
		if _, dup := seen[it]; dup {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	sort.Strings(out)
	return out
}

func stableUnique(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	var out []string
	for _, it := range items {
		if _, dup := seen[it]; dup {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}
