package ado

import (
	"encoding/csv"
	"fmt"
	"strings"
)

// StructureError reports a row carrying more than NCols fields where the
// extras are non-empty. It signals non-conforming LLM output; the caller's
// retry policy decides what happens next.
type StructureError struct {
	Got    int
	Extras []string
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("invalid CSV row: expected %d columns, got %d with non-empty extras %q",
		NCols, e.Got, e.Extras)
}

// EnsureColumnCount pads a short row with empty fields and trims purely
// empty trailing extras. A row whose extra fields carry content is a
// structural failure.
func EnsureColumnCount(row []string) (Row, error) {
	cleaned := make(Row, len(row))
	for i, cell := range row {
		cleaned[i] = strings.TrimSpace(cell)
	}

	if len(cleaned) > NCols {
		extras := cleaned[NCols:]
		for _, x := range extras {
			if x != "" {
				return nil, &StructureError{Got: len(cleaned), Extras: extras}
			}
		}
		cleaned = cleaned[:NCols]
	}
	for len(cleaned) < NCols {
		cleaned = append(cleaned, "")
	}
	return cleaned, nil
}

// IsHeaderRow reports whether row is the ADO header, tolerating stray
// spaces inside the names.
func IsHeaderRow(row []string) bool {
	if len(row) < 2 {
		return false
	}
	c0 := strings.ReplaceAll(strings.TrimSpace(row[0]), " ", "")
	c1 := strings.ReplaceAll(strings.TrimSpace(row[1]), " ", "")
	return c0 == "ID" && c1 == "WorkItemType"
}

// ParseRows parses CSV text into schema-exact rows, skipping blank lines
// and any re-embedded header row. A leading byte-order mark is tolerated.
func ParseRows(csvText string) ([]Row, error) {
	txt := strings.TrimSpace(strings.TrimPrefix(csvText, bom))
	if txt == "" {
		return nil, nil
	}

	reader := csv.NewReader(strings.NewReader(txt))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse CSV: %w", err)
	}

	var rows []Row
	for _, rec := range records {
		if len(rec) == 0 {
			continue
		}
		if IsHeaderRow(rec) {
			continue
		}
		row, err := EnsureColumnCount(rec)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// DumpRows serializes rows without a header line and without a trailing
// newline. Quoting is applied only where a field would break the record.
func DumpRows(rows []Row) (string, error) {
	var buf strings.Builder
	w := csv.NewWriter(&buf)

	for _, row := range rows {
		if len(row) != NCols {
			return "", fmt.Errorf("internal row has %d columns, want %d", len(row), NCols)
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("write CSV row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush CSV: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// EnsureHeader guarantees the header line opens the CSV body. An already
// present header (modulo stray spaces) is left untouched.
func EnsureHeader(csvBody string) string {
	body := strings.TrimSpace(strings.TrimPrefix(csvBody, bom))
	if body == "" {
		return Header
	}

	firstLine := strings.TrimSpace(strings.SplitN(body, "\n", 2)[0])
	if stripSpaces(firstLine) == stripSpaces(Header) {
		return body
	}
	return Header + "\n" + body
}

// ExtractCSVOnly isolates the CSV portion of raw model output: strips
// markdown code fences, cuts from the header line when present, otherwise
// from the first line that parses as a plausible 15-field row. When no CSV
// shape is recognized the cleaned text is returned for the parser to judge.
func ExtractCSVOnly(text string) string {
	cleaned := stripCodeFences(text)
	cleaned = strings.TrimSpace(strings.TrimPrefix(cleaned, bom))
	if cleaned == "" {
		return ""
	}

	lines := strings.Split(cleaned, "\n")

	headerNorm := stripSpaces(Header)
	for i, line := range lines {
		if stripSpaces(strings.TrimSpace(line)) == headerNorm {
			return strings.TrimSpace(strings.Join(lines[i:], "\n"))
		}
	}

	for i := range lines {
		chunk := strings.TrimSpace(strings.Join(lines[i:], "\n"))
		if chunk == "" {
			continue
		}
		r := csv.NewReader(strings.NewReader(chunk))
		r.FieldsPerRecord = -1
		r.LazyQuotes = true
		first, err := r.Read()
		if err == nil && looksLikeRow(first) {
			return chunk
		}
	}

	return cleaned
}

// looksLikeRow is a conservative shape check: exactly 15 fields, first
// field blank or the header's "ID".
func looksLikeRow(row []string) bool {
	if len(row) != NCols {
		return false
	}
	first := strings.TrimSpace(row[0])
	return first == "" || strings.EqualFold(first, "ID")
}

// stripCodeFences drops a surrounding ``` / ```csv fence, if any.
func stripCodeFences(text string) string {
	cleaned := strings.TrimSpace(text)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}

	lines := strings.Split(cleaned, "\n")
	if len(lines) > 0 {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func stripSpaces(s string) string {
	return strings.ReplaceAll(s, " ", "")
}
