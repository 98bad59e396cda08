package ado

import (
	"fmt"
	"regexp"
	"strings"

	"tcgen/internal/logging"
)

// blockState drives the per-block row state machine. Once the limit row is
// emitted nothing else may follow for that block.
type blockState int

const (
	stateNoOpenCase blockState = iota
	stateOpenCase
	stateLimitEmitted
)

// NormalizeParams carries the per-block identity and the metadata values
// forced onto every test-case row regardless of what the LLM produced.
type NormalizeParams struct {
	ProjectID         string
	RequirementNumber int
	TCStart           int
	State             string
	AreaPath          string
	AssignedTo        string
}

// Normalizer enforces the ADO row structure on parsed LLM output. The
// pattern table is compiled once; a Normalizer is safe for reuse.
type Normalizer struct {
	newlineRun  *regexp.Regexp
	spaceRun    *regexp.Regexp
	bulletSplit *regexp.Regexp
}

// NewNormalizer compiles the normalizer's pattern table.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		newlineRun:  regexp.MustCompile(`\n+`),
		spaceRun:    regexp.MustCompile(`\s{2,}`),
		bulletSplit: regexp.MustCompile(`\s*•\s*`),
	}
}

// IsTCStart reports whether row opens a new test case: Work Item Type says
// so explicitly, or a non-empty Title with an empty Test Step does. The
// Test Step guard keeps malformed step rows from opening phantom cases.
func IsTCStart(row Row) bool {
	workItem := strings.ToLower(strings.TrimSpace(row[ColWorkItemType]))
	title := strings.TrimSpace(row[ColTitle])
	testStep := strings.TrimSpace(row[ColTestStep])
	return workItem == "test case" || (title != "" && testStep == "")
}

// Normalize rewrites rows into the canonical metadata/step structure for
// one requirement block and returns the normalized rows plus the number of
// test cases opened. Output titles are "<project>.<req:03d>.<tc:03d>" with
// the test-case index starting at params.TCStart.
//
// Normalization is idempotent: feeding its own output back (same params)
// yields an identical sequence.
func (n *Normalizer) Normalize(rows []Row, params NormalizeParams) ([]Row, int, error) {
	forcedState := strings.TrimSpace(params.State)
	if forcedState == "" {
		forcedState = DefaultState
	}
	forcedArea := strings.TrimSpace(params.AreaPath)
	if forcedArea == "" {
		forcedArea = strings.TrimSpace(params.ProjectID)
	}
	forcedAssigned := strings.TrimSpace(params.AssignedTo)

	var out []Row
	tcIdx := params.TCStart - 1
	stepIdx := 0
	tcCount := 0
	state := stateNoOpenCase

	for _, raw := range rows {
		if state == stateLimitEmitted {
			// The limit row is final for this block.
			continue
		}

		row, err := EnsureColumnCount(raw)
		if err != nil {
			return nil, 0, fmt.Errorf("normalize: %w", err)
		}

		if !IsTCStart(row) {
			if state != stateOpenCase {
				continue
			}
			stepAction := strings.TrimSpace(row[ColStepAction])
			if stepAction == "" {
				continue
			}
			stepIdx++
			out = append(out, n.stepRow(stepIdx, stepAction, row[ColStepExpected]))
			continue
		}

		tcIdx++
		tcCount++
		stepIdx = 0
		state = stateOpenCase

		firstStepAction := strings.TrimSpace(row[ColStepAction])
		firstStepExpected := strings.TrimSpace(row[ColStepExpected])

		// Limit detection reads the row as received, before any repair,
		// so an already-shifted row cannot hide or fake the marker.
		isLimitRow := n.isLimitMarker(row) ||
			(tcIdx >= 11 && n.sentinelObjectiveCount(row[ColObjective]) >= 1)

		row[ColID] = ""
		row[ColWorkItemType] = "Test Case"
		row[ColTitle] = fmt.Sprintf("%s.%03d.%03d", params.ProjectID, params.RequirementNumber, tcIdx)
		row[ColTestStep] = ""
		row[ColPreconditions] = n.oneLineWithBullets(row[ColPreconditions])

		n.repairColumnShift(row)

		if strings.TrimSpace(row[ColTypeOfTest]) == "" {
			row[ColTypeOfTest] = "Functional"
		}
		if p := strings.TrimSpace(row[ColPriority]); p != "" {
			if _, ok := priorityAllowed[p]; !ok {
				row[ColPriority] = "1"
			}
		}

		row[ColState] = forcedState
		row[ColAreaPath] = forcedArea
		row[ColAssignedTo] = forcedAssigned

		if isLimitRow {
			row[ColStepAction] = ""
			row[ColStepExpected] = ""
			row[ColExpectedResult] = LimitReachedMark
			row[ColObjective] = n.sanitizeOmittedObjectives(row[ColObjective])

			out = append(out, row)
			state = stateLimitEmitted
			stepIdx = 0
			logging.ADO("limit row emitted for requirement %d at tc %d",
				params.RequirementNumber, tcIdx)
			continue
		}

		row[ColStepAction] = ""
		row[ColStepExpected] = ""
		out = append(out, row)
		logging.ADODebug("opened tc %s", row[ColTitle])

		// The model sometimes embeds the first step in the metadata row;
		// move it out as step 1.
		if firstStepAction != "" {
			stepIdx = 1
			out = append(out, n.stepRow(1, firstStepAction, firstStepExpected))
		}
	}

	return out, tcCount, nil
}

// repairColumnShift corrects one observed LLM drift: a test-type string
// lands in Priority and every value from Priority through Operating
// Scenario sits one column to the right. The match is deliberately narrow;
// it never fires on a correctly shaped or already-repaired row.
func (n *Normalizer) repairColumnShift(row Row) {
	prio := strings.ToLower(strings.TrimSpace(row[ColPriority]))
	expected := strings.TrimSpace(row[ColExpectedResult])
	objective := strings.TrimSpace(row[ColObjective])
	scenario := strings.TrimSpace(row[ColOperatingScenario])
	precond := strings.TrimSpace(row[ColPreconditions])

	if _, isType := typeTestAliases[prio]; !isType {
		return
	}
	if _, isPrio := priorityAllowed[expected]; !isPrio {
		return
	}
	if objective == "" || !strings.HasPrefix(strings.ToLower(scenario), objectiveSentinel) {
		return
	}

	row[ColPriority] = expected
	row[ColExpectedResult] = objective
	row[ColObjective] = scenario
	row[ColOperatingScenario] = precond
	row[ColPreconditions] = ""
	logging.ADOWarn("column shift repaired on metadata row %q", row[ColTitle])
}

// isLimitMarker reports an explicit limit marker in Step action or
// Expected result.
func (n *Normalizer) isLimitMarker(row Row) bool {
	stepAction := strings.TrimSpace(row[ColStepAction])
	expected := strings.TrimSpace(row[ColExpectedResult])
	for _, m := range limitReachedMarkers {
		if strings.HasPrefix(stepAction, m) || strings.HasPrefix(expected, m) {
			return true
		}
	}
	return false
}

// sentinelObjectiveCount counts bullet items in an Objective cell that open
// with the omitted-objective sentinel phrase.
func (n *Normalizer) sentinelObjectiveCount(objective string) int {
	count := 0
	for _, item := range n.splitBullets(objective) {
		if strings.HasPrefix(strings.ToLower(item), objectiveSentinel) {
			count++
		}
	}
	return count
}

// sanitizeOmittedObjectives rewrites the limit row's Objective as a single
// line: the bullet separator followed by every sentinel-prefixed item.
func (n *Normalizer) sanitizeOmittedObjectives(objective string) string {
	var kept []string
	for _, item := range n.splitBullets(objective) {
		if strings.HasPrefix(strings.ToLower(item), objectiveSentinel) {
			kept = append(kept, item)
		}
	}
	if len(kept) == 0 {
		return ""
	}
	return BulletSep + strings.Join(kept, BulletSep)
}

// splitBullets collapses the cell to one line, unifies bullet glyph
// variants, and returns the trimmed non-empty items.
func (n *Normalizer) splitBullets(cell string) []string {
	s := n.oneLineWithBullets(cell)
	if s == "" {
		return nil
	}
	s = strings.NewReplacer("·", "•", "◦", "•").Replace(s)

	var items []string
	for _, part := range n.bulletSplit.Split(s, -1) {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}

// oneLineWithBullets collapses newline runs into the bullet separator and
// squeezes repeated whitespace, keeping multi-line cells CSV-safe.
func (n *Normalizer) oneLineWithBullets(text string) string {
	s := strings.ReplaceAll(text, "\r\n", "\n")
	s = strings.TrimSpace(strings.ReplaceAll(s, "\r", "\n"))
	if s == "" {
		return ""
	}
	s = n.newlineRun.ReplaceAllString(s, BulletSep)
	return strings.TrimSpace(n.spaceRun.ReplaceAllString(s, " "))
}

// stepRow builds a numbered step row with only Test Step, Step action and
// Step Expected populated.
func (n *Normalizer) stepRow(num int, action, expected string) Row {
	row := NewRow()
	row[ColTestStep] = fmt.Sprintf("%d", num)
	row[ColStepAction] = n.oneLineWithBullets(action)
	if e := strings.TrimSpace(expected); e != "" {
		row[ColStepExpected] = n.oneLineWithBullets(e)
	}
	return row
}
