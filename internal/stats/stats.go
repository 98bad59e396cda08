// Package stats computes summary metrics over a finished ADO test-case
// CSV: requirement and test-case counts, not-testable requirements, and
// limit-reached requirements with per-requirement detail. It only reads
// the CSV; it never rewrites it.
package stats

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"tcgen/internal/ado"
	"tcgen/internal/logging"
)

const maxOmittedObjectives = 50

// LimitDetail describes one requirement that hit the test-case budget.
// Generated/Identified are only known for legacy-format limit rows; -1
// means unknown.
type LimitDetail struct {
	Requirement string   `json:"requirement"`
	Generated   int      `json:"generated_tcs"`
	Identified  int      `json:"identified_tcs"`
	Omitted     int      `json:"omitted_tcs"`
	Objectives  []string `json:"omitted_objectives,omitempty"`
}

// Summary is the full metrics result for one document.
type Summary struct {
	RequirementsTotal  int           `json:"requirements_total"`
	TestCasesTotal     int           `json:"test_cases_total"`
	NotTestableTotal   int           `json:"requirements_not_testable"`
	NotTestableList    []string      `json:"requirements_not_testable_list"`
	LimitReachedTotal  int           `json:"requirements_limit_reached_total"`
	LimitReachedList   []string      `json:"requirements_limit_reached_list"`
	LimitReachedDetail []LimitDetail `json:"requirements_limit_reached_detail"`
}

// Analyzer computes CSV metrics. The pattern table is compiled once.
type Analyzer struct {
	reqTC       *regexp.Regexp
	legacyLimit *regexp.Regexp
	bulletSplit *regexp.Regexp
}

// NewAnalyzer compiles the analyzer patterns.
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		reqTC: regexp.MustCompile(`^\d{3}$`),
		legacyLimit: regexp.MustCompile(
			`(?i)\(Limit reached\):\s*Generated\s+(\d+)\s+of\s+(\d+)\s+identified`),
		bulletSplit: regexp.MustCompile(`\s*•\s*`),
	}
}

// Analyze runs a single pass over the CSV text. Rows are attributed to the
// requirement parsed from the most recent titled row, so step rows with a
// blank Title inherit their test case's requirement.
func (a *Analyzer) Analyze(csvText string) Summary {
	summary := Summary{
		NotTestableList:    []string{},
		LimitReachedList:   []string{},
		LimitReachedDetail: []LimitDetail{},
	}

	rows, err := ado.ParseRows(csvText)
	if err != nil {
		// Metrics are best-effort over whatever parses; a structurally
		// broken export yields empty stats rather than a failure.
		logging.Stats("stats parse failed: %v", err)
		return summary
	}

	requirements := make(map[string]struct{})
	notTestable := make(map[string]struct{})
	limitReached := make(map[string]struct{})
	detailByReq := make(map[string]LimitDetail)

	currentReq := ""

	for _, row := range rows {
		workItem := strings.TrimSpace(row[ado.ColWorkItemType])
		title := strings.TrimSpace(row[ado.ColTitle])
		expectedResult := strings.TrimSpace(row[ado.ColExpectedResult])

		if req, ok := a.requirementFromTitle(title); ok {
			currentReq = req
		}
		if currentReq != "" {
			requirements[currentReq] = struct{}{}
		}

		isLimit, detail := a.classifyLimitRow(row)
		if isLimit && currentReq != "" {
			limitReached[currentReq] = struct{}{}
			detail.Requirement = currentReq
			detailByReq[currentReq] = detail
		}

		if strings.EqualFold(workItem, "test case") {
			if !isLimit {
				summary.TestCasesTotal++
			}
			if currentReq != "" && strings.HasPrefix(expectedResult, ado.NotTestablePrefix) {
				notTestable[currentReq] = struct{}{}
			}
		}
	}

	summary.RequirementsTotal = len(requirements)
	summary.NotTestableList = sortedNumeric(notTestable)
	summary.NotTestableTotal = len(summary.NotTestableList)
	summary.LimitReachedList = sortedNumeric(limitReached)
	summary.LimitReachedTotal = len(summary.LimitReachedList)
	for _, req := range summary.LimitReachedList {
		if d, ok := detailByReq[req]; ok {
			summary.LimitReachedDetail = append(summary.LimitReachedDetail, d)
		}
	}

	logging.Stats("stats: %d requirement(s), %d tc(s), %d limit, %d not testable",
		summary.RequirementsTotal, summary.TestCasesTotal,
		summary.LimitReachedTotal, summary.NotTestableTotal)
	return summary
}

// classifyLimitRow decides whether row is a limit row. Current-format
// classification must match the normalizer's emission exactly: metadata
// row (empty Test Step) with Expected result equal to the marker. The
// legacy "Generated X of Y identified" form and a fallback heuristic for
// rows where the model forgot the marker are also recognized.
func (a *Analyzer) classifyLimitRow(row ado.Row) (bool, LimitDetail) {
	stepAction := strings.TrimSpace(row[ado.ColStepAction])
	expectedResult := strings.TrimSpace(row[ado.ColExpectedResult])
	objective := strings.TrimSpace(row[ado.ColObjective])
	testStep := strings.TrimSpace(row[ado.ColTestStep])
	title := strings.TrimSpace(row[ado.ColTitle])

	if testStep == "" && expectedResult == ado.LimitReachedMark {
		bullets := a.sentinelBullets(objective)
		return true, LimitDetail{
			Generated:  -1,
			Identified: -1,
			Omitted:    len(bullets),
			Objectives: capObjectives(bullets),
		}
	}

	if strings.HasPrefix(stepAction, ado.LegacyLimitPrefix) {
		detail := LimitDetail{Generated: -1, Identified: -1, Omitted: -1}
		if m := a.legacyLimit.FindStringSubmatch(stepAction); m != nil {
			generated, _ := strconv.Atoi(m[1])
			identified, _ := strconv.Atoi(m[2])
			omitted := identified - generated
			if omitted < 0 {
				omitted = 0
			}
			detail.Generated = generated
			detail.Identified = identified
			detail.Omitted = omitted
		}
		return true, detail
	}

	// Fallback: metadata row, tc index past the budget, and at least two
	// sentinel-prefixed objective bullets.
	if testStep == "" {
		if tcNum, ok := a.tcNumberFromTitle(title); ok && tcNum >= 11 {
			bullets := a.sentinelBullets(objective)
			if len(bullets) >= 2 {
				return true, LimitDetail{
					Generated:  -1,
					Identified: -1,
					Omitted:    len(bullets),
					Objectives: capObjectives(bullets),
				}
			}
		}
	}

	return false, LimitDetail{}
}

// requirementFromTitle extracts the requirement segment from a canonical
// "<project>.<req:03d>.<tc:03d>" title; both trailing segments must be
// three digits for the title to count.
func (a *Analyzer) requirementFromTitle(title string) (string, bool) {
	parts := splitNonEmpty(title, ".")
	if len(parts) < 2 {
		return "", false
	}
	req, tc := parts[len(parts)-2], parts[len(parts)-1]
	if !a.reqTC.MatchString(req) || !a.reqTC.MatchString(tc) {
		return "", false
	}
	return req, true
}

// tcNumberFromTitle extracts the trailing test-case number from a title.
func (a *Analyzer) tcNumberFromTitle(title string) (int, bool) {
	parts := splitNonEmpty(title, ".")
	if len(parts) == 0 {
		return 0, false
	}
	last := parts[len(parts)-1]
	if !a.reqTC.MatchString(last) {
		return 0, false
	}
	n, err := strconv.Atoi(last)
	if err != nil {
		return 0, false
	}
	return n, true
}

// sentinelBullets returns the bullet items in cell that open with the
// omitted-objective sentinel phrase.
func (a *Analyzer) sentinelBullets(cell string) []string {
	s := strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ").Replace(cell)
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range a.bulletSplit.Split(s, -1) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.HasPrefix(strings.ToLower(part), "que el bot") {
			out = append(out, part)
		}
	}
	return out
}

func capObjectives(items []string) []string {
	if len(items) > maxOmittedObjectives {
		return items[:maxOmittedObjectives]
	}
	return items
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func sortedNumeric(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := strconv.Atoi(out[i])
		b, _ := strconv.Atoi(out[j])
		return a < b
	})
	return out
}
