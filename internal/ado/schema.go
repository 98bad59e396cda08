// Package ado models the Azure DevOps test-case import format: the fixed
// 15-column row schema, its CSV dialect, isolation of CSV from raw LLM
// output, and the normalizer that enforces the metadata/step row structure.
package ado

import "strings"

// Columns is the ordered ADO test-case import schema. "Objetive" is the
// spelling ADO ships with; do not correct it.
var Columns = [...]string{
	"ID",
	"Work Item Type",
	"Title",
	"Test Step",
	"Step action",
	"Step Expected",
	"Type of test",
	"Priority",
	"Expected result",
	"Objetive",
	"Operating Scenario",
	"Preconditions",
	"State",
	"Area Path",
	"Assigned To",
}

// NCols is the exact field count every row must have.
const NCols = len(Columns)

// Column indices into a Row.
const (
	ColID = iota
	ColWorkItemType
	ColTitle
	ColTestStep
	ColStepAction
	ColStepExpected
	ColTypeOfTest
	ColPriority
	ColExpectedResult
	ColObjective
	ColOperatingScenario
	ColPreconditions
	ColState
	ColAreaPath
	ColAssignedTo
)

// Row is one schema-exact CSV record.
type Row []string

// NewRow returns an all-empty 15-field row.
func NewRow() Row {
	return make(Row, NCols)
}

// Clone returns an independent copy of r.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// Marker literals shared by the normalizer and the stats analyzer.
const (
	// LimitReachedMark is the current-format limit marker written into
	// Expected result when a block's test-case budget is exhausted.
	LimitReachedMark = "(Limit reached)"

	// LegacyLimitPrefix opens the legacy limit marker, followed by
	// "Generated <N> of <M> identified" in Step action.
	LegacyLimitPrefix = "(Limit reached):"

	// NotTestablePrefix opens an Expected result declaring the whole
	// requirement untestable.
	NotTestablePrefix = "(No testeable):"

	// BulletSep separates list items collapsed into a single CSV cell.
	BulletSep = " • "

	// objectiveSentinel opens every well-formed omitted-objective bullet.
	objectiveSentinel = "que el bot"
)

// DefaultState is the work-item state stamped on metadata rows when the
// caller supplies none.
const DefaultState = "Design"

const (
	csvDelimiter = ","
	bom          = "\uFEFF"
)

// Header is the comma-joined column list used as the output header line.
var Header = strings.Join(Columns[:], csvDelimiter)

// limitReachedMarkers are the explicit markers accepted on input, in
// either Step action or Expected result.
var limitReachedMarkers = [...]string{LimitReachedMark, LegacyLimitPrefix}

// typeTestAliases are test-type strings observed where Priority should be,
// the signature of the known column-drift failure.
var typeTestAliases = map[string]struct{}{
	"functional":    {},
	"no functional": {},
}

// priorityAllowed are the only values Priority may carry on metadata rows.
var priorityAllowed = map[string]struct{}{
	"1": {},
	"2": {},
	"3": {},
}
