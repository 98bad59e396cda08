// Package engine orchestrates the full generation pipeline: decode the
// document, locate the TO-BE section, split it into requirement blocks,
// call the LLM once per block, normalize the returned rows into the ADO
// structure, and stream progress events to the caller.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"tcgen/internal/ado"
	"tcgen/internal/config"
	"tcgen/internal/contextpack"
	"tcgen/internal/document"
	"tcgen/internal/llm"
	"tcgen/internal/logging"
	"tcgen/internal/splitter"
	"tcgen/internal/stats"
	"tcgen/internal/usage"
)

// repairInstructions is appended to the user text when the first model
// output fails structural parsing; one retry only.
const repairInstructions = "\n\nREPAIR: Your previous output did not comply with ADO CSV formatting. " +
	"Return ONLY CSV rows with EXACTLY 15 columns (14 commas). " +
	"Do NOT include headers. Keep EXACTLY 15 columns (14 commas). " +
	"If you don't know State/Area Path/Assigned To, leave them empty; " +
	"the backend will populate them."

const tcStartDefault = 1

// Request is one generation job.
type Request struct {
	Filename   string
	FileBytes  []byte
	AssignedTo string
}

// Engine wires the pipeline components. Construct once via New; the engine
// is stateless between runs.
type Engine struct {
	cfg       *config.Config
	client    llm.Client
	extractor document.Extractor
	tracker   *usage.Tracker

	locator     *document.Locator
	idExtractor *document.IDExtractor
	splitter    *splitter.Splitter
	contextPack *contextpack.Builder
	normalizer  *ado.Normalizer
	analyzer    *stats.Analyzer
}

// New builds an engine from its collaborators. tracker may be nil when
// usage accounting is not wanted.
func New(cfg *config.Config, client llm.Client, extractor document.Extractor, tracker *usage.Tracker) *Engine {
	return &Engine{
		cfg:         cfg,
		client:      client,
		extractor:   extractor,
		tracker:     tracker,
		locator:     document.NewLocator(),
		idExtractor: document.NewIDExtractor(),
		splitter:    splitter.New(),
		contextPack: contextpack.NewBuilder(),
		normalizer:  ado.NewNormalizer(),
		analyzer:    stats.NewAnalyzer(),
	}
}

// Run executes the pipeline and streams events on the returned channel.
// The channel is closed after the terminal event (done or error). Rows per
// block are processed strictly in splitter emission order.
func (e *Engine) Run(ctx context.Context, req Request) <-chan Event {
	events := make(chan Event)
	go func() {
		defer close(events)
		e.run(ctx, req, events)
	}()
	return events
}

func (e *Engine) run(ctx context.Context, req Request, events chan<- Event) {
	startAll := time.Now()
	runID := uuid.NewString()
	logging.Engine("run %s: start file=%q", runID, req.Filename)

	if err := ValidateAssignedTo(req.AssignedTo); err != nil {
		events <- errorEvent(runID, ErrAssignedTo, msgAssignedToRequired)
		return
	}
	assignedTo := strings.TrimSpace(req.AssignedTo)

	promptText, err := e.loadPromptText()
	if err != nil {
		logging.EngineError("run %s: prompt: %v", runID, err)
		events <- errorEvent(runID, ErrEngine, msgEngineError)
		return
	}

	docText, err := e.extractor.ExtractText(req.Filename, req.FileBytes)
	if err != nil {
		logging.EngineError("run %s: extract: %v", runID, err)
		events <- errorEvent(runID, ErrEngine, msgEngineError)
		return
	}
	if err := ValidateExtractedText(docText); err != nil {
		events <- errorEvent(runID, ErrEngine, msgEngineError)
		return
	}

	projectID, ok := e.idExtractor.Extract(docText)
	if !ok {
		events <- errorEvent(runID, ErrNoProjectID, msgNoProjectID)
		return
	}

	toBeText := e.locator.Slice(docText)
	if strings.TrimSpace(toBeText) == "" {
		events <- errorEvent(runID, ErrNoToBe, msgNoToBe)
		return
	}

	globalContext := e.contextPack.Build(toBeText)

	blocks := e.splitter.Split(toBeText)
	if len(blocks) == 0 {
		events <- errorEvent(runID, ErrNoReqs, msgNoReqs)
		return
	}

	total := len(blocks)
	events <- Event{Type: EventMeta, RunID: runID, TotalBlocks: total}

	areaPath := strings.TrimSpace(e.cfg.Generation.AreaPath)
	if areaPath == "" {
		areaPath = projectID
	}
	state := e.cfg.Generation.State
	tcStart := e.cfg.Generation.TCStart
	if tcStart <= 0 {
		tcStart = tcStartDefault
	}

	var usageTotal llm.Usage
	var blockCSVs []string

	for i, block := range blocks {
		if ctx.Err() != nil {
			logging.Engine("run %s: cancelled at block %d", runID, i+1)
			events <- errorEvent(runID, ErrEngine, msgEngineError)
			return
		}

		t0 := time.Now()
		logging.EngineDebug("run %s: block %d/%d req %d scenario %q",
			runID, i+1, total, block.RequirementNumber, block.ScenarioName)
		userText := buildUserText(projectID, block.RequirementNumber,
			block.ScenarioName, tcStart, globalContext, block.InputText)

		rows, callUsage, err := e.llmToRows(ctx, promptText, userText)
		if err != nil {
			logging.EngineError("run %s: block %d (req %d): %v",
				runID, i+1, block.RequirementNumber, err)
			events <- errorEvent(runID, ErrEngine, msgEngineError)
			return
		}
		usageTotal = usageTotal.Add(callUsage)
		if e.tracker != nil {
			e.tracker.Track(runID, e.client.Model(), block.RequirementNumber,
				callUsage.InputTokens, callUsage.OutputTokens)
		}

		normalized, _, err := e.normalizer.Normalize(rows, ado.NormalizeParams{
			ProjectID:         projectID,
			RequirementNumber: block.RequirementNumber,
			TCStart:           tcStart,
			State:             state,
			AreaPath:          areaPath,
			AssignedTo:        assignedTo,
		})
		if err != nil {
			logging.EngineError("run %s: normalize block %d: %v", runID, i+1, err)
			events <- errorEvent(runID, ErrEngine, msgEngineError)
			return
		}

		blockCSV, err := ado.DumpRows(normalized)
		if err != nil {
			logging.EngineError("run %s: dump block %d: %v", runID, i+1, err)
			events <- errorEvent(runID, ErrEngine, msgEngineError)
			return
		}
		if blockCSV != "" {
			blockCSVs = append(blockCSVs, blockCSV)
		}

		events <- Event{
			Type:        EventProgress,
			RunID:       runID,
			Done:        i + 1,
			Total:       total,
			Requirement: block.RequirementNumber,
			Scenario:    block.ScenarioName,
			Secs:        roundSecs(time.Since(t0)),
		}
	}

	csvBody := strings.TrimSpace(strings.Join(blockCSVs, "\n"))
	summary := e.analyzer.Analyze(csvBody)

	if e.tracker != nil {
		if err := e.tracker.Save(); err != nil {
			logging.EngineError("run %s: save usage: %v", runID, err)
		}
	}

	logging.Engine("run %s: done blocks=%d tcs=%d tokens=%d",
		runID, total, summary.TestCasesTotal, usageTotal.Total())

	events <- Event{
		Type:             EventDone,
		RunID:            runID,
		Code:             OKGenerated,
		OK:               true,
		Message:          msgOKGenerated,
		DownloadFilename: BuildDownloadFilename(req.Filename),
		CSVBody:          csvBody,
		ProjectID:        projectID,
		Usage:            &usageTotal,
		Elapsed:          roundSecs(time.Since(startAll)),
		Stats:            &summary,
	}
}

// llmToRows runs one model call and parses the output into rows. A
// structurally invalid output gets exactly one repair retry with explicit
// formatting instructions appended.
func (e *Engine) llmToRows(ctx context.Context, promptText, userText string) ([]ado.Row, llm.Usage, error) {
	raw, callUsage, err := e.client.Generate(ctx, promptText, userText)
	if err != nil {
		return nil, callUsage, err
	}

	rows, parseErr := ado.ParseRows(ado.ExtractCSVOnly(raw))
	if parseErr == nil {
		return rows, callUsage, nil
	}
	logging.Engine("model output failed to parse, retrying with repair instructions: %v", parseErr)

	raw2, usage2, err := e.client.Generate(ctx, promptText, userText+repairInstructions)
	total := callUsage.Add(usage2)
	if err != nil {
		return nil, total, err
	}
	rows2, parseErr2 := ado.ParseRows(ado.ExtractCSVOnly(raw2))
	if parseErr2 != nil {
		return nil, total, fmt.Errorf("model output unparseable after repair retry: %w", parseErr2)
	}
	return rows2, total, nil
}

func (e *Engine) loadPromptText() (string, error) {
	path := e.cfg.Generation.PromptFile
	if err := ValidatePromptFile(path); err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// buildUserText assembles the per-block user message. The field labels are
// the contract the instruction prompt was written against.
func buildUserText(projectID string, reqNum int, scenarioName string, noTCStart int, globalContext, inputText string) string {
	return fmt.Sprintf(
		"IdProyecto: %s\n"+
			"RequirementNumber: %d\n"+
			"ScenarioName: %s\n"+
			"NoTCStart: %d\n"+
			"GlobalContext:\n%s\n"+
			"InputText:\n%s\n",
		projectID, reqNum, scenarioName, noTCStart, globalContext, inputText)
}

// BuildDownloadFilename keeps the original stem and appends the export
// suffix: "Proceso.docx" becomes "Proceso_TC.csv".
func BuildDownloadFilename(originalFilename string) string {
	base := filepath.Base(originalFilename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." {
		return "TC.csv"
	}
	return stem + "_TC.csv"
}

func roundSecs(d time.Duration) float64 {
	return float64(d.Round(10*time.Millisecond)) / float64(time.Second)
}

// Result is the terminal outcome of a synchronous run.
type Result struct {
	RunID            string
	CSVBody          string
	CSVOut           string
	DownloadFilename string
	ProjectID        string
	Usage            llm.Usage
	Elapsed          float64
	Stats            stats.Summary
}

// Collect drains an event stream and returns the final result, or the
// error event's message. CSVOut carries the body with the header line
// guaranteed, ready to write to disk.
func Collect(events <-chan Event) (*Result, error) {
	var done *Event
	for evt := range events {
		switch evt.Type {
		case EventError:
			return nil, fmt.Errorf("%s: %s", evt.Code, evt.Message)
		case EventDone:
			e := evt
			done = &e
		}
	}
	if done == nil {
		return nil, fmt.Errorf("generation ended unexpectedly without a final result")
	}

	res := &Result{
		RunID:            done.RunID,
		CSVBody:          done.CSVBody,
		CSVOut:           ado.EnsureHeader(done.CSVBody),
		DownloadFilename: done.DownloadFilename,
		ProjectID:        done.ProjectID,
		Elapsed:          done.Elapsed,
	}
	if done.Usage != nil {
		res.Usage = *done.Usage
	}
	if done.Stats != nil {
		res.Stats = *done.Stats
	}
	return res, nil
}
