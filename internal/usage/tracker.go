// Package usage records token consumption per generation run and persists
// it under the workspace so repeated documents can be costed afterwards.
package usage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TokenCounts accumulates input/output token totals plus the call count.
type TokenCounts struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	Calls        int `json:"calls"`
}

// TotalTokens returns input plus output tokens.
func (c TokenCounts) TotalTokens() int {
	return c.InputTokens + c.OutputTokens
}

func (c TokenCounts) add(input, output int) TokenCounts {
	return TokenCounts{
		InputTokens:  c.InputTokens + input,
		OutputTokens: c.OutputTokens + output,
		Calls:        c.Calls + 1,
	}
}

// Event is one recorded LLM call.
type Event struct {
	Timestamp   time.Time `json:"timestamp"`
	RunID       string    `json:"run_id"`
	Model       string    `json:"model"`
	Requirement int       `json:"requirement"`
	Input       int       `json:"input_tokens"`
	Output      int       `json:"output_tokens"`
}

// Data is the persisted usage file layout.
type Data struct {
	Version string                 `json:"version"`
	Total   TokenCounts            `json:"total"`
	ByModel map[string]TokenCounts `json:"by_model"`
	ByRun   map[string]TokenCounts `json:"by_run"`
	Events  []Event                `json:"events,omitempty"`
}

// maxEvents bounds the persisted per-call history.
const maxEvents = 2000

// Tracker records token usage. Safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	data     Data
	filePath string
}

// NewTracker creates a tracker persisting under <workspace>/.tcgen/usage.json.
// A corrupt or missing file starts the tracker empty rather than failing.
func NewTracker(workspacePath string) (*Tracker, error) {
	dir := filepath.Join(workspacePath, ".tcgen")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create .tcgen dir: %w", err)
	}

	t := &Tracker{
		filePath: filepath.Join(dir, "usage.json"),
		data: Data{
			Version: "1.0",
			ByModel: make(map[string]TokenCounts),
			ByRun:   make(map[string]TokenCounts),
		},
	}
	_ = t.load()
	return t, nil
}

func (t *Tracker) load() error {
	raw, err := os.ReadFile(t.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var loaded Data
	if err := json.Unmarshal(raw, &loaded); err != nil {
		return err
	}
	if loaded.ByModel == nil {
		loaded.ByModel = make(map[string]TokenCounts)
	}
	if loaded.ByRun == nil {
		loaded.ByRun = make(map[string]TokenCounts)
	}
	t.data = loaded
	return nil
}

// Track records one LLM call attributed to a run and requirement.
func (t *Tracker) Track(runID, model string, requirement, input, output int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.data.Total = t.data.Total.add(input, output)
	t.data.ByModel[model] = t.data.ByModel[model].add(input, output)
	t.data.ByRun[runID] = t.data.ByRun[runID].add(input, output)

	t.data.Events = append(t.data.Events, Event{
		Timestamp:   time.Now().UTC(),
		RunID:       runID,
		Model:       model,
		Requirement: requirement,
		Input:       input,
		Output:      output,
	})
	if len(t.data.Events) > maxEvents {
		t.data.Events = t.data.Events[len(t.data.Events)-maxEvents:]
	}
}

// RunTotals returns the accumulated counts for one run id.
func (t *Tracker) RunTotals(runID string) TokenCounts {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.data.ByRun[runID]
}

// Totals returns the all-time counts.
func (t *Tracker) Totals() TokenCounts {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.data.Total
}

// ModelTotals returns a copy of the per-model counts.
func (t *Tracker) ModelTotals() map[string]TokenCounts {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]TokenCounts, len(t.data.ByModel))
	for k, v := range t.data.ByModel {
		out[k] = v
	}
	return out
}

// Save writes the usage data to disk.
func (t *Tracker) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	raw, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(t.filePath, raw, 0644)
}
