package engine

import (
	"tcgen/internal/llm"
	"tcgen/internal/stats"
)

// EventType discriminates the events the engine emits while generating.
type EventType string

const (
	EventMeta     EventType = "meta"
	EventProgress EventType = "progress"
	EventDone     EventType = "done"
	EventError    EventType = "error"
)

// UI-facing result codes.
const (
	ErrAssignedTo  = "ERR_ASSIGNED_TO"
	ErrNoProjectID = "ERR_NO_PROJECT_ID"
	ErrNoToBe      = "ERR_NO_TOBE"
	ErrNoReqs      = "ERR_NO_REQS"
	ErrEngine      = "ERR_ENGINE"

	OKGenerated = "OK_GENERATED"
)

// UI-facing messages. The audience is Spanish-speaking QA staff.
const (
	msgAssignedToRequired = "El campo 'Assigned To' es obligatorio."
	msgNoProjectID        = "No se encontró el Project ID en el documento (se esperaba 'ID proyecto')."
	msgNoToBe             = "No fue posible extraer la sección TO-BE (2.4) del documento."
	msgNoReqs             = "No se detectaron requerimientos en la sección TO-BE."
	msgOKGenerated        = "Casos de prueba generados correctamente."
	msgEngineError        = "Ocurrió un error durante la generación. Revise los logs."
)

// Event is one streamed generation event. Fields are populated according
// to Type; unused fields stay at their zero values and are omitted from
// the serialized form.
type Event struct {
	Type  EventType `json:"type"`
	RunID string    `json:"run_id,omitempty"`

	// error / done
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`

	// meta
	TotalBlocks int `json:"total_blocks,omitempty"`

	// progress
	Done        int     `json:"done,omitempty"`
	Total       int     `json:"total,omitempty"`
	Requirement int     `json:"req,omitempty"`
	Scenario    string  `json:"scenario,omitempty"`
	Secs        float64 `json:"secs,omitempty"`

	// done
	OK               bool           `json:"ok,omitempty"`
	DownloadFilename string         `json:"download_filename,omitempty"`
	CSVBody          string         `json:"csv_body,omitempty"`
	ProjectID        string         `json:"project_id,omitempty"`
	Usage            *llm.Usage     `json:"usage,omitempty"`
	Elapsed          float64        `json:"elapsed,omitempty"`
	Stats            *stats.Summary `json:"stats,omitempty"`
}

func errorEvent(runID, code, message string) Event {
	return Event{Type: EventError, RunID: runID, Code: code, Message: message}
}
