package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcgen/internal/ado"
	"tcgen/internal/config"
	"tcgen/internal/document"
	"tcgen/internal/llm"
)

// fakeClient replays canned responses; the last one repeats.
type fakeClient struct {
	responses []string
	calls     int
	inputs    []string
}

func (f *fakeClient) Generate(_ context.Context, _, input string) (string, llm.Usage, error) {
	f.inputs = append(f.inputs, input)
	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	f.calls++
	return f.responses[idx], llm.Usage{InputTokens: 10, OutputTokens: 5}, nil
}

func (f *fakeClient) Model() string { return "fake-model" }

type failingClient struct{}

func (failingClient) Generate(context.Context, string, string) (string, llm.Usage, error) {
	return "", llm.Usage{}, fmt.Errorf("network down")
}

func (failingClient) Model() string { return "fake-model" }

const testDocument = `PDD Proceso de Nómina
ID del proyecto: CLD.AMS.11
1. Introducción
Texto introductorio del documento.
2.4 Acciones detalladas del proceso TO-BE
Sistema: SAP ECC
1. Nombre de la acción: Carga de archivo
El bot carga el archivo al portal.
2. Nombre de la acción: Cierre de sesión
El bot cierra la sesión del portal.
2.5 Matriz de criterios de aceptación
Contenido posterior.
`

func modelCSV(objective string) string {
	row := ado.NewRow()
	row[ado.ColWorkItemType] = "Test Case"
	row[ado.ColTitle] = "titulo del modelo"
	row[ado.ColTypeOfTest] = "Functional"
	row[ado.ColPriority] = "1"
	row[ado.ColObjective] = objective
	step := ado.NewRow()
	step[ado.ColTestStep] = "1"
	step[ado.ColStepAction] = "abrir portal"
	step[ado.ColStepExpected] = "portal abierto"
	out, _ := ado.DumpRows([]ado.Row{row, step})
	return out
}

func newTestEngine(t *testing.T, client llm.Client) *Engine {
	t.Helper()

	dir := t.TempDir()
	promptPath := filepath.Join(dir, "prompt.txt")
	require.NoError(t, os.WriteFile(promptPath, []byte("Genera casos de prueba ADO."), 0644))

	cfg := config.DefaultConfig()
	cfg.Generation.PromptFile = promptPath
	return New(cfg, client, document.PlainTextExtractor{}, nil)
}

func collectAll(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	for evt := range events {
		out = append(out, evt)
	}
	return out
}

func TestRun_FullPipeline(t *testing.T) {
	client := &fakeClient{responses: []string{modelCSV("Validar la carga")}}
	e := newTestEngine(t, client)

	events := collectAll(t, e.Run(context.Background(), Request{
		Filename:   "Proceso_Nomina.txt",
		FileBytes:  []byte(testDocument),
		AssignedTo: "QA Team",
	}))

	require.GreaterOrEqual(t, len(events), 4)
	assert.Equal(t, EventMeta, events[0].Type)
	assert.Equal(t, 2, events[0].TotalBlocks)
	assert.NotEmpty(t, events[0].RunID)

	progress := events[1]
	assert.Equal(t, EventProgress, progress.Type)
	assert.Equal(t, 1, progress.Done)
	assert.Equal(t, 2, progress.Total)
	assert.Equal(t, 1, progress.Requirement)
	assert.Equal(t, "Carga de archivo", progress.Scenario)

	done := events[len(events)-1]
	require.Equal(t, EventDone, done.Type)
	assert.True(t, done.OK)
	assert.Equal(t, OKGenerated, done.Code)
	assert.Equal(t, "Proceso_Nomina_TC.csv", done.DownloadFilename)
	assert.Equal(t, "CLD.AMS.11", done.ProjectID)
	assert.Equal(t, events[0].RunID, done.RunID)

	// One call per block, titles renumbered per requirement.
	assert.Equal(t, 2, client.calls)
	assert.Contains(t, done.CSVBody, "CLD.AMS.11.001.001")
	assert.Contains(t, done.CSVBody, "CLD.AMS.11.002.001")
	assert.Contains(t, done.CSVBody, "QA Team")

	require.NotNil(t, done.Usage)
	assert.Equal(t, 20, done.Usage.InputTokens)
	require.NotNil(t, done.Stats)
	assert.Equal(t, 2, done.Stats.RequirementsTotal)
	assert.Equal(t, 2, done.Stats.TestCasesTotal)

	// Prompt contract: every per-block message carries the labeled fields.
	for _, input := range client.inputs {
		assert.Contains(t, input, "IdProyecto: CLD.AMS.11")
		assert.Contains(t, input, "RequirementNumber: ")
		assert.Contains(t, input, "ScenarioName: ")
		assert.Contains(t, input, "NoTCStart: 1")
		assert.Contains(t, input, "GlobalContext:\n")
		assert.Contains(t, input, "InputText:\n")
	}
	assert.Contains(t, client.inputs[0], "SAP ECC")
}

func TestRun_RepairRetry(t *testing.T) {
	bad := strings.Repeat("campo,", ado.NCols) + "extra"
	client := &fakeClient{responses: []string{bad, modelCSV("Objetivo")}}
	e := newTestEngine(t, client)

	events := collectAll(t, e.Run(context.Background(), Request{
		Filename:   "doc.txt",
		FileBytes:  []byte(testDocument),
		AssignedTo: "QA Team",
	}))

	done := events[len(events)-1]
	require.Equal(t, EventDone, done.Type)

	// First block needed two calls; the repair instructions were appended.
	require.GreaterOrEqual(t, client.calls, 3)
	assert.Contains(t, client.inputs[1], "REPAIR:")
	assert.NotContains(t, client.inputs[0], "REPAIR:")
}

func TestRun_Validations(t *testing.T) {
	t.Run("missing assigned to", func(t *testing.T) {
		e := newTestEngine(t, &fakeClient{responses: []string{modelCSV("x")}})
		events := collectAll(t, e.Run(context.Background(), Request{
			Filename:  "doc.txt",
			FileBytes: []byte(testDocument),
		}))
		require.Len(t, events, 1)
		assert.Equal(t, EventError, events[0].Type)
		assert.Equal(t, ErrAssignedTo, events[0].Code)
	})

	t.Run("missing project id", func(t *testing.T) {
		e := newTestEngine(t, &fakeClient{responses: []string{modelCSV("x")}})
		doc := strings.Replace(testDocument, "ID del proyecto: CLD.AMS.11", "", 1)
		events := collectAll(t, e.Run(context.Background(), Request{
			Filename: "doc.txt", FileBytes: []byte(doc), AssignedTo: "QA",
		}))
		require.Len(t, events, 1)
		assert.Equal(t, ErrNoProjectID, events[0].Code)
	})

	t.Run("missing TO-BE section", func(t *testing.T) {
		e := newTestEngine(t, &fakeClient{responses: []string{modelCSV("x")}})
		events := collectAll(t, e.Run(context.Background(), Request{
			Filename:   "doc.txt",
			FileBytes:  []byte("ID del proyecto: CLD.AMS.11\nDocumento sin sección."),
			AssignedTo: "QA",
		}))
		require.Len(t, events, 1)
		assert.Equal(t, ErrNoToBe, events[0].Code)
	})

	t.Run("llm failure is an engine error", func(t *testing.T) {
		e := newTestEngine(t, failingClient{})
		events := collectAll(t, e.Run(context.Background(), Request{
			Filename: "doc.txt", FileBytes: []byte(testDocument), AssignedTo: "QA",
		}))
		last := events[len(events)-1]
		assert.Equal(t, EventError, last.Type)
		assert.Equal(t, ErrEngine, last.Code)
	})
}

func TestCollect(t *testing.T) {
	t.Run("returns final result with header", func(t *testing.T) {
		client := &fakeClient{responses: []string{modelCSV("Objetivo")}}
		e := newTestEngine(t, client)

		res, err := Collect(e.Run(context.Background(), Request{
			Filename: "doc.txt", FileBytes: []byte(testDocument), AssignedTo: "QA",
		}))
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(res.CSVOut, ado.Header+"\n"))
		assert.Equal(t, "doc_TC.csv", res.DownloadFilename)
		assert.NotEmpty(t, res.RunID)
	})

	t.Run("propagates error events", func(t *testing.T) {
		e := newTestEngine(t, &fakeClient{responses: []string{modelCSV("x")}})
		_, err := Collect(e.Run(context.Background(), Request{Filename: "doc.txt"}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), ErrAssignedTo)
	})
}

func TestBuildDownloadFilename(t *testing.T) {
	assert.Equal(t, "Proceso_TC.csv", BuildDownloadFilename("Proceso.docx"))
	assert.Equal(t, "Proceso_TC.csv", BuildDownloadFilename("/tmp/subido/Proceso.pdf"))
	assert.Equal(t, "TC.csv", BuildDownloadFilename(""))
}

func TestValidators(t *testing.T) {
	t.Run("extension", func(t *testing.T) {
		assert.NoError(t, ValidateExtension("Doc.DOCX", []string{".pdf", ".docx"}))
		assert.Error(t, ValidateExtension("doc.exe", []string{".pdf", ".docx"}))
	})

	t.Run("size", func(t *testing.T) {
		assert.NoError(t, ValidateSize(1024, 1))
		assert.Error(t, ValidateSize(2<<20, 1))
		assert.Error(t, ValidateSize(1, 0))
	})

	t.Run("prompt file", func(t *testing.T) {
		dir := t.TempDir()
		missing := filepath.Join(dir, "nope.txt")
		assert.Error(t, ValidatePromptFile(missing))

		empty := filepath.Join(dir, "empty.txt")
		require.NoError(t, os.WriteFile(empty, []byte("  \n"), 0644))
		assert.Error(t, ValidatePromptFile(empty))

		good := filepath.Join(dir, "good.txt")
		require.NoError(t, os.WriteFile(good, []byte("prompt"), 0644))
		assert.NoError(t, ValidatePromptFile(good))
	})

	t.Run("assigned to", func(t *testing.T) {
		assert.Error(t, ValidateAssignedTo(" \r\n "))
		assert.NoError(t, ValidateAssignedTo("QA Team"))
	})
}
