package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"tcgen/internal/ado"
	"tcgen/internal/config"
	"tcgen/internal/document"
	"tcgen/internal/engine"
	"tcgen/internal/llm"
	"tcgen/internal/logging"
	"tcgen/internal/stats"
	"tcgen/internal/usage"
)

// Excel needs the BOM to open the CSV as UTF-8.
const utf8BOM = "\xEF\xBB\xBF"

var (
	// Global flags
	verbose    bool
	configPath string
	workspace  string

	// generate flags
	assignedTo string
	outPath    string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "tcgen",
	Short: "tcgen - ADO test-case generator for TO-BE process documents",
	Long: `tcgen converts a semi-structured TO-BE requirements document into an
Azure DevOps test-case CSV.

The pipeline slices section 2.4 out of the document, splits it into one
block per detailed action, sends each block to the model together with a
global context pack, and normalizes the returned rows into the 15-column
ADO import schema.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws := workspace
		if ws == "" {
			ws, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to resolve workspace: %w", err)
			}
		}
		if err := logging.Initialize(ws); err != nil {
			logger.Warn("category logging disabled", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// generateCmd runs the full document-to-CSV pipeline
var generateCmd = &cobra.Command{
	Use:   "generate [document]",
	Short: "Generate ADO test cases from a TO-BE document",
	Long: `Reads a TO-BE process document, extracts the detailed-actions section,
and generates one group of test cases per requirement.

The result is written as a UTF-8 CSV (with BOM, so Excel opens it
correctly) named <document>_TC.csv unless --out is given.

Example:
  tcgen generate Proceso_Nomina.txt --assigned-to "QA Team"`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

// statsCmd recomputes metrics over an already generated CSV
var statsCmd = &cobra.Command{
	Use:   "stats [csv]",
	Short: "Summarize a generated test-case CSV",
	Long: `Analyzes a generated CSV and reports requirement and test-case counts,
not-testable requirements, and requirements that hit the per-block
test-case budget.`,
	Args: cobra.ExactArgs(1),
	RunE: runStats,
}

var statsJSON bool

// versionCmd prints the build identity
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the tcgen version",
	Run: func(cmd *cobra.Command, args []string) {
		def := config.DefaultConfig()
		fmt.Printf("%s %s\n", def.Name, def.Version)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: built-in defaults plus env overrides)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")

	// Generate flags
	generateCmd.Flags().StringVar(&assignedTo, "assigned-to", "", "Assigned To written on every row (required)")
	generateCmd.Flags().StringVarP(&outPath, "out", "o", "", "Output CSV path (default: <document>_TC.csv)")
	generateCmd.MarkFlagRequired("assigned-to")

	// Stats flags
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Emit the summary as JSON")

	// Add commands to root
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runGenerate drives the engine and streams progress to the terminal.
func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// The configured timeout bounds each model call inside the client, not
	// the run: a large document legitimately needs many calls.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	docPath := args[0]
	data, err := os.ReadFile(docPath)
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}

	filename := filepath.Base(docPath)
	if err := engine.ValidateExtension(filename, cfg.Upload.AllowedExts); err != nil {
		return err
	}
	if err := engine.ValidateSize(int64(len(data)), cfg.Upload.MaxMB); err != nil {
		return err
	}
	if err := engine.ValidatePromptFile(cfg.Generation.PromptFile); err != nil {
		return err
	}

	client, err := llm.NewFromConfig(ctx, cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to build LLM client: %w", err)
	}

	ws := workspace
	if ws == "" {
		ws, _ = os.Getwd()
	}
	tracker, err := usage.NewTracker(ws)
	if err != nil {
		logger.Warn("usage tracking disabled", zap.Error(err))
		tracker = nil
	}

	eng := engine.New(cfg, client, document.PlainTextExtractor{}, tracker)
	logger.Info("Starting generation",
		zap.String("document", filename),
		zap.String("model", client.Model()))

	fmt.Println(styleTitle.Render("tcgen") + styleMuted.Render("  "+filename))

	var done *engine.Event
	for evt := range eng.Run(ctx, engine.Request{
		Filename:   filename,
		FileBytes:  data,
		AssignedTo: assignedTo,
	}) {
		switch evt.Type {
		case engine.EventMeta:
			fmt.Println(styleMuted.Render(
				fmt.Sprintf("  %d requerimientos detectados", evt.TotalBlocks)))
		case engine.EventProgress:
			fmt.Printf("  %s req %03d  %s %s\n",
				styleSuccess.Render(fmt.Sprintf("[%d/%d]", evt.Done, evt.Total)),
				evt.Requirement,
				truncate(evt.Scenario, 48),
				styleMuted.Render(fmt.Sprintf("(%.1fs)", evt.Secs)))
		case engine.EventError:
			fmt.Println(styleError.Render("✗ " + evt.Message))
			return fmt.Errorf("%s: %s", evt.Code, evt.Message)
		case engine.EventDone:
			e := evt
			done = &e
		}
	}
	if done == nil {
		return fmt.Errorf("generation ended unexpectedly without a final result")
	}

	target := outPath
	if target == "" {
		target = done.DownloadFilename
	}
	csvOut := ado.EnsureHeader(done.CSVBody)
	if err := os.WriteFile(target, []byte(utf8BOM+csvOut), 0644); err != nil {
		return fmt.Errorf("failed to write CSV: %w", err)
	}

	fmt.Println()
	fmt.Println(styleSuccess.Render("✓ " + done.Message))
	fmt.Println(kv("Archivo:", target))
	fmt.Println(kv("Project ID:", done.ProjectID))
	if done.Stats != nil {
		printSummary(*done.Stats)
	}
	if done.Usage != nil {
		fmt.Println(kv("Tokens:", fmt.Sprintf("%d in / %d out",
			done.Usage.InputTokens, done.Usage.OutputTokens)))
	}
	fmt.Println(kv("Tiempo:", fmt.Sprintf("%.1fs", done.Elapsed)))
	return nil
}

// runStats recomputes the summary over a CSV produced earlier.
func runStats(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read CSV: %w", err)
	}

	summary := stats.NewAnalyzer().Analyze(string(data))
	if statsJSON {
		out, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Println(styleTitle.Render(filepath.Base(args[0])))
	printSummary(summary)
	return nil
}

func printSummary(s stats.Summary) {
	fmt.Println(kv("Requerimientos:", fmt.Sprintf("%d", s.RequirementsTotal)))
	fmt.Println(kv("Casos de prueba:", fmt.Sprintf("%d", s.TestCasesTotal)))
	if s.NotTestableTotal > 0 {
		fmt.Println(kv("No testeables:", fmt.Sprintf("%d (%s)",
			s.NotTestableTotal, strings.Join(s.NotTestableList, ", "))))
	}
	if s.LimitReachedTotal > 0 {
		fmt.Println(styleWarn.Render(
			kv("Límite alcanzado:", fmt.Sprintf("%d requerimiento(s)", s.LimitReachedTotal))))
		for _, d := range s.LimitReachedDetail {
			line := "  req " + d.Requirement
			if d.Identified > 0 {
				line += fmt.Sprintf(": %d de %d generados", d.Generated, d.Identified)
			} else if d.Omitted > 0 {
				line += fmt.Sprintf(": %d objetivo(s) omitido(s)", d.Omitted)
			}
			fmt.Println(styleMuted.Render(line))
		}
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
