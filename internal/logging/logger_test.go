package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestCategoriesLog tests that categories create log files when debug_mode is true
func TestCategoriesLog(t *testing.T) {
	tempDir := t.TempDir()

	configDir := filepath.Join(tempDir, ".tcgen")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}

	configContent := `{
		"logging": {
			"level": "debug",
			"debug_mode": true
		}
	}`
	configPath := filepath.Join(configDir, "config.json")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()

	Engine("run started: %s", "doc.pdf")
	Splitter("blocks detected: %d", 3)
	LLMDebug("request sent")

	entries, err := os.ReadDir(filepath.Join(tempDir, ".tcgen", "logs"))
	if err != nil {
		t.Fatalf("read logs dir: %v", err)
	}

	want := map[string]bool{"engine": false, "splitter": false, "llm": false}
	for _, e := range entries {
		for cat := range want {
			if strings.HasSuffix(e.Name(), "_"+cat+".log") {
				want[cat] = true
			}
		}
	}
	for cat, found := range want {
		if !found {
			t.Errorf("expected a log file for category %q", cat)
		}
	}
}

// TestProductionModeSilent verifies no log directory appears without config
func TestProductionModeSilent(t *testing.T) {
	tempDir := t.TempDir()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()

	Engine("this should go nowhere")

	if _, err := os.Stat(filepath.Join(tempDir, ".tcgen", "logs")); !os.IsNotExist(err) {
		t.Fatalf("logs directory should not exist in production mode")
	}
}
