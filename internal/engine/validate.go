package engine

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// Upload and input validation shared by the engine and the CLI surface.
// Each validator returns nil when the input passes.

// ValidatePromptFile checks that the prompt file exists and is non-empty.
// It does not judge the prompt's content.
func ValidatePromptFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("missing prompt file: %s", path)
		}
		return fmt.Errorf("read prompt file: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return fmt.Errorf("the prompt file is empty: %s", path)
	}
	return nil
}

// ValidateExtension checks the filename against the allowed suffix list.
func ValidateExtension(filename string, allowedExts []string) error {
	lower := strings.ToLower(filename)
	for _, ext := range allowedExts {
		if strings.HasSuffix(lower, ext) {
			return nil
		}
	}
	sorted := append([]string(nil), allowedExts...)
	sort.Strings(sorted)
	return fmt.Errorf("unsupported file type, allowed: %s", strings.Join(sorted, ", "))
}

// ValidateSize checks the uploaded byte count against a MiB budget.
func ValidateSize(fileSizeBytes int64, maxMB int) error {
	maxBytes := int64(maxMB) * 1024 * 1024
	if maxBytes <= 0 {
		return fmt.Errorf("maximum upload size is not configured correctly")
	}
	if fileSizeBytes > maxBytes {
		return fmt.Errorf("file too large, maximum allowed size is %d MB", maxMB)
	}
	return nil
}

// ValidateExtractedText fails early when the decoder produced no text,
// typically a scanned or image-only document.
func ValidateExtractedText(docText string) error {
	if strings.TrimSpace(docText) == "" {
		return fmt.Errorf("no text could be extracted from the document")
	}
	return nil
}

// ValidateAssignedTo checks that the ADO assignee display name is present.
// The value is not verified against ADO itself.
func ValidateAssignedTo(assignedTo string) error {
	v := strings.NewReplacer("\r", " ", "\n", " ").Replace(assignedTo)
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("assigned to is required")
	}
	return nil
}
