package main

import "github.com/charmbracelet/lipgloss"

// Terminal styles for the generate/stats output.
var (
	styleTitle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#101F38")).
			Bold(true)

	styleSuccess = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8BC34A")).
			Bold(true)

	styleError = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#e53935")).
			Bold(true)

	styleWarn = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFC107"))

	styleMuted = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6b7280"))

	styleLabel = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#2196F3")).
			Width(22)
)

func kv(label, value string) string {
	return styleLabel.Render(label) + " " + value
}
