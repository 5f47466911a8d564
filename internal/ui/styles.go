package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	ColorPrimary   = lipgloss.Color("39")  // Cyan
	ColorSecondary = lipgloss.Color("212") // Pink
	ColorSuccess   = lipgloss.Color("82")  // Green
	ColorWarning   = lipgloss.Color("214") // Orange
	ColorError     = lipgloss.Color("196") // Red
	ColorMuted     = lipgloss.Color("245") // Gray
	ColorHighlight = lipgloss.Color("226") // Yellow
)

var (
	Bold      = lipgloss.NewStyle().Bold(true)
	Dim       = lipgloss.NewStyle().Foreground(ColorMuted)
	Highlight = lipgloss.NewStyle().Foreground(ColorHighlight)
	Header    = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)

	Success = lipgloss.NewStyle().Foreground(ColorSuccess)
	Warning = lipgloss.NewStyle().Foreground(ColorWarning)
	Error   = lipgloss.NewStyle().Foreground(ColorError)

	Source      = lipgloss.NewStyle().Foreground(ColorPrimary)
	ResultScore = lipgloss.NewStyle().Foreground(ColorSuccess)

	SectionTitle = lipgloss.NewStyle().
			Foreground(ColorSecondary).
			Bold(true).
			MarginTop(1)
	Divider = lipgloss.NewStyle().
		Foreground(ColorMuted)

	// Label pads key/value rows in status output.
	Label = lipgloss.NewStyle().Foreground(ColorMuted).Width(14)
)

// HorizontalRule returns a styled horizontal divider.
func HorizontalRule(width int) string {
	return Divider.Render(strings.Repeat("─", width))
}

// FormatSource formats a source path and the parent's position in it.
func FormatSource(source string, part int) string {
	if source == "" {
		source = "(unknown source)"
	}
	return Source.Render(source) + Dim.Render(fmt.Sprintf(" #%d", part+1))
}

// FormatScore formats a similarity score as a percentage.
func FormatScore(score float64) string {
	return ResultScore.Render(fmt.Sprintf("(%.1f%% match)", score*100))
}

// FormatStatus colors an ingestion status.
func FormatStatus(status string) string {
	switch status {
	case "succeeded":
		return Success.Render(status)
	case "partial", "skipped":
		return Warning.Render(status)
	case "failed":
		return Error.Render(status)
	default:
		return status
	}
}

// KeyValue renders an aligned "key value" row.
func KeyValue(key string, value any) string {
	return Label.Render(key) + fmt.Sprint(value)
}
