// Package watch implements the tilegw watch TUI: pool occupancy from the
// project /status/ route plus the live /events stream.
package watch

import "github.com/charmbracelet/lipgloss"

// Theme holds all styling for the watch TUI.
type Theme struct {
	StatusOK      lipgloss.Style
	StatusRunning lipgloss.Style
	StatusFailed  lipgloss.Style

	Border    lipgloss.Style
	Title     lipgloss.Style
	Header    lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style

	SparkActive lipgloss.Style
	SparkIdle   lipgloss.Style
}

// NewDefaultTheme uses a muted palette close to common basemap colours.
func NewDefaultTheme() Theme {
	teal := lipgloss.Color("#2AA198")

	return Theme{
		StatusOK:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#A3BE8C")),
		StatusRunning: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EBCB8B")),
		StatusFailed:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#BF616A")),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(teal),
		Title:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ECEFF4")).Padding(0, 1),
		Header:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#88C0D0")),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")),
		Highlight: lipgloss.NewStyle().Foreground(lipgloss.Color("#D08770")),

		SparkActive: lipgloss.NewStyle().Foreground(teal),
		SparkIdle:   lipgloss.NewStyle().Foreground(lipgloss.Color("#3B4252")),
	}
}
