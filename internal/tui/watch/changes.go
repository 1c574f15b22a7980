package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/tilegw/internal/events"
)

const maxChanges = 10

// FileChange is a file.changed event seen on the stream.
type FileChange struct {
	Name   string
	Op     string
	Queued bool
	At     time.Time
}

// recordChange prepends the change carried by e, keeping the newest maxChanges.
func recordChange(changes []FileChange, e events.Event) []FileChange {
	var f events.File
	if err := e.Decode(&f); err != nil || f.Name == "" {
		return changes
	}
	changes = append([]FileChange{{Name: f.Name, Op: f.Op, Queued: f.Queued, At: e.At}}, changes...)
	if len(changes) > maxChanges {
		changes = changes[:maxChanges]
	}
	return changes
}

func renderChanges(changes []FileChange, pending int, theme Theme, width int) string {
	innerWidth := width - 4
	title := theme.Title.Render(fmt.Sprintf("FILE CHANGES  %s", theme.Dim.Render(fmt.Sprintf("pending: %d", pending))))

	if len(changes) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left, title, theme.Dim.Render("  No changes on disk"))
		return theme.Border.Width(innerWidth).Render(content)
	}

	lines := make([]string, 0, len(changes))
	for _, c := range changes {
		mark := theme.Dim.Render("coalesced")
		if c.Queued {
			mark = theme.StatusRunning.Render("queued")
		}
		lines = append(lines, fmt.Sprintf("%s %-8s %s %s",
			theme.Dim.Render(c.At.Format("15:04:05")), c.Op, c.Name, mark))
	}
	body := lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
	return theme.Border.Width(innerWidth).Render(lipgloss.JoinVertical(lipgloss.Left, title, body))
}
