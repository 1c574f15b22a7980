package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/tilegw/internal/events"
)

func renderEventStream(eventLog []events.Event, theme Theme, width int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EVENT STREAM"),
			theme.Dim.Render("  Waiting for events..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, e := range eventLog {
		if i >= 10 {
			break
		}
		lines = append(lines, formatEvent(e, theme))
	}

	eventsText := lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("EVENT STREAM"),
		eventsText,
	)

	return theme.Border.Width(innerWidth).Render(content)
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Format("15:04:05"))

	var typeStyle lipgloss.Style
	switch {
	case strings.HasSuffix(e.Type, "_failed"):
		typeStyle = theme.StatusFailed
	case strings.HasSuffix(e.Type, "loaded"), strings.HasSuffix(e.Type, ".completed"):
		typeStyle = theme.StatusOK
	case strings.HasPrefix(e.Type, "file."):
		typeStyle = theme.StatusRunning
	case strings.HasPrefix(e.Type, "pool."):
		typeStyle = theme.Highlight
	default:
		typeStyle = theme.Dim
	}

	typeName := typeStyle.Render(fmt.Sprintf("%-22s", e.Type))
	return fmt.Sprintf("%s %s %s", ts, typeName, extractEventDesc(e))
}

func extractEventDesc(e events.Event) string {
	data := make(map[string]any)
	_ = json.Unmarshal(e.Data, &data)

	var parts []string
	for _, key := range []string{"name", "kind", "format", "generation"} {
		if v, ok := data[key].(string); ok && v != "" {
			if key == "generation" && len(v) > 8 {
				v = v[:8]
			}
			parts = append(parts, v)
		}
	}
	if b, ok := data["bytes"].(float64); ok && b > 0 {
		parts = append(parts, fmt.Sprintf("%.0fB", b))
	}
	if unchanged, _ := data["unchanged"].(bool); unchanged {
		parts = append(parts, "unchanged")
	}
	if ms, ok := data["duration_ms"].(float64); ok && ms > 0 {
		parts = append(parts, fmt.Sprintf("%.0fms", ms))
	}
	if msg, ok := data["error"].(string); ok && msg != "" {
		parts = append(parts, "error: "+msg)
	}

	if len(parts) == 0 {
		raw := string(e.Data)
		if len(raw) > 60 {
			raw = raw[:60] + "..."
		}
		return raw
	}
	return strings.Join(parts, " ")
}
