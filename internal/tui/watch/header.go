package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// HealthState tracks server health from /healthz polling.
type HealthState struct {
	Status        string
	UptimeSeconds int64
	ProjectState  string
	Connected     bool
	LastCheck     time.Time
}

func renderHeader(health HealthState, status StatusSnapshot, activity Activity, theme Theme, width int) string {
	innerWidth := width - 4

	statusText := theme.StatusOK.Render("SERVING")
	statusIcon := "✅"
	switch {
	case !health.Connected:
		statusText = theme.StatusFailed.Render("CONNECTING")
		statusIcon = "🔌"
	case health.Status != "ok" && health.Status != "":
		statusText = theme.StatusFailed.Render("DEGRADED")
		statusIcon = "⚠️"
	case status.LastError != "":
		statusText = theme.StatusFailed.Render("RELOAD FAILED")
		statusIcon = "⚠️"
	case health.ProjectState != "loaded" && health.ProjectState != "":
		statusText = theme.StatusRunning.Render(strings.ToUpper(health.ProjectState))
		statusIcon = "⏳"
	}

	uptime := time.Duration(health.UptimeSeconds) * time.Second

	lastEventStr := "never"
	if !activity.LastEvent().IsZero() {
		ago := time.Since(activity.LastEvent()).Round(time.Second)
		lastEventStr = fmt.Sprintf("%s ago", ago)
	}

	link := theme.SparkIdle.Render("○")
	if health.Connected {
		link = theme.SparkActive.Render("●")
	}
	clock := theme.Dim.Render(time.Now().Format("15:04:05"))
	titleText := fmt.Sprintf(" TILEGW WATCH %s", link)

	titleWidth := lipgloss.Width(titleText)
	clockWidth := lipgloss.Width(clock)
	pad := innerWidth - titleWidth - clockWidth - 4
	if pad < 1 {
		pad = 1
	}
	titleLine := titleText + strings.Repeat(" ", pad) + clock + " "

	project := status.Project
	if project == "" {
		project = "-"
	}
	statsLine := fmt.Sprintf(" %s %s  ⏱ %s  Project: %s  Generation: %s",
		statusIcon, statusText,
		formatDuration(uptime),
		theme.Header.Render(project),
		shortGeneration(status.Generation),
	)

	activityLine := fmt.Sprintf(" Events/s %s  %d in %ds  last: %s",
		activity.Render(theme),
		activity.Total(), len(activity.buckets),
		theme.Highlight.Render(lastEventStr),
	)

	lines := []string{titleLine, statsLine, activityLine}
	if status.LastError != "" {
		lines = append(lines, theme.StatusFailed.Render(" "+status.LastError))
	}
	return theme.Border.Width(innerWidth).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// shortGeneration trims each half of a "raster/vector" generation to 8 characters.
func shortGeneration(gen string) string {
	if gen == "" {
		return "-"
	}
	parts := strings.Split(gen, "/")
	for i, p := range parts {
		if len(p) > 8 {
			parts[i] = p[:8]
		}
	}
	return strings.Join(parts, "/")
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
