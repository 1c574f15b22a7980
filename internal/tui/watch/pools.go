package watch

import (
	"fmt"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/tilegw/internal/pool"
)

var poolColumns = []table.Column{
	{Title: "Kind", Width: 8},
	{Title: "Generation", Width: 10},
	{Title: "State", Width: 10},
	{Title: "Size", Width: 7},
	{Title: "In use", Width: 7},
	{Title: "Idle", Width: 6},
	{Title: "Waiters", Width: 8},
}

func newPoolTable(theme Theme) table.Model {
	t := table.New(
		table.WithColumns(poolColumns),
		table.WithFocused(true),
		table.WithHeight(3),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		Bold(true)
	s.Selected = theme.Highlight.Bold(true)
	t.SetStyles(s)
	return t
}

// poolRows converts pool stats into table rows, one per pool.
func poolRows(stats []pool.Stats) []table.Row {
	rows := make([]table.Row, 0, len(stats))
	for _, st := range stats {
		gen := st.Generation
		if len(gen) > 8 {
			gen = gen[:8]
		}
		rows = append(rows, table.Row{
			st.Kind,
			gen,
			string(st.State),
			fmt.Sprintf("%d/%d", st.Size, st.Capacity),
			fmt.Sprintf("%d", st.InUse),
			fmt.Sprintf("%d", st.Idle),
			fmt.Sprintf("%d", st.Waiters),
		})
	}
	return rows
}

func renderPools(t table.Model, status StatusSnapshot, theme Theme, width int) string {
	innerWidth := width - 4

	if len(status.Pools) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("RENDERER POOLS"),
			theme.Dim.Render("  No pools installed"),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("RENDERER POOLS"),
		t.View(),
	)
	return theme.Border.Width(innerWidth).Render(content)
}
