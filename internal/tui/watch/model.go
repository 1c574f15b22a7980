package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/tilegw/internal/events"
)

const (
	statusInterval = 2 * time.Second
	healthInterval = 5 * time.Second
	maxEventLog    = 50
	activityWindow = 30
)

// Model is the main BubbleTea model for the watch TUI.
type Model struct {
	baseURL string
	project string

	width  int
	height int

	// State
	health   HealthState
	status   StatusSnapshot
	pools    table.Model
	changes  []FileChange
	eventLog []events.Event

	activity Activity

	theme Theme

	// Communication
	hubEvents chan events.Event

	// Error display
	lastError string
}

// New creates a watch model for the project mounted as project on the server
// at baseURL.
func New(baseURL, project string) *Model {
	theme := NewDefaultTheme()
	return &Model{
		baseURL:   baseURL,
		project:   project,
		pools:     newPoolTable(theme),
		eventLog:  make([]events.Event, 0),
		hubEvents: make(chan events.Event, 100),
		activity:  NewActivity(activityWindow, time.Now()),
		theme:     theme,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.baseURL, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		func() tea.Msg { return fetchHealth(m.baseURL) },
		func() tea.Msg { return fetchStatus(m.baseURL, m.project, true) },
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.pools, cmd = m.pools.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.activity.Advance(time.Time(msg))
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case eventMsg:
		e := events.Event(msg)

		// Newest first
		m.eventLog = append([]events.Event{e}, m.eventLog...)
		if len(m.eventLog) > maxEventLog {
			m.eventLog = m.eventLog[:maxEventLog]
		}
		m.activity.Record(time.Now())
		m.health.Connected = true
		m.lastError = ""

		cmds := []tea.Cmd{receiveNextEvent(m.hubEvents)}
		switch e.Type {
		case events.FileChanged:
			m.changes = recordChange(m.changes, e)
		case events.ProjectLoaded, events.ProjectReloaded, events.ReloadFailed, events.PoolRetired:
			cmds = append(cmds, func() tea.Msg { return fetchStatus(m.baseURL, m.project, false) })
		}
		return m, tea.Batch(cmds...)

	case healthMsg:
		m.health.Status = msg.Status
		m.health.UptimeSeconds = msg.UptimeSeconds
		m.health.ProjectState = msg.ProjectState
		m.health.Connected = true
		m.health.LastCheck = time.Now()
		m.lastError = ""

		return m, tea.Tick(healthInterval, func(t time.Time) tea.Msg {
			return fetchHealth(m.baseURL)
		})

	case statusMsg:
		m.status = msg.snapshot
		m.pools.SetRows(poolRows(msg.snapshot.Pools))
		if !msg.periodic {
			return m, nil
		}
		return m, tea.Tick(statusInterval, func(t time.Time) tea.Msg {
			return fetchStatus(m.baseURL, m.project, true)
		})

	case statusErrMsg:
		m.lastError = msg.err.Error()
		if !msg.periodic {
			return m, nil
		}
		return m, tea.Tick(healthInterval, func(t time.Time) tea.Msg {
			return fetchStatus(m.baseURL, m.project, true)
		})

	case sseDisconnectedMsg:
		m.health.Connected = false
		m.lastError = "SSE disconnected, reconnecting..."
		// The pending receiveNextEvent keeps waiting on the channel and picks
		// up events from the new subscription.
		return m, tea.Tick(3*time.Second, func(t time.Time) tea.Msg {
			return reconnectMsg{}
		})

	case reconnectMsg:
		return m, subscribeToEvents(m.baseURL, m.hubEvents)

	case errMsg:
		m.lastError = msg.Error()
		return m, tea.Tick(healthInterval, func(t time.Time) tea.Msg {
			return fetchHealth(m.baseURL)
		})
	}

	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing tilegw watch..."
	}

	header := renderHeader(m.health, m.status, m.activity, m.theme, m.width)
	pools := renderPools(m.pools, m.status, m.theme, m.width)
	changes := renderChanges(m.changes, m.status.Pending, m.theme, m.width)
	eventStream := renderEventStream(m.eventLog, m.theme, m.width)

	var errBar string
	if m.lastError != "" {
		errBar = m.theme.StatusFailed.Render(fmt.Sprintf(" ⚠ %s", m.lastError))
	}

	help := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render(" [q] Quit • [↑/↓] Select pool")

	parts := []string{header, pools, changes, eventStream}
	if errBar != "" {
		parts = append(parts, errBar)
	}
	parts = append(parts, help)

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}
