package watch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/tilegw/internal/events"
	"github.com/mattjoyce/tilegw/internal/pool"
)

// --- Message types ---

type eventMsg events.Event

type healthMsg struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	ProjectState  string `json:"project_state"`
}

// StatusSnapshot mirrors the /status/ project route.
type StatusSnapshot struct {
	Project     string       `json:"project"`
	State       string       `json:"state"`
	Generation  string       `json:"generation"`
	Fingerprint string       `json:"fingerprint"`
	Pools       []pool.Stats `json:"pools"`
	Pending     int          `json:"pending"`
	LastError   string       `json:"last_error"`
}

// statusMsg carries a snapshot. Only periodic fetches schedule the next one.
type statusMsg struct {
	snapshot StatusSnapshot
	periodic bool
}

type statusErrMsg struct {
	err      error
	periodic bool
}

type tickMsg time.Time

type errMsg error

type sseDisconnectedMsg struct{}
type reconnectMsg struct{}

var httpClient = &http.Client{Timeout: 2 * time.Second}

// --- Commands ---

// subscribeToEvents connects to the SSE /events endpoint and feeds events
// into ch. Returns sseDisconnectedMsg when the connection drops.
func subscribeToEvents(baseURL string, ch chan<- events.Event) tea.Cmd {
	return func() tea.Msg {
		resp, err := http.Get(baseURL + "/events")
		if err != nil {
			return sseDisconnectedMsg{}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return sseDisconnectedMsg{}
		}
		parseSSE(resp.Body, ch)
		return sseDisconnectedMsg{}
	}
}

// parseSSE reads server-sent events from r until it ends.
func parseSSE(r io.Reader, ch chan<- events.Event) {
	scanner := bufio.NewScanner(r)
	var current events.Event
	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if len(current.Data) > 0 {
				current.At = time.Now()
				ch <- current
			}
			current = events.Event{}
			continue
		}

		switch {
		case strings.HasPrefix(line, "id: "):
			if id, err := strconv.ParseInt(line[4:], 10, 64); err == nil {
				current.ID = id
			}
		case strings.HasPrefix(line, "event: "):
			current.Type = line[7:]
		case strings.HasPrefix(line, "data: "):
			current.Data = json.RawMessage(line[6:])
		}
	}
}

// receiveNextEvent waits for the next event from the channel.
func receiveNextEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ch)
	}
}

// fetchHealth queries the /healthz endpoint.
func fetchHealth(baseURL string) tea.Msg {
	var h healthMsg
	if err := getJSON(baseURL+"/healthz", &h); err != nil {
		return errMsg(err)
	}
	return h
}

// fetchStatus queries the /status/ route of the project.
func fetchStatus(baseURL, project string, periodic bool) tea.Msg {
	var s StatusSnapshot
	if err := getJSON(baseURL+"/projects/"+project+"/status/", &s); err != nil {
		return statusErrMsg{err: err, periodic: periodic}
	}
	return statusMsg{snapshot: s, periodic: periodic}
}

func getJSON(url string, v any) error {
	resp, err := httpClient.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
