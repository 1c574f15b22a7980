package watch

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/tilegw/internal/events"
	"github.com/mattjoyce/tilegw/internal/pool"
)

func TestParseSSE(t *testing.T) {
	stream := "id: 1\nevent: project.loaded\ndata: {\"project\":\"demo\"}\n\n" +
		": keep-alive\n\n" +
		"id: 2\nevent: file.changed\ndata: {\"name\":\"style.mss\",\"op\":\"write\",\"queued\":true}\n\n"
	ch := make(chan events.Event, 4)
	parseSSE(strings.NewReader(stream), ch)
	close(ch)

	var got []events.Event
	for e := range ch {
		got = append(got, e)
	}
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, events.ProjectLoaded, got[0].Type)
	assert.JSONEq(t, `{"project":"demo"}`, string(got[0].Data))
	assert.Equal(t, events.FileChanged, got[1].Type)
}

func TestFetchStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/projects/demo/status/" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(StatusSnapshot{
			Project: "Demo",
			State:   "loaded",
			Pools:   []pool.Stats{{Kind: "raster", Capacity: 4, Size: 2, InUse: 1, Idle: 1}},
			Pending: 3,
		})
	}))
	defer srv.Close()

	msg := fetchStatus(srv.URL, "demo", true)
	sm, ok := msg.(statusMsg)
	require.True(t, ok, "got %T", msg)
	assert.True(t, sm.periodic)
	assert.Equal(t, "Demo", sm.snapshot.Project)
	assert.Equal(t, 3, sm.snapshot.Pending)

	msg = fetchStatus(srv.URL, "other", false)
	em, ok := msg.(statusErrMsg)
	require.True(t, ok, "got %T", msg)
	assert.False(t, em.periodic)
	assert.Contains(t, em.err.Error(), "404")
}

func TestUpdateStatusFillsPoolTable(t *testing.T) {
	m := New("http://localhost", "demo")
	next, cmd := m.Update(statusMsg{snapshot: StatusSnapshot{
		Project: "Demo",
		Pools: []pool.Stats{
			{Kind: "raster", Generation: "0123456789abcdef", State: pool.StateActive, Capacity: 4, Size: 2, InUse: 2},
			{Kind: "vector", Generation: "fedcba", State: pool.StateDraining, Capacity: 16, Size: 1, Waiters: 1},
		},
	}, periodic: false})
	assert.Nil(t, cmd)

	model := next.(Model)
	rows := model.pools.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "01234567", rows[0][1])
	assert.Equal(t, "2/4", rows[0][3])
	assert.Equal(t, "draining", rows[1][2])
	assert.Equal(t, "1", rows[1][6])
}

func TestUpdateFileChangeEvent(t *testing.T) {
	m := New("http://localhost", "demo")
	data, err := json.Marshal(events.File{Project: "demo", Name: "style.mss", Op: "write", Queued: true})
	require.NoError(t, err)

	next, cmd := m.Update(eventMsg(events.Event{ID: 1, Type: events.FileChanged, At: time.Now(), Data: data}))
	assert.NotNil(t, cmd)
	model := next.(Model)
	require.Len(t, model.changes, 1)
	assert.Equal(t, "style.mss", model.changes[0].Name)
	assert.True(t, model.changes[0].Queued)
	assert.Len(t, model.eventLog, 1)
	assert.True(t, model.health.Connected)
	assert.Equal(t, 1, model.activity.Total())
}

func TestActivityWindow(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	a := NewActivity(4, start)
	assert.Equal(t, "▁▁▁▁", a.Sparkline())

	a.Record(start)
	a.Record(start.Add(500 * time.Millisecond))
	a.Record(start.Add(2 * time.Second))
	assert.Equal(t, 3, a.Total())
	assert.Equal(t, []int{0, 2, 0, 1}, a.buckets)
	assert.Equal(t, "▁█▁▅", a.Sparkline())
	assert.Equal(t, start.Add(2*time.Second), a.LastEvent())

	a.Advance(start.Add(4 * time.Second))
	assert.Equal(t, []int{0, 1, 0, 0}, a.buckets)

	a.Advance(start.Add(time.Minute))
	assert.Zero(t, a.Total())
}

func TestRecordChangeKeepsNewest(t *testing.T) {
	var changes []FileChange
	for i := 0; i < maxChanges+3; i++ {
		data, _ := json.Marshal(events.File{Name: string(rune('a' + i))})
		changes = recordChange(changes, events.Event{Type: events.FileChanged, Data: data})
	}
	require.Len(t, changes, maxChanges)
	assert.Equal(t, string(rune('a'+maxChanges+2)), changes[0].Name)

	same := recordChange(changes, events.Event{Type: events.FileChanged, Data: []byte(`{}`)})
	assert.Len(t, same, maxChanges)
}

func TestViewRendersSections(t *testing.T) {
	m := New("http://localhost", "demo")
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	next, _ = next.(Model).Update(statusMsg{snapshot: StatusSnapshot{
		Project:    "Demo",
		Generation: "aaaaaaaaaaaa/bbbbbbbbbbbb",
		Pools:      []pool.Stats{{Kind: "raster", State: pool.StateActive, Capacity: 4}},
	}})

	out := next.(Model).View()
	assert.Contains(t, out, "TILEGW WATCH")
	assert.Contains(t, out, "RENDERER POOLS")
	assert.Contains(t, out, "FILE CHANGES")
	assert.Contains(t, out, "aaaaaaaa/bbbbbbbb")
}

func TestExtractEventDesc(t *testing.T) {
	e := events.Event{Type: events.ProjectReloaded, Data: []byte(`{"project":"demo","unchanged":true,"duration_ms":12}`)}
	assert.Equal(t, "unchanged 12ms", extractEventDesc(e))

	e = events.Event{Type: events.ReloadFailed, Data: []byte(`{"project":"demo","error":"bad yaml"}`)}
	assert.Equal(t, "error: bad yaml", extractEventDesc(e))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "42s", formatDuration(42*time.Second))
	assert.Equal(t, "3m 5s", formatDuration(185*time.Second))
	assert.Equal(t, "2h 1m", formatDuration(121*time.Minute))
}
