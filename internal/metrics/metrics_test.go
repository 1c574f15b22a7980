package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/tilegw/internal/pool"
)

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveTile("raster", 200, 10*time.Millisecond)
	m.ObserveTile("raster", 500, 0)
	m.ObserveTile("vector", 200, time.Millisecond)
	m.ObserveReload(nil)
	m.ObserveReload(errors.New("bad"))
	m.ObserveExport(nil)
	m.ObservePoll(true)
	m.ObservePoll(false)
	m.ObservePoll(false)

	body := scrape(t, m)
	assert.Contains(t, body, `tilegw_tiles_total{kind="raster",status="2xx"} 1`)
	assert.Contains(t, body, `tilegw_tiles_total{kind="raster",status="5xx"} 1`)
	assert.Contains(t, body, `tilegw_reloads_total{result="error"} 1`)
	assert.Contains(t, body, `tilegw_exports_total{result="ok"} 1`)
	assert.Contains(t, body, `tilegw_polls_total{result="not_modified"} 2`)
	assert.Contains(t, body, `tilegw_tile_render_seconds_count{kind="raster"} 1`)
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestPoolCollector(t *testing.T) {
	m := New()
	stats := []pool.Stats{
		{Kind: "raster", Capacity: 4, Size: 2, InUse: 1},
		{Kind: "vector", Capacity: 16, Size: 3, InUse: 3, Waiters: 2},
	}
	require.NoError(t, m.WatchPools("demo", func() []pool.Stats { return stats }, func() int { return 5 }))

	body := scrape(t, m)
	assert.Contains(t, body, `tilegw_pool_capacity{kind="vector",project="demo"} 16`)
	assert.Contains(t, body, `tilegw_pool_waiters{kind="vector",project="demo"} 2`)
	assert.Contains(t, body, `tilegw_notifications_pending{project="demo"} 5`)
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
