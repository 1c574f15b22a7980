// Package metrics exposes tilegw Prometheus metrics on a private registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mattjoyce/tilegw/internal/pool"
)

const namespace = "tilegw"

// Metrics holds the registry and the instruments updated by request handlers.
type Metrics struct {
	registry *prometheus.Registry

	tiles       *prometheus.CounterVec
	tileSeconds *prometheus.HistogramVec
	acquireWait *prometheus.HistogramVec
	reloads     *prometheus.CounterVec
	exports     *prometheus.CounterVec
	polls       *prometheus.CounterVec
}

// New builds a registry with Go and process collectors plus tilegw instruments.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		tiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tiles_total",
			Help:      "Tile requests by kind and HTTP status.",
		}, []string{"kind", "status"}),
		tileSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tile_render_seconds",
			Help:      "Time spent rendering and encoding a tile.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"kind"}),
		acquireWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pool_acquire_wait_seconds",
			Help:      "Time spent waiting for a renderer handle.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 9),
		}, []string{"kind"}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reloads_total",
			Help:      "Project reloads by result.",
		}, []string{"result"}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Export requests by result.",
		}, []string{"result"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Client polls by whether notifications were returned.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.tiles, m.tileSeconds, m.acquireWait, m.reloads, m.exports, m.polls)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveTile records one finished tile request.
func (m *Metrics) ObserveTile(kind string, status int, render time.Duration) {
	m.tiles.WithLabelValues(kind, statusClass(status)).Inc()
	if status < 400 {
		m.tileSeconds.WithLabelValues(kind).Observe(render.Seconds())
	}
}

// ObserveAcquire records how long a handle acquisition waited.
func (m *Metrics) ObserveAcquire(kind string, wait time.Duration) {
	m.acquireWait.WithLabelValues(kind).Observe(wait.Seconds())
}

// ObserveReload records a reload outcome.
func (m *Metrics) ObserveReload(err error) {
	m.reloads.WithLabelValues(result(err)).Inc()
}

// ObserveExport records an export outcome.
func (m *Metrics) ObserveExport(err error) {
	m.exports.WithLabelValues(result(err)).Inc()
}

// ObservePoll records a poll. dirty is true when notifications were returned.
func (m *Metrics) ObservePoll(dirty bool) {
	if dirty {
		m.polls.WithLabelValues("dirty").Inc()
		return
	}
	m.polls.WithLabelValues("not_modified").Inc()
}

// WatchPools registers gauges read from stats and pending at scrape time.
func (m *Metrics) WatchPools(project string, stats func() []pool.Stats, pending func() int) error {
	return m.registry.Register(&poolCollector{project: project, stats: stats, pending: pending})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

var (
	poolCapacityDesc = prometheus.NewDesc(namespace+"_pool_capacity", "Maximum handles per pool.", []string{"project", "kind"}, nil)
	poolSizeDesc     = prometheus.NewDesc(namespace+"_pool_handles", "Handles created by the current pool.", []string{"project", "kind"}, nil)
	poolInUseDesc    = prometheus.NewDesc(namespace+"_pool_in_use", "Handles checked out of the current pool.", []string{"project", "kind"}, nil)
	poolWaitersDesc  = prometheus.NewDesc(namespace+"_pool_waiters", "Requests blocked waiting for a handle.", []string{"project", "kind"}, nil)
	pendingDesc      = prometheus.NewDesc(namespace+"_notifications_pending", "Change notifications waiting for a poll.", []string{"project"}, nil)
)

type poolCollector struct {
	project string
	stats   func() []pool.Stats
	pending func() int
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- poolCapacityDesc
	ch <- poolSizeDesc
	ch <- poolInUseDesc
	ch <- poolWaitersDesc
	ch <- pendingDesc
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.stats() {
		ch <- prometheus.MustNewConstMetric(poolCapacityDesc, prometheus.GaugeValue, float64(s.Capacity), c.project, s.Kind)
		ch <- prometheus.MustNewConstMetric(poolSizeDesc, prometheus.GaugeValue, float64(s.Size), c.project, s.Kind)
		ch <- prometheus.MustNewConstMetric(poolInUseDesc, prometheus.GaugeValue, float64(s.InUse), c.project, s.Kind)
		ch <- prometheus.MustNewConstMetric(poolWaitersDesc, prometheus.GaugeValue, float64(s.Waiters), c.project, s.Kind)
	}
	ch <- prometheus.MustNewConstMetric(pendingDesc, prometheus.GaugeValue, float64(c.pending()), c.project)
}
