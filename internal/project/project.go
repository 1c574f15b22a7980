// Package project owns the lifecycle of one served map project: loading its
// configuration, building renderer pools, hot reload with pool retirement, and
// the change feed clients poll for.
//
// The pools in use are published through an atomic pointer to an immutable
// pool set. Reload installs a new set before draining the old one, so a
// request that starts after Reload returns never sees a retiring pool.
package project

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/mattjoyce/tilegw/internal/config"
	"github.com/mattjoyce/tilegw/internal/events"
	"github.com/mattjoyce/tilegw/internal/log"
	"github.com/mattjoyce/tilegw/internal/notify"
	"github.com/mattjoyce/tilegw/internal/pool"
	"github.com/mattjoyce/tilegw/internal/render"
	"github.com/mattjoyce/tilegw/internal/watch"
)

var (
	// ErrAlreadyLoaded is returned by Load when the project is not Unloaded.
	ErrAlreadyLoaded = errors.New("project already loaded or loading")
	// ErrNotLoaded is returned when no pools have been installed yet.
	ErrNotLoaded = errors.New("project not loaded")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("project closed")
)

// State is the project load state.
type State string

const (
	StateUnloaded State = "unloaded"
	StateLoading  State = "loading"
	StateLoaded   State = "loaded"
)

// Default pool capacities. Vector renders are cheaper, so more run at once.
const (
	DefaultRasterPoolSize = 4
	DefaultVectorPoolSize = 16
)

// HandlePool is a pool of renderer handles.
type HandlePool = pool.Pool[*render.Handle]

// continuation is a queued When callback. It is compared by pointer so a
// waiter can withdraw its own entry.
type continuation struct {
	fn func()
}

// poolSet is immutable once published.
type poolSet struct {
	cfg    *config.Project
	raster *HandlePool
	vector *HandlePool
}

func (ps *poolSet) get(kind render.Kind) *HandlePool {
	if kind == render.KindVector {
		return ps.vector
	}
	return ps.raster
}

// Option configures a Project.
type Option func(*Project)

// WithRenderer sets the renderer used to build handles.
func WithRenderer(r render.Renderer) Option {
	return func(p *Project) { p.renderer = r }
}

// WithPoolSizes sets raster and vector pool capacities.
func WithPoolSizes(raster, vector int) Option {
	return func(p *Project) {
		if raster > 0 {
			p.rasterSize = raster
		}
		if vector > 0 {
			p.vectorSize = vector
		}
	}
}

// WithWatcher sets the filesystem change source. A nil source disables watching.
func WithWatcher(src watch.Source) Option {
	return func(p *Project) { p.watcher = src }
}

// WithEvents publishes lifecycle events to hub.
func WithEvents(hub *events.Hub) Option {
	return func(p *Project) { p.events = hub }
}

// WithURL sets the canonical URL path the project is served under.
func WithURL(path string) Option {
	return func(p *Project) { p.url = path }
}

// WithLogger overrides the project logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Project) { p.logger = l }
}

// Project is one served project. It is created once and lives for the
// process lifetime.
type Project struct {
	root       string
	renderer   render.Renderer
	rasterSize int
	vectorSize int
	watcher    watch.Source
	events     *events.Hub
	url        string
	logger     *slog.Logger
	queue      *notify.Queue[notify.Message]

	current atomic.Pointer[poolSet]
	reloads singleflight.Group

	mu       sync.Mutex
	state    State
	lastErr  error
	pending  []*continuation
	loadDone chan struct{}
	closed   bool

	watchOnce   sync.Once
	watchCtx    context.Context
	watchCancel context.CancelFunc

	retiring sync.WaitGroup
}

// New returns an Unloaded project rooted at root.
func New(root string, opts ...Option) *Project {
	p := &Project{
		root:       root,
		renderer:   render.NewDebug(),
		rasterSize: DefaultRasterPoolSize,
		vectorSize: DefaultVectorPoolSize,
		watcher:    watch.NewFS(),
		url:        "/",
		queue:      notify.NewQueue[notify.Message](),
		state:      StateUnloaded,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = log.WithComponent("project").With("root", root)
	}
	p.watchCtx, p.watchCancel = context.WithCancel(context.Background())
	return p
}

// Root returns the project directory.
func (p *Project) Root() string { return p.root }

// URL returns the canonical URL path of the project, ending in "/".
func (p *Project) URL() string { return p.url }

// Notifications returns the change queue drained by client polls.
func (p *Project) Notifications() *notify.Queue[notify.Message] { return p.queue }

// State returns the current load state.
func (p *Project) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// LastError returns the error of the most recent failed load or reload, or nil
// if the latest attempt succeeded.
func (p *Project) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Config returns the configuration of the installed pools, or nil before the
// first successful load.
func (p *Project) Config() *config.Project {
	if ps := p.current.Load(); ps != nil {
		return ps.cfg
	}
	return nil
}

// Generations reports the generation of the installed raster and vector pools.
func (p *Project) Generations() (raster, vector string) {
	ps := p.current.Load()
	if ps == nil {
		return "", ""
	}
	return ps.raster.Generation(), ps.vector.Generation()
}

// Generation returns a combined identifier of the installed pools.
func (p *Project) Generation() string {
	r, v := p.Generations()
	if r == "" {
		return ""
	}
	return r + "/" + v
}

// PoolStats returns stats of the installed pools, raster first.
func (p *Project) PoolStats() []pool.Stats {
	ps := p.current.Load()
	if ps == nil {
		return nil
	}
	return []pool.Stats{ps.raster.Stats(), ps.vector.Stats()}
}

func (p *Project) newPoolSet(cfg *config.Project) *poolSet {
	return &poolSet{
		cfg:    cfg,
		raster: pool.New(string(render.KindRaster), p.rasterSize, p.factory(cfg, render.KindRaster)),
		vector: pool.New(string(render.KindVector), p.vectorSize, p.factory(cfg, render.KindVector)),
	}
}

// factory binds handle creation to one configuration, so a handle always
// belongs to the pool built for the config it was created from.
func (p *Project) factory(cfg *config.Project, kind render.Kind) pool.Factory[*render.Handle] {
	return pool.FactoryFuncs[*render.Handle]{
		CreateFunc: func(ctx context.Context) (*render.Handle, error) {
			return p.renderer.NewHandle(ctx, cfg, kind)
		},
		DestroyFunc: p.renderer.CloseHandle,
	}
}

func (p *Project) publish(eventType string, data any) {
	if p.events != nil {
		p.events.Publish(eventType, data)
	}
}

func (p *Project) name() string {
	if cfg := p.Config(); cfg != nil {
		return cfg.Name
	}
	return p.root
}
