package project

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mattjoyce/tilegw/internal/config"
	"github.com/mattjoyce/tilegw/internal/pool"
	"github.com/mattjoyce/tilegw/internal/render"
)

// maxRedirects bounds how often Acquire follows a pool swap.
const maxRedirects = 3

// Lease is a checked-out renderer handle bound to the pool it came from.
type Lease struct {
	Handle *render.Handle
	// Config is the configuration the handle was built for.
	Config *config.Project
	// Wait is how long Acquire blocked.
	Wait time.Duration

	pool   *HandlePool
	logger *slog.Logger
	once   sync.Once
	err    error
}

// Generation returns the generation of the pool the lease belongs to.
func (l *Lease) Generation() string { return l.pool.Generation() }

// Release returns the handle to its originating pool. Only the first call
// has an effect.
func (l *Lease) Release() error {
	l.once.Do(func() {
		l.err = l.pool.Release(l.Handle)
		if errors.Is(l.err, pool.ErrInvalidHandle) {
			l.logger.Error("release of foreign handle", "kind", l.pool.Kind(),
				"generation", l.pool.Generation(), "error", l.err, "lifecycle_bug", true)
		}
	})
	return l.err
}

// Acquire checks out a handle of kind from the installed pools. The pool set
// is read once per attempt; if that pool is retired while the caller waits,
// the wait continues on the pool that replaced it.
func (p *Project) Acquire(ctx context.Context, kind render.Kind) (*Lease, error) {
	started := time.Now()
	for attempt := 0; ; attempt++ {
		ps := p.current.Load()
		if ps == nil {
			return nil, ErrNotLoaded
		}
		pl := ps.get(kind)

		h, err := pl.Acquire(ctx)
		if err == nil {
			return &Lease{
				Handle: h,
				Config: ps.cfg,
				Wait:   time.Since(started),
				pool:   pl,
				logger: p.logger,
			}, nil
		}
		if errors.Is(err, pool.ErrPoolDraining) && attempt < maxRedirects && p.current.Load() != ps {
			p.logger.Debug("acquire redirected to new pool", "kind", kind, "from", pl.Generation())
			continue
		}
		return nil, err
	}
}
