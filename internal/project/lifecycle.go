package project

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mattjoyce/tilegw/internal/config"
	"github.com/mattjoyce/tilegw/internal/events"
	"github.com/mattjoyce/tilegw/internal/notify"
	"github.com/mattjoyce/tilegw/internal/pool"
	"github.com/mattjoyce/tilegw/internal/watch"
)

// Load starts loading the configuration in the background. It fails with
// ErrAlreadyLoaded unless the project is Unloaded. Use When or WaitLoaded to
// observe completion; a failure returns the project to Unloaded and is kept
// in LastError.
func (p *Project) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done, err := p.beginLoad()
	if err != nil {
		return err
	}
	go func() {
		_ = p.finishLoad(done)
	}()
	return nil
}

func (p *Project) beginLoad() (chan struct{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if p.state != StateUnloaded {
		return nil, ErrAlreadyLoaded
	}
	p.state = StateLoading
	p.loadDone = make(chan struct{})
	return p.loadDone, nil
}

// finishLoad parses the configuration and installs the first pool set.
func (p *Project) finishLoad(done chan struct{}) error {
	defer close(done)
	started := time.Now()

	cfg, err := config.LoadProject(p.root)
	if err != nil {
		p.mu.Lock()
		p.state = StateUnloaded
		p.lastErr = err
		p.loadDone = nil
		p.mu.Unlock()

		p.logger.Error("project load failed", "error", err)
		p.publish(events.ProjectLoadFailed, events.Lifecycle{
			Project:    p.root,
			DurationMS: time.Since(started).Milliseconds(),
			Error:      err.Error(),
		})
		return err
	}

	ps := p.newPoolSet(cfg)
	if err := p.install(ps); err != nil {
		p.mu.Lock()
		p.state = StateUnloaded
		p.lastErr = err
		p.loadDone = nil
		p.mu.Unlock()
		return err
	}
	p.markLoaded(nil)

	p.logger.Info("project loaded",
		"project", cfg.Name,
		"fingerprint", cfg.Fingerprint,
		"raster_generation", ps.raster.Generation(),
		"vector_generation", ps.vector.Generation(),
	)
	p.publish(events.ProjectLoaded, events.Lifecycle{
		Project:     cfg.Name,
		Fingerprint: cfg.Fingerprint,
		Raster:      ps.raster.Generation(),
		Vector:      ps.vector.Generation(),
		DurationMS:  time.Since(started).Milliseconds(),
	})

	p.startWatcher()
	return nil
}

// markLoaded moves to Loaded, records err as the last outcome and runs queued
// continuations in registration order.
func (p *Project) markLoaded(err error) {
	p.mu.Lock()
	p.state = StateLoaded
	p.lastErr = err
	p.loadDone = nil
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, c := range pending {
		c.fn()
	}
}

// When runs fn once the project is Loaded: immediately if it already is,
// otherwise on the next transition to Loaded.
func (p *Project) When(fn func()) {
	p.when(fn)
}

// when is When with a cancel func that withdraws fn if it has not run yet.
func (p *Project) when(fn func()) (cancel func()) {
	p.mu.Lock()
	if p.state == StateLoaded {
		p.mu.Unlock()
		fn()
		return func() {}
	}
	c := &continuation{fn: fn}
	p.pending = append(p.pending, c)
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, queued := range p.pending {
			if queued == c {
				p.pending = append(p.pending[:i], p.pending[i+1:]...)
				return
			}
		}
	}
}

// WaitLoaded blocks until the project is Loaded or ctx ends. A wait that
// ends with ctx leaves nothing queued.
func (p *Project) WaitLoaded(ctx context.Context) error {
	ready := make(chan struct{})
	cancel := p.when(func() { close(ready) })
	select {
	case <-ready:
		return nil
	default:
	}
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

// Reload re-reads the configuration and swaps in fresh pools. Concurrent
// calls share one reload; a caller whose ctx ends stops waiting but the
// reload still completes. Reload returns once the new pools are installed.
// The old pools drain and are disposed in the background. On failure the
// previous pools stay current.
func (p *Project) Reload(ctx context.Context) error {
	ch := p.reloads.DoChan("reload", func() (any, error) {
		return nil, p.reload()
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Project) reload() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	switch p.state {
	case StateUnloaded:
		p.state = StateLoading
		p.loadDone = make(chan struct{})
		done := p.loadDone
		p.mu.Unlock()
		return p.finishLoad(done)
	case StateLoading:
		done := p.loadDone
		p.mu.Unlock()
		if done != nil {
			<-done
		}
		return p.LastError()
	}
	p.state = StateLoading
	p.mu.Unlock()

	started := time.Now()
	old := p.current.Load()

	cfg, err := config.LoadProject(p.root)
	if err != nil {
		// Old pools are still installed; pending continuations run on them.
		p.markLoaded(err)

		p.logger.Error("project reload failed", "error", err)
		p.publish(events.ReloadFailed, events.Lifecycle{
			Project:    old.cfg.Name,
			DurationMS: time.Since(started).Milliseconds(),
			Error:      err.Error(),
		})
		return fmt.Errorf("reload project: %w", err)
	}

	ps := p.newPoolSet(cfg)
	if err := p.install(ps); err != nil {
		p.markLoaded(err)
		return err
	}
	p.markLoaded(nil)

	unchanged := cfg.Fingerprint == old.cfg.Fingerprint
	p.logger.Info("project reloaded",
		"project", cfg.Name,
		"fingerprint", cfg.Fingerprint,
		"unchanged", unchanged,
		"raster_generation", ps.raster.Generation(),
		"vector_generation", ps.vector.Generation(),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	p.publish(events.ProjectReloaded, events.Lifecycle{
		Project:     cfg.Name,
		Fingerprint: cfg.Fingerprint,
		Raster:      ps.raster.Generation(),
		Vector:      ps.vector.Generation(),
		Unchanged:   unchanged,
		DurationMS:  time.Since(started).Milliseconds(),
	})
	return nil
}

// install makes ps current and hands the set it replaces to retirement. Both
// happen under p.mu so Close either sees ps as current or install sees the
// project closed. A closed project disposes ps instead; it was never
// published, so nothing holds its handles.
func (p *Project) install(ps *poolSet) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		for _, pl := range []*HandlePool{ps.raster, ps.vector} {
			<-pl.BeginDrain()
			if err := pl.Dispose(); err != nil {
				p.logger.Warn("destroying renderer handles", "kind", pl.Kind(), "generation", pl.Generation(), "error", err)
			}
		}
		return ErrClosed
	}
	p.retire(p.current.Swap(ps))
	return nil
}

// retire drains and disposes each pool of ps in the background.
func (p *Project) retire(ps *poolSet) {
	if ps == nil {
		return
	}
	for _, pl := range []*HandlePool{ps.raster, ps.vector} {
		p.retiring.Go(func() {
			<-pl.BeginDrain()
			err := pl.Dispose()
			retired := events.Retired{
				Project:    ps.cfg.Name,
				Kind:       pl.Kind(),
				Generation: pl.Generation(),
			}
			switch {
			case errors.Is(err, pool.ErrPoolNotDrained):
				p.logger.Error("dispose before drain", "kind", pl.Kind(), "generation", pl.Generation(),
					"error", err, "lifecycle_bug", true)
				retired.Error = err.Error()
			case err != nil:
				p.logger.Warn("destroying renderer handles", "kind", pl.Kind(), "generation", pl.Generation(), "error", err)
				retired.Error = err.Error()
			default:
				p.logger.Debug("pool retired", "kind", pl.Kind(), "generation", pl.Generation())
			}
			p.publish(events.PoolRetired, retired)
		})
	}
}

// WaitRetired blocks until every pool handed to retirement is disposed.
func (p *Project) WaitRetired() {
	p.retiring.Wait()
}

// Close stops the watcher, retires the installed pools and waits for every
// draining pool to be disposed or ctx to end.
func (p *Project) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.retire(p.current.Load())
	p.mu.Unlock()

	p.watchCancel()

	done := make(chan struct{})
	go func() {
		p.WaitRetired()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for renderer pools to drain: %w", ctx.Err())
	}
}

// startWatcher starts the change feed exactly once per Project.
func (p *Project) startWatcher() {
	p.watchOnce.Do(func() {
		if p.watcher == nil {
			return
		}
		if err := p.watcher.Start(p.watchCtx, p.root, p.onChange); err != nil {
			p.logger.Warn("file watcher unavailable", "error", err)
		}
	})
}

func (p *Project) onChange(c watch.Change) {
	if watch.IsHidden(c.Name) {
		return
	}
	p.logger.Info("file changed on disk", "file", c.Name, "op", c.Op)
	queued := p.queue.Push(notify.Dirty(c.Name))
	p.publish(events.FileChanged, events.File{
		Project: p.name(),
		Name:    c.Name,
		Op:      string(c.Op),
		Queued:  queued,
	})
}
