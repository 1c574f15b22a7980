package project

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/tilegw/internal/config"
	"github.com/mattjoyce/tilegw/internal/events"
	"github.com/mattjoyce/tilegw/internal/pool"
	"github.com/mattjoyce/tilegw/internal/render"
	"github.com/mattjoyce/tilegw/internal/watch"
)

const projectYAML = "name: demo\ntile_size: 256\n"

func writeProject(t *testing.T, root, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(root, config.ProjectFile), []byte(body), 0o644))
}

// fakeSource records Start calls and lets tests inject changes.
type fakeSource struct {
	mu     sync.Mutex
	starts int
	fn     func(watch.Change)
}

func (f *fakeSource) Start(ctx context.Context, root string, fn func(watch.Change)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	f.fn = fn
	return nil
}

func (f *fakeSource) emit(c watch.Change) {
	f.mu.Lock()
	fn := f.fn
	f.mu.Unlock()
	fn(c)
}

func (f *fakeSource) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func loadedProject(t *testing.T, opts ...Option) (*Project, *render.Debug) {
	t.Helper()
	root := t.TempDir()
	writeProject(t, root, projectYAML)

	r := render.NewDebug()
	opts = append([]Option{WithRenderer(r), WithWatcher(nil)}, opts...)
	p := New(root, opts...)
	require.NoError(t, p.Load(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.WaitLoaded(ctx))
	return p, r
}

func TestLoadRunsContinuationsInOrder(t *testing.T) {
	root := t.TempDir()
	writeProject(t, root, projectYAML)
	p := New(root, WithWatcher(nil))
	assert.Equal(t, StateUnloaded, p.State())
	assert.Nil(t, p.Config())

	var mu sync.Mutex
	var order []int
	done := make(chan struct{})
	for i := range 3 {
		p.When(func() {
			mu.Lock()
			order = append(order, i)
			n := len(order)
			mu.Unlock()
			if n == 3 {
				close(done)
			}
		})
	}

	require.NoError(t, p.Load(context.Background()))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("continuations did not run")
	}

	assert.Equal(t, []int{0, 1, 2}, order)
	assert.Equal(t, StateLoaded, p.State())
	assert.Equal(t, "demo", p.Config().Name)
	assert.NotEmpty(t, p.Generation())

	// Registered after load: runs immediately.
	ran := false
	p.When(func() { ran = true })
	assert.True(t, ran)

	assert.ErrorIs(t, p.Load(context.Background()), ErrAlreadyLoaded)
}

func TestLoadFailureKeepsContinuationsQueued(t *testing.T) {
	root := t.TempDir()
	p := New(root, WithWatcher(nil))

	ran := make(chan struct{})
	p.When(func() { close(ran) })

	require.NoError(t, p.Load(context.Background()))
	require.Eventually(t, func() bool {
		return p.State() == StateUnloaded && p.LastError() != nil
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, errors.Is(p.LastError(), config.ErrNoProject))

	select {
	case <-ran:
		t.Fatal("continuation ran after failed load")
	default:
	}

	// Reload while Unloaded performs a full load.
	writeProject(t, root, projectYAML)
	require.NoError(t, p.Reload(context.Background()))
	assert.Equal(t, StateLoaded, p.State())
	assert.NoError(t, p.LastError())
	<-ran
}

func TestWaitLoadedHonoursContext(t *testing.T) {
	p := New(t.TempDir(), WithWatcher(nil))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.WaitLoaded(ctx), context.DeadlineExceeded)
}

func TestTimedOutWaitsLeaveNothingQueued(t *testing.T) {
	root := t.TempDir()
	p := New(root, WithWatcher(nil))

	ran := make(chan struct{})
	p.When(func() { close(ran) })

	require.NoError(t, p.Load(context.Background()))
	require.Eventually(t, func() bool {
		return p.State() == StateUnloaded && p.LastError() != nil
	}, 2*time.Second, 5*time.Millisecond)

	for range 1000 {
		ctx, cancel := context.WithTimeout(context.Background(), time.Microsecond)
		assert.Error(t, p.WaitLoaded(ctx))
		cancel()
	}
	p.mu.Lock()
	queued := len(p.pending)
	p.mu.Unlock()
	assert.Equal(t, 1, queued, "only the When continuation should remain")

	writeProject(t, root, projectYAML)
	require.NoError(t, p.Reload(context.Background()))
	<-ran

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Empty(t, p.pending)
}

func TestWaitLoadedAfterLoadReturnsImmediately(t *testing.T) {
	p, _ := loadedProject(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, p.WaitLoaded(ctx))
}

func TestInstallAfterCloseDisposesFreshPools(t *testing.T) {
	p, _ := loadedProject(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	before := p.current.Load()
	require.NoError(t, p.Close(ctx))

	fresh := p.newPoolSet(p.Config())
	assert.ErrorIs(t, p.install(fresh), ErrClosed)
	assert.Same(t, before, p.current.Load())
	assert.Equal(t, pool.StateDisposed, fresh.raster.State())
	assert.Equal(t, pool.StateDisposed, fresh.vector.State())

	p.WaitRetired()
	assert.Equal(t, pool.StateDisposed, before.raster.State())
	assert.Equal(t, pool.StateDisposed, before.vector.State())
}

func TestReloadDrainsOldPoolsAfterInFlightRenders(t *testing.T) {
	hub := events.NewHub(50)
	p, r := loadedProject(t, WithPoolSizes(2, 2), WithEvents(hub))
	ctx := context.Background()

	first, err := p.Acquire(ctx, render.KindRaster)
	require.NoError(t, err)
	second, err := p.Acquire(ctx, render.KindRaster)
	require.NoError(t, err)
	oldGen := first.Generation()
	oldPool := first.pool

	require.NoError(t, p.Reload(ctx))
	rasterGen, _ := p.Generations()
	assert.NotEqual(t, oldGen, rasterGen)

	// Arrives mid-drain and is served by the new pool.
	third, err := p.Acquire(ctx, render.KindRaster)
	require.NoError(t, err)
	assert.Equal(t, rasterGen, third.Generation())

	require.Eventually(t, func() bool { return oldPool.State() == pool.StateDraining }, time.Second, time.Millisecond)

	retired := make(chan struct{})
	go func() {
		p.WaitRetired()
		close(retired)
	}()
	select {
	case <-retired:
		t.Fatal("old pools retired while renders were in flight")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, first.Release())
	require.NoError(t, second.Release())
	select {
	case <-retired:
	case <-time.After(2 * time.Second):
		t.Fatal("old pools never retired")
	}

	assert.Equal(t, pool.StateDisposed, oldPool.State())
	assert.Equal(t, int64(2), r.Closed())
	assert.Equal(t, pool.StateActive, third.pool.State())
	require.NoError(t, third.Release())

	var types []string
	for _, ev := range hub.Since(0) {
		types = append(types, ev.Type)
	}
	assert.Contains(t, types, events.ProjectLoaded)
	assert.Contains(t, types, events.ProjectReloaded)
	assert.Contains(t, types, events.PoolRetired)
}

func TestAcquireWaitingOnRetiredPoolIsRedirected(t *testing.T) {
	p, _ := loadedProject(t, WithPoolSizes(1, 1))
	ctx := context.Background()

	held, err := p.Acquire(ctx, render.KindRaster)
	require.NoError(t, err)

	type result struct {
		lease *Lease
		err   error
	}
	out := make(chan result, 1)
	go func() {
		l, err := p.Acquire(ctx, render.KindRaster)
		out <- result{l, err}
	}()
	require.Eventually(t, func() bool { return p.PoolStats()[0].Waiters == 1 }, time.Second, time.Millisecond)

	require.NoError(t, p.Reload(ctx))
	newGen, _ := p.Generations()

	res := <-out
	require.NoError(t, res.err)
	assert.Equal(t, newGen, res.lease.Generation())

	require.NoError(t, res.lease.Release())
	require.NoError(t, held.Release())
	p.WaitRetired()
}

func TestReloadFailureKeepsCurrentPools(t *testing.T) {
	p, _ := loadedProject(t)
	gen := p.Generation()

	writeProject(t, p.Root(), "tile_size: 300\n")
	err := p.Reload(context.Background())
	require.Error(t, err)

	assert.Equal(t, gen, p.Generation())
	assert.Equal(t, StateLoaded, p.State())
	assert.Error(t, p.LastError())
	assert.Equal(t, "demo", p.Config().Name)
}

func TestConcurrentReloadsAllSucceed(t *testing.T) {
	p, _ := loadedProject(t)
	gen := p.Generation()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Go(func() {
			errs <- p.Reload(context.Background())
		})
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.NotEqual(t, gen, p.Generation())
	p.WaitRetired()
}

func TestWatcherStartsOnceAndQueuesChanges(t *testing.T) {
	root := t.TempDir()
	writeProject(t, root, projectYAML)
	src := &fakeSource{}
	p := New(root, WithWatcher(src))

	require.NoError(t, p.Load(context.Background()))
	require.NoError(t, p.WaitLoaded(context.Background()))
	require.Eventually(t, func() bool { return src.startCount() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, p.Reload(context.Background()))
	require.NoError(t, p.Reload(context.Background()))
	assert.Equal(t, 1, src.startCount())

	src.emit(watch.Change{Op: watch.OpWrite, Name: "style.mss"})
	src.emit(watch.Change{Op: watch.OpWrite, Name: "style.mss"})
	src.emit(watch.Change{Op: watch.OpCreate, Name: ".style.mss.swp"})
	src.emit(watch.Change{Op: watch.OpWrite, Name: "project.yaml"})

	msgs := p.Notifications().Drain()
	require.Len(t, msgs, 2)
	assert.Equal(t, "style.mss", msgs[0].File)
	assert.True(t, msgs[0].IsDirty)
	assert.Equal(t, "project.yaml", msgs[1].File)
	assert.Empty(t, p.Notifications().Drain())
}

func TestLeaseReleaseIsIdempotent(t *testing.T) {
	p, _ := loadedProject(t)
	l, err := p.Acquire(context.Background(), render.KindVector)
	require.NoError(t, err)
	assert.Equal(t, render.KindVector, l.Handle.Kind)

	require.NoError(t, l.Release())
	require.NoError(t, l.Release())
	assert.Equal(t, 0, p.PoolStats()[1].InUse)
	assert.Equal(t, 1, p.PoolStats()[1].Idle)
}

func TestAcquireBeforeLoad(t *testing.T) {
	p := New(t.TempDir(), WithWatcher(nil))
	_, err := p.Acquire(context.Background(), render.KindRaster)
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestCloseRetiresPools(t *testing.T) {
	p, r := loadedProject(t)
	l, err := p.Acquire(context.Background(), render.KindRaster)
	require.NoError(t, err)
	require.NoError(t, l.Release())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.Close(ctx))
	assert.Equal(t, int64(1), r.Closed())

	_, err = p.Acquire(context.Background(), render.KindRaster)
	assert.ErrorIs(t, err, pool.ErrPoolUnavailable)
	assert.ErrorIs(t, p.Reload(context.Background()), ErrClosed)
	assert.NoError(t, p.Close(ctx))
}

func TestFrontAndExport(t *testing.T) {
	hub := events.NewHub(10)
	p, _ := loadedProject(t, WithURL("/projects/demo/"), WithEvents(hub))

	front, err := p.Front()
	require.NoError(t, err)
	assert.Equal(t, "demo", front.Name)
	assert.Equal(t, "/projects/demo/tile/{z}/{x}/{y}.png", front.Tiles)
	assert.Equal(t, "/projects/demo/tile/{z}/{x}/{y}.json", front.Vector)
	assert.Equal(t, p.Generation(), front.Generation)

	res, err := p.Export(context.Background(), render.ExportOptions{Format: "png", Width: 8, Height: 8})
	require.NoError(t, err)
	assert.Equal(t, "image/png", res.ContentType)
	assert.Equal(t, 0, p.PoolStats()[0].InUse)

	_, err = p.Export(context.Background(), render.ExportOptions{Format: "tiff"})
	assert.ErrorIs(t, err, render.ErrUnsupportedFormat)

	last := hub.Since(0)
	var ev events.Export
	require.NoError(t, last[len(last)-1].Decode(&ev))
	assert.Equal(t, events.ExportCompleted, last[len(last)-1].Type)
	assert.NotEmpty(t, ev.Error)
}
