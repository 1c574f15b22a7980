package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// grant is what a blocked acquirer receives. Exactly one field is meaningful:
// a handed-over handle, a reserved creation slot, or a terminal error.
type grant[H comparable] struct {
	handle H
	ok     bool
	create bool
	err    error
}

type waiter[H comparable] struct {
	ch chan grant[H]
}

// Pool is one generation of renderer handles.
type Pool[H comparable] struct {
	kind       string
	generation string
	capacity   int
	factory    Factory[H]

	mu       sync.Mutex
	state    State
	idle     []H
	out      map[H]struct{}
	owned    map[H]struct{}
	creating int
	waiters  []*waiter[H]

	drained     chan struct{}
	drainClosed bool
}

// New creates an Active pool. Capacity below 1 is treated as 1.
func New[H comparable](kind string, capacity int, factory Factory[H]) *Pool[H] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Pool[H]{
		kind:       kind,
		generation: uuid.NewString(),
		capacity:   capacity,
		factory:    factory,
		state:      StateActive,
		out:        make(map[H]struct{}),
		owned:      make(map[H]struct{}),
		drained:    make(chan struct{}),
	}
}

// Kind returns the label given at construction (e.g. "raster").
func (p *Pool[H]) Kind() string { return p.kind }

// Generation returns the unique ID of this pool instance.
func (p *Pool[H]) Generation() string { return p.generation }

// Capacity returns the maximum number of handles.
func (p *Pool[H]) Capacity() int { return p.capacity }

// State returns the current lifecycle state.
func (p *Pool[H]) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Acquire checks out a handle, creating one lazily while under capacity and
// blocking otherwise. It returns ctx.Err() if ctx ends while waiting.
func (p *Pool[H]) Acquire(ctx context.Context) (H, error) {
	var zero H

	p.mu.Lock()
	switch p.state {
	case StateDraining:
		p.mu.Unlock()
		return zero, ErrPoolDraining
	case StateDisposed:
		p.mu.Unlock()
		return zero, ErrPoolUnavailable
	}

	if len(p.waiters) == 0 {
		if n := len(p.idle); n > 0 {
			h := p.idle[n-1]
			p.idle = p.idle[:n-1]
			p.out[h] = struct{}{}
			p.mu.Unlock()
			return h, nil
		}
		if len(p.owned)+p.creating < p.capacity {
			p.creating++
			p.mu.Unlock()
			return p.create(ctx)
		}
	}

	w := &waiter[H]{ch: make(chan grant[H], 1)}
	p.waiters = append(p.waiters, w)
	p.mu.Unlock()

	select {
	case g := <-w.ch:
		return p.take(ctx, g)
	case <-ctx.Done():
		p.mu.Lock()
		if p.removeWaiterLocked(w) {
			p.mu.Unlock()
			return zero, ctx.Err()
		}
		p.mu.Unlock()
		// Lost the race with a grant; hand it back.
		p.abandon(<-w.ch)
		return zero, ctx.Err()
	}
}

func (p *Pool[H]) take(ctx context.Context, g grant[H]) (H, error) {
	var zero H
	switch {
	case g.err != nil:
		return zero, g.err
	case g.ok:
		return g.handle, nil
	default:
		return p.create(ctx)
	}
}

// create runs the factory for a slot already reserved in p.creating.
func (p *Pool[H]) create(ctx context.Context) (H, error) {
	var zero H
	h, err := p.factory.Create(ctx)

	p.mu.Lock()
	p.creating--
	if err != nil {
		p.grantSlotLocked()
		p.mu.Unlock()
		return zero, fmt.Errorf("create %s handle: %w", p.kind, err)
	}
	if p.state != StateActive {
		state := p.state
		p.mu.Unlock()
		_ = p.factory.Destroy(h)
		if state == StateDraining {
			return zero, ErrPoolDraining
		}
		return zero, ErrPoolUnavailable
	}
	p.owned[h] = struct{}{}
	p.out[h] = struct{}{}
	p.mu.Unlock()
	return h, nil
}

func (p *Pool[H]) abandon(g grant[H]) {
	switch {
	case g.err != nil:
	case g.ok:
		_ = p.Release(g.handle)
	case g.create:
		p.mu.Lock()
		p.creating--
		p.grantSlotLocked()
		p.mu.Unlock()
	}
}

// grantSlotLocked passes a free creation slot to the oldest waiter.
func (p *Pool[H]) grantSlotLocked() {
	if p.state != StateActive || len(p.waiters) == 0 {
		return
	}
	if len(p.owned)+p.creating >= p.capacity {
		return
	}
	w := p.popWaiterLocked()
	p.creating++
	w.ch <- grant[H]{create: true}
}

func (p *Pool[H]) popWaiterLocked() *waiter[H] {
	w := p.waiters[0]
	p.waiters[0] = nil
	p.waiters = p.waiters[1:]
	return w
}

func (p *Pool[H]) removeWaiterLocked(target *waiter[H]) bool {
	for i, w := range p.waiters {
		if w == target {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// Release returns a checked-out handle. It is valid while Active or Draining.
func (p *Pool[H]) Release(h H) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.out[h]; !ok {
		return fmt.Errorf("%w (%s pool %s)", ErrInvalidHandle, p.kind, p.generation)
	}
	delete(p.out, h)

	if p.state == StateActive && len(p.waiters) > 0 {
		w := p.popWaiterLocked()
		p.out[h] = struct{}{}
		w.ch <- grant[H]{handle: h, ok: true}
		return nil
	}

	p.idle = append(p.idle, h)
	if p.state == StateDraining && len(p.out) == 0 {
		p.closeDrainedLocked()
	}
	return nil
}

// BeginDrain stops the pool from lending handles. Blocked acquirers fail with
// ErrPoolDraining. The returned channel closes once every handle checked out
// at this moment has been released.
func (p *Pool[H]) BeginDrain() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateActive {
		return p.drained
	}
	p.state = StateDraining
	for _, w := range p.waiters {
		w.ch <- grant[H]{err: ErrPoolDraining}
	}
	p.waiters = nil
	if len(p.out) == 0 {
		p.closeDrainedLocked()
	}
	return p.drained
}

func (p *Pool[H]) closeDrainedLocked() {
	if p.drainClosed {
		return
	}
	p.drainClosed = true
	close(p.drained)
}

// Dispose destroys every idle handle. It fails with ErrPoolNotDrained unless
// the pool is Draining with nothing checked out.
func (p *Pool[H]) Dispose() error {
	p.mu.Lock()
	switch p.state {
	case StateDisposed:
		p.mu.Unlock()
		return nil
	case StateActive:
		p.mu.Unlock()
		return fmt.Errorf("%w: %s pool %s is still active", ErrPoolNotDrained, p.kind, p.generation)
	}
	if n := len(p.out); n > 0 {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s pool %s has %d handles checked out", ErrPoolNotDrained, p.kind, p.generation, n)
	}

	idle := p.idle
	p.idle = nil
	for _, h := range idle {
		delete(p.owned, h)
	}
	p.state = StateDisposed
	p.mu.Unlock()

	var errs []error
	for _, h := range idle {
		if err := p.factory.Destroy(h); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats returns a snapshot of pool occupancy.
func (p *Pool[H]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Kind:       p.kind,
		Generation: p.generation,
		State:      p.state,
		Capacity:   p.capacity,
		Size:       len(p.owned),
		InUse:      len(p.out),
		Idle:       len(p.idle),
		Waiters:    len(p.waiters),
	}
}
