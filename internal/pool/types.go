package pool

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrPoolUnavailable is returned by Acquire on a pool that no longer serves requests.
	ErrPoolUnavailable = errors.New("renderer pool unavailable")
	// ErrPoolDraining is returned by Acquire once BeginDrain has been called.
	ErrPoolDraining = fmt.Errorf("%w: pool is draining", ErrPoolUnavailable)
	// ErrInvalidHandle is returned by Release for a handle this pool did not lend out.
	ErrInvalidHandle = errors.New("handle does not belong to this pool")
	// ErrPoolNotDrained is returned by Dispose before drain completion.
	ErrPoolNotDrained = errors.New("pool has not been drained")
)

// State is the pool lifecycle state.
type State string

const (
	StateActive   State = "active"
	StateDraining State = "draining"
	StateDisposed State = "disposed"
)

// Factory builds and destroys handles for one pool generation.
type Factory[H comparable] interface {
	Create(ctx context.Context) (H, error)
	Destroy(h H) error
}

// FactoryFuncs adapts a pair of functions to Factory.
type FactoryFuncs[H comparable] struct {
	CreateFunc  func(ctx context.Context) (H, error)
	DestroyFunc func(h H) error
}

func (f FactoryFuncs[H]) Create(ctx context.Context) (H, error) {
	return f.CreateFunc(ctx)
}

func (f FactoryFuncs[H]) Destroy(h H) error {
	if f.DestroyFunc == nil {
		return nil
	}
	return f.DestroyFunc(h)
}

// Stats is a point-in-time view of a pool.
type Stats struct {
	Kind       string `json:"kind"`
	Generation string `json:"generation"`
	State      State  `json:"state"`
	Capacity   int    `json:"capacity"`
	Size       int    `json:"size"`
	InUse      int    `json:"in_use"`
	Idle       int    `json:"idle"`
	Waiters    int    `json:"waiters"`
}
