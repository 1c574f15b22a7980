// Package pool implements a bounded pool of expensive renderer handles.
//
// A Pool is one generation of handles bound to one project configuration.
// Its lifecycle is:
//
//	Active   -> serves Acquire, creates handles lazily up to capacity
//	Draining -> rejects Acquire with ErrPoolDraining, still accepts Release
//	Disposed -> every idle handle destroyed, Acquire fails with ErrPoolUnavailable
//
// A reload installs a new Pool before calling BeginDrain on the old one, so
// requests that captured the old pool release into it while new requests never
// see it. Drain waits only for handles checked out when BeginDrain was called;
// no new checkouts are possible afterwards.
//
// Blocked acquirers are queued FIFO and a released handle is handed directly to
// the oldest waiter, so a burst of new acquirers cannot starve an old one.
//
// Error classes:
//   - ErrPoolUnavailable, ErrPoolDraining: per-request, the caller may retry
//     against the current pool.
//   - ErrInvalidHandle, ErrPoolNotDrained: lifecycle bugs, callers should log
//     them loudly.
package pool
