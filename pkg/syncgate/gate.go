// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-securekey.
//
// go-securekey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package syncgate turns an operation whose completion is reported
// asynchronously into a blocking call with a bounded wait.
//
// A Gate hands out one-shot Latches. The first caller to arm the gate owns
// the attempt and runs its start action; every caller that arms the gate
// while that latch is still pending joins the same attempt. Signal fires the
// pending latch exactly once and forgets it, so a signal belonging to an old
// attempt can never release a waiter of a newer one.
package syncgate

import (
	"context"
	"sync"
	"time"
)

// Outcome is the result of waiting on a latch.
type Outcome int

const (
	// Signaled means the latch fired within the wait window.
	Signaled Outcome = iota
	// TimedOut means the wait window elapsed first.
	TimedOut
	// Canceled means the caller's context ended first.
	Canceled
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case Signaled:
		return "signaled"
	case TimedOut:
		return "timed_out"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Latch is a one-shot signal. It can be waited on by any number of
// goroutines and fired any number of times; only the first Fire counts.
type Latch struct {
	done chan struct{}
	once sync.Once
}

// NewLatch returns an unfired latch.
func NewLatch() *Latch {
	return &Latch{done: make(chan struct{})}
}

// Fire releases all current and future waiters. Safe to call repeatedly
// and from any goroutine.
func (l *Latch) Fire() {
	l.once.Do(func() {
		close(l.done)
	})
}

// Fired reports whether Fire has been called.
func (l *Latch) Fired() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed when the latch fires.
func (l *Latch) Done() <-chan struct{} {
	return l.done
}

// Wait blocks until the latch fires, the timeout elapses or ctx ends,
// whichever comes first. A latch that already fired returns Signaled
// without blocking. A non-positive timeout only polls.
func (l *Latch) Wait(ctx context.Context, timeout time.Duration) Outcome {
	if ctx == nil {
		ctx = context.Background()
	}

	// Already fired: the event arrived before we started waiting.
	if l.Fired() {
		return Signaled
	}
	if timeout <= 0 {
		return TimedOut
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-l.done:
		return Signaled
	case <-timer.C:
		return TimedOut
	case <-ctx.Done():
		return Canceled
	}
}

// RunAndWait runs start (if non-nil) on the calling goroutine and then
// waits on the latch. start must not block waiting for the event itself.
func (l *Latch) RunAndWait(ctx context.Context, timeout time.Duration, start func()) Outcome {
	if start != nil {
		start()
	}
	return l.Wait(ctx, timeout)
}

// Gate tracks the pending latch for the current attempt.
type Gate struct {
	mu      sync.Mutex
	pending *Latch
}

// Arm returns the pending latch, creating a fresh one when none is pending.
// owner is true when this call created the latch; that caller is
// responsible for starting the attempt.
func (g *Gate) Arm() (latch *Latch, owner bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pending != nil {
		return g.pending, false
	}
	g.pending = NewLatch()
	return g.pending, true
}

// Pending returns the latch of the outstanding attempt, or nil.
func (g *Gate) Pending() *Latch {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending
}

// Signal fires and clears the pending latch. With nothing pending it is a
// no-op, which makes a signal that arrives after every waiter gave up
// harmless. It reports whether a latch was fired.
func (g *Gate) Signal() bool {
	g.mu.Lock()
	l := g.pending
	g.pending = nil
	g.mu.Unlock()

	if l == nil {
		return false
	}
	l.Fire()
	return true
}

// RunAndWait arms the gate, runs start only when this caller owns the new
// attempt, then waits for the signal, the timeout or ctx.
func (g *Gate) RunAndWait(ctx context.Context, timeout time.Duration, start func()) Outcome {
	latch, owner := g.Arm()
	if !owner {
		start = nil
	}
	return latch.RunAndWait(ctx, timeout, start)
}
