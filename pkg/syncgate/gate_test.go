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

package syncgate

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatch_FireBeforeWait(t *testing.T) {
	l := NewLatch()
	l.Fire()

	start := time.Now()
	assert.Equal(t, Signaled, l.Wait(context.Background(), time.Second))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLatch_FireIsIdempotent(t *testing.T) {
	l := NewLatch()
	assert.False(t, l.Fired())
	l.Fire()
	l.Fire()
	assert.True(t, l.Fired())
}

func TestLatch_WaitTimesOut(t *testing.T) {
	l := NewLatch()

	start := time.Now()
	outcome := l.Wait(context.Background(), 50*time.Millisecond)
	elapsed := time.Since(start)

	assert.Equal(t, TimedOut, outcome)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestLatch_WaitZeroTimeoutPolls(t *testing.T) {
	l := NewLatch()
	assert.Equal(t, TimedOut, l.Wait(context.Background(), 0))
	l.Fire()
	assert.Equal(t, Signaled, l.Wait(context.Background(), 0))
}

func TestLatch_WaitCanceled(t *testing.T) {
	l := NewLatch()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, Canceled, l.Wait(ctx, time.Second))
}

func TestLatch_WaitNilContext(t *testing.T) {
	l := NewLatch()
	go func() {
		time.Sleep(10 * time.Millisecond)
		l.Fire()
	}()
	//nolint:staticcheck // nil context is tolerated
	assert.Equal(t, Signaled, l.Wait(nil, time.Second))
}

func TestGate_RunAndWaitSignaledFromStart(t *testing.T) {
	var g Gate

	outcome := g.RunAndWait(context.Background(), time.Second, func() {
		// Signal asynchronously, as a platform callback would.
		go g.Signal()
	})

	assert.Equal(t, Signaled, outcome)
	assert.Nil(t, g.Pending())
}

func TestGate_SignalWithoutPendingIsNoop(t *testing.T) {
	var g Gate
	assert.False(t, g.Signal())
}

func TestGate_LateSignalAfterTimeoutIsHarmless(t *testing.T) {
	var g Gate

	outcome := g.RunAndWait(context.Background(), 20*time.Millisecond, func() {})
	require.Equal(t, TimedOut, outcome)

	// The attempt is still pending; the late signal fires it.
	assert.True(t, g.Signal())
	// And a second late signal is a no-op.
	assert.False(t, g.Signal())
}

func TestGate_StaleSignalDoesNotSatisfyNewAttempt(t *testing.T) {
	var g Gate

	first, owner := g.Arm()
	require.True(t, owner)
	g.Signal()
	require.True(t, first.Fired())

	second, owner := g.Arm()
	require.True(t, owner)
	assert.NotSame(t, first, second)
	assert.Equal(t, TimedOut, second.Wait(context.Background(), 20*time.Millisecond))
}

func TestGate_JoinersShareOneAttempt(t *testing.T) {
	var g Gate
	var starts atomic.Int32

	const callers = 16
	latches := make([]*Latch, callers)
	owners := 0
	for i := range latches {
		l, owner := g.Arm()
		if owner {
			owners++
			starts.Add(1)
		}
		latches[i] = l
	}
	require.Equal(t, 1, owners)

	var done sync.WaitGroup
	done.Add(callers)
	outcomes := make([]Outcome, callers)
	for i, l := range latches {
		go func(i int, l *Latch) {
			defer done.Done()
			outcomes[i] = l.Wait(context.Background(), 2*time.Second)
		}(i, l)
	}

	g.Signal()
	done.Wait()

	assert.Equal(t, int32(1), starts.Load())
	for _, o := range outcomes {
		assert.Equal(t, Signaled, o)
	}
}

func TestOutcome_String(t *testing.T) {
	tests := []struct {
		outcome Outcome
		want    string
	}{
		{Signaled, "signaled"},
		{TimedOut, "timed_out"},
		{Canceled, "canceled"},
		{Outcome(99), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.outcome.String())
		})
	}
}
