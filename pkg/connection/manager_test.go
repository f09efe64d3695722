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

package connection_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-securekey/pkg/connection"
	"github.com/jeremyhahn/go-securekey/pkg/connection/connectiontest"
	"github.com/jeremyhahn/go-securekey/pkg/logging"
	"github.com/jeremyhahn/go-securekey/pkg/ratelimit"
)

type transition struct {
	from, to connection.State
}

type recorder struct {
	mu   sync.Mutex
	seen []transition
}

func (r *recorder) observe(from, to connection.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, transition{from, to})
}

func (r *recorder) transitions() []transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]transition{}, r.seen...)
}

func newManager(t *testing.T, c connection.Connector, opts *connection.Options) (*connection.Manager, *recorder) {
	t.Helper()
	if opts == nil {
		opts = &connection.Options{}
	}
	rec := &recorder{}
	opts.Observer = rec.observe
	opts.Logger = logging.Discard()
	if opts.Reconnect == nil {
		opts.Reconnect = ratelimit.New(nil)
	}
	m := connection.NewManager(c, opts)
	t.Cleanup(m.Teardown)
	return m, rec
}

// connect drives m to Connected with ep using a manual connector.
func connect(t *testing.T, m *connection.Manager, c *connectiontest.Connector, ep *connectiontest.Endpoint) {
	t.Helper()
	calls := c.Calls()
	go func() {
		if c.WaitForCalls(calls+1, time.Second) {
			_ = c.Complete(ep)
		}
	}()
	require.True(t, m.EnsureConnected(context.Background(), 2*time.Second))
}

func TestManager_InitialState(t *testing.T) {
	m, _ := newManager(t, connectiontest.NewConnector(), nil)

	assert.Equal(t, connection.Disconnected, m.State())
	_, err := m.Channel()
	assert.ErrorIs(t, err, connection.ErrNotConnected)
}

func TestManager_ConnectedFastPath(t *testing.T) {
	c := connectiontest.NewConnector()
	m, _ := newManager(t, c, nil)
	connect(t, m, c, connectiontest.NewEndpoint(nil))

	start := time.Now()
	assert.True(t, m.EnsureConnected(context.Background(), time.Second))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, 1, c.Calls())
}

func TestManager_ObserverSeesInitialConnect(t *testing.T) {
	c := connectiontest.NewConnector()
	m, rec := newManager(t, c, nil)
	connect(t, m, c, connectiontest.NewEndpoint(nil))

	assert.Equal(t, []transition{
		{connection.Disconnected, connection.Connecting},
		{connection.Connecting, connection.Connected},
	}, rec.transitions())
}

func TestManager_ConcurrentCallersShareOneAttempt(t *testing.T) {
	c := connectiontest.NewConnector()
	m, _ := newManager(t, c, nil)

	const callers = 10
	results := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		go func() {
			results <- m.EnsureConnected(context.Background(), 2*time.Second)
		}()
	}

	require.True(t, c.WaitForCalls(1, time.Second))
	// Give the other callers time to join before completing.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, c.Complete(connectiontest.NewEndpoint(nil)))

	for i := 0; i < callers; i++ {
		assert.True(t, <-results)
	}
	assert.Equal(t, 1, c.Calls())
	assert.Equal(t, uint64(1), m.Stats().Attempts)
}

func TestManager_TimeoutLeavesAttemptRunning(t *testing.T) {
	c := connectiontest.NewConnector()
	m, _ := newManager(t, c, nil)

	assert.False(t, m.EnsureConnected(context.Background(), 30*time.Millisecond))
	assert.Equal(t, connection.Connecting, m.State())

	// Late success is installed without a new request.
	require.NoError(t, c.Complete(connectiontest.NewEndpoint(nil)))
	assert.Equal(t, connection.Connected, m.State())

	assert.True(t, m.EnsureConnected(context.Background(), time.Second))
	assert.Equal(t, 1, c.Calls())
}

func TestManager_ContextCanceled(t *testing.T) {
	c := connectiontest.NewConnector()
	m, _ := newManager(t, c, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, m.EnsureConnected(ctx, time.Second))
	assert.Equal(t, connection.Connecting, m.State())
}

func TestManager_ConnectRequestError(t *testing.T) {
	c := connectiontest.NewConnector()
	c.SetConnectErr(errors.New("service not installed"))
	m, rec := newManager(t, c, nil)

	start := time.Now()
	assert.False(t, m.EnsureConnected(context.Background(), time.Second))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, connection.Disconnected, m.State())
	assert.Equal(t, []transition{
		{connection.Disconnected, connection.Connecting},
		{connection.Connecting, connection.Disconnected},
	}, rec.transitions())

	// Not fatal: a later attempt may succeed.
	c.SetConnectErr(nil)
	connect(t, m, c, connectiontest.NewEndpoint(nil))
}

func TestManager_DisconnectedWhileConnectingFailsAttempt(t *testing.T) {
	c := connectiontest.NewConnector()
	m, _ := newManager(t, c, nil)

	go func() {
		if c.WaitForCalls(1, time.Second) {
			_ = c.Fail(errors.New("bind refused"))
		}
	}()

	assert.False(t, m.EnsureConnected(context.Background(), 2*time.Second))
	assert.Equal(t, connection.Disconnected, m.State())

	// No automatic reconnect after a failed attempt.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, c.Calls())
}

func TestManager_DeathReconnects(t *testing.T) {
	c := connectiontest.NewConnector()
	m, rec := newManager(t, c, nil)
	ep := connectiontest.NewEndpoint(nil)
	connect(t, m, c, ep)
	require.Equal(t, 1, ep.Linked())

	ep.Kill()

	assert.Equal(t, connection.Connecting, m.State())
	assert.Equal(t, 2, c.Calls())
	assert.Equal(t, 1, ep.Unlinks())
	assert.True(t, ep.Closed())
	assert.Equal(t, uint64(1), m.Stats().Deaths)

	_, err := m.Channel()
	assert.ErrorIs(t, err, connection.ErrNotConnected)

	assert.Equal(t, []transition{
		{connection.Disconnected, connection.Connecting},
		{connection.Connecting, connection.Connected},
		{connection.Connected, connection.Disconnected},
		{connection.Disconnected, connection.Connecting},
	}, rec.transitions())

	// The reconnect completes without any caller waiting.
	ep2 := connectiontest.NewEndpoint(nil)
	require.NoError(t, c.Complete(ep2))
	assert.Equal(t, connection.Connected, m.State())
	assert.True(t, m.EnsureConnected(context.Background(), time.Second))
	assert.Equal(t, 2, c.Calls())
}

func TestManager_StaleDeathIgnored(t *testing.T) {
	c := connectiontest.NewConnector()
	m, _ := newManager(t, c, nil)
	ep1 := connectiontest.NewEndpoint(nil)
	connect(t, m, c, ep1)

	stale := ep1.DeathCallbacks()
	require.Len(t, stale, 1)

	ep1.Kill()
	ep2 := connectiontest.NewEndpoint(nil)
	require.NoError(t, c.Complete(ep2))
	require.Equal(t, connection.Connected, m.State())

	// A second notification for the old endpoint must not drop the new one.
	stale[0]()
	assert.Equal(t, connection.Connected, m.State())
	assert.False(t, ep2.Closed())
	assert.Equal(t, uint64(2), m.Stats().Generation)
	assert.Equal(t, uint64(1), m.Stats().Deaths)
}

func TestManager_DisconnectedWhileConnectedReconnects(t *testing.T) {
	c := connectiontest.NewConnector()
	m, _ := newManager(t, c, nil)
	ep := connectiontest.NewEndpoint(nil)
	connect(t, m, c, ep)

	c.Listener(0).OnDisconnected(errors.New("service crashed"))

	assert.Equal(t, connection.Connecting, m.State())
	assert.Equal(t, 2, c.Calls())
	assert.True(t, ep.Closed())
	assert.Equal(t, 1, ep.Unlinks())
}

func TestManager_AttemptExpiry(t *testing.T) {
	c := connectiontest.NewConnector()
	m, rec := newManager(t, c, &connection.Options{AttemptExpiry: 30 * time.Millisecond})

	assert.False(t, m.EnsureConnected(context.Background(), 5*time.Millisecond))
	assert.Eventually(t, func() bool {
		return m.State() == connection.Disconnected
	}, time.Second, 5*time.Millisecond)

	// The next caller starts afresh.
	assert.False(t, m.EnsureConnected(context.Background(), 5*time.Millisecond))
	assert.Equal(t, 2, c.Calls())

	trs := rec.transitions()
	require.GreaterOrEqual(t, len(trs), 3)
	assert.Equal(t, transition{connection.Connecting, connection.Disconnected}, trs[1])
}

func TestManager_LateSuccessAfterExpiryAccepted(t *testing.T) {
	c := connectiontest.NewConnector()
	m, _ := newManager(t, c, &connection.Options{AttemptExpiry: 20 * time.Millisecond})

	assert.False(t, m.EnsureConnected(context.Background(), 5*time.Millisecond))
	require.Eventually(t, func() bool {
		return m.State() == connection.Disconnected
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Complete(connectiontest.NewEndpoint(nil)))
	assert.Equal(t, connection.Connected, m.State())
	assert.True(t, m.EnsureConnected(context.Background(), time.Second))
}

func TestManager_SurplusEndpointClosed(t *testing.T) {
	c := connectiontest.NewConnector()
	m, _ := newManager(t, c, nil)
	ep1 := connectiontest.NewEndpoint(nil)
	connect(t, m, c, ep1)

	ep2 := connectiontest.NewEndpoint(nil)
	c.Listener(0).OnConnected(ep2)

	assert.True(t, ep2.Closed())
	assert.Zero(t, ep2.Linked())
	assert.False(t, ep1.Closed())
	assert.Equal(t, uint64(1), m.Stats().Generation)
}

func TestManager_LinkFailureTreatedAsDeath(t *testing.T) {
	c := connectiontest.NewConnector()
	m, _ := newManager(t, c, nil)

	ep := connectiontest.NewEndpoint(nil)
	ep.Kill()

	go func() {
		if c.WaitForCalls(1, time.Second) {
			_ = c.Complete(ep)
		}
	}()

	assert.False(t, m.EnsureConnected(context.Background(), 2*time.Second))
	assert.Eventually(t, ep.Closed, time.Second, 5*time.Millisecond)
	assert.Equal(t, connection.Connecting, m.State())
	assert.Eventually(t, func() bool { return c.Calls() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), m.Stats().Deaths)
}

func TestManager_ThrottledReconnect(t *testing.T) {
	var mu sync.Mutex
	var endpoints []*connectiontest.Endpoint
	c := connectiontest.AutoConnector(func() *connectiontest.Endpoint {
		mu.Lock()
		defer mu.Unlock()
		ep := connectiontest.NewEndpoint(nil)
		endpoints = append(endpoints, ep)
		return ep
	})
	latest := func() *connectiontest.Endpoint {
		mu.Lock()
		defer mu.Unlock()
		return endpoints[len(endpoints)-1]
	}
	m, _ := newManager(t, c, &connection.Options{
		Reconnect: ratelimit.New(&ratelimit.Config{Enabled: true, PerMinute: 60, Burst: 1}),
	})

	require.True(t, m.EnsureConnected(context.Background(), time.Second))

	// First death uses the burst token and reconnects at once.
	first := latest()
	first.Kill()
	require.Eventually(t, func() bool {
		return m.State() == connection.Connected
	}, time.Second, 5*time.Millisecond)

	// Second death is delayed by the throttle.
	second := latest()
	require.NotSame(t, first, second)
	second.Kill()
	assert.Equal(t, connection.Disconnected, m.State())
	assert.Equal(t, 2, c.Calls())

	assert.Eventually(t, func() bool {
		return m.State() == connection.Connected
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, 3, c.Calls())
}

func TestManager_Teardown(t *testing.T) {
	c := connectiontest.NewConnector()
	m, _ := newManager(t, c, nil)
	ep := connectiontest.NewEndpoint(nil)
	connect(t, m, c, ep)

	m.Teardown()

	assert.Equal(t, connection.Disconnected, m.State())
	assert.True(t, ep.Closed())
	assert.Equal(t, 1, ep.Unlinks())
	assert.Equal(t, 1, c.Disconnects())
	assert.True(t, m.Stats().Closed)

	assert.False(t, m.EnsureConnected(context.Background(), 10*time.Millisecond))
	_, err := m.Channel()
	assert.ErrorIs(t, err, connection.ErrClosed)

	// Late notifications after teardown only release their endpoint.
	late := connectiontest.NewEndpoint(nil)
	c.Listener(0).OnConnected(late)
	assert.True(t, late.Closed())
	assert.Equal(t, connection.Disconnected, m.State())

	// Idempotent.
	m.Teardown()
	assert.Equal(t, 1, c.Disconnects())
}

func TestManager_TeardownReleasesWaiters(t *testing.T) {
	c := connectiontest.NewConnector()
	m, _ := newManager(t, c, nil)

	done := make(chan bool, 1)
	go func() {
		done <- m.EnsureConnected(context.Background(), 5*time.Second)
	}()
	require.True(t, c.WaitForCalls(1, time.Second))

	m.Teardown()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("waiter not released by teardown")
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "disconnected", connection.Disconnected.String())
	assert.Equal(t, "connecting", connection.Connecting.String())
	assert.Equal(t, "connected", connection.Connected.String())
	assert.Equal(t, "unknown", connection.State(7).String())
}

func TestState_MarshalText(t *testing.T) {
	text, err := connection.Connecting.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "connecting", string(text))
}
