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

// Package connection owns the lifecycle of the binding to the secure key
// service.
//
// A Manager turns the asynchronous platform connect request into a bounded
// blocking call, keeps at most one attempt outstanding, watches the live
// endpoint for death and reconnects on its own after the service dies.
//
// State machine:
//
//	Disconnected --EnsureConnected/reconnect--> Connecting
//	Connecting   --OnConnected--------------->  Connected
//	Connecting   --OnDisconnected/expiry----->  Disconnected
//	Connected    --death/OnDisconnected------>  Disconnected --> Connecting
//	any          --Teardown------------------>  Disconnected (closed)
package connection

import (
	"context"
	"sync"
	"time"

	"github.com/jeremyhahn/go-securekey/pkg/logging"
	"github.com/jeremyhahn/go-securekey/pkg/metrics"
	"github.com/jeremyhahn/go-securekey/pkg/ratelimit"
	"github.com/jeremyhahn/go-securekey/pkg/remote"
	"github.com/jeremyhahn/go-securekey/pkg/syncgate"
)

// DefaultAttemptExpiry is how long an attempt may stay unanswered before
// the manager gives up on it.
const DefaultAttemptExpiry = 30 * time.Second

// Options configures a Manager. The zero value is usable.
type Options struct {
	// Name identifies the endpoint in logs and reconnect throttling.
	Name string

	// AttemptExpiry abandons an unanswered attempt. Defaults to
	// DefaultAttemptExpiry.
	AttemptExpiry time.Duration

	// Reconnect throttles automatic reconnects. Defaults to
	// ratelimit.DefaultConfig.
	Reconnect *ratelimit.Limiter

	// Observer is told about every state transition, in order. It runs
	// with the manager lock held and must not call back into the manager.
	Observer func(from, to State)

	Logger *logging.Logger
}

type handle struct {
	ep      Endpoint
	gen     uint64
	attempt uint64
	unlink  func()
}

// Manager implements the connection state machine. All methods are safe for
// concurrent use.
type Manager struct {
	connector Connector
	name      string
	expiry    time.Duration
	limiter   *ratelimit.Limiter
	observer  func(from, to State)
	logger    *logging.Logger

	mu             sync.Mutex
	state          State
	h              *handle
	gate           syncgate.Gate
	closed         bool
	attemptID      uint64
	attemptTimer   *time.Timer
	reconnectTimer *time.Timer
	generation     uint64
	attempts       uint64
	deaths         uint64
}

// NewManager creates a disconnected manager for connector.
func NewManager(connector Connector, opts *Options) *Manager {
	if opts == nil {
		opts = &Options{}
	}
	expiry := opts.AttemptExpiry
	if expiry <= 0 {
		expiry = DefaultAttemptExpiry
	}
	limiter := opts.Reconnect
	if limiter == nil {
		limiter = ratelimit.New(ratelimit.DefaultConfig())
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	name := opts.Name
	if name == "" {
		name = "securekey"
	}
	return &Manager{
		connector: connector,
		name:      name,
		expiry:    expiry,
		limiter:   limiter,
		observer:  opts.Observer,
		logger:    logger.With("component", "connection", "endpoint", name),
		state:     Disconnected,
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stats returns a snapshot of the manager counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		State:      m.state,
		Attempts:   m.attempts,
		Deaths:     m.deaths,
		Generation: m.generation,
		Closed:     m.closed,
	}
}

// Channel returns the channel of the installed endpoint. The result must be
// used for a single call and not cached.
func (m *Manager) Channel() (remote.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if m.h == nil {
		return nil, ErrNotConnected
	}
	return m.h.ep.Channel(), nil
}

// EnsureConnected returns true once the manager is Connected, waiting at
// most timeout (or until ctx ends) for an outstanding or newly started
// attempt. A timeout leaves the attempt running.
func (m *Manager) EnsureConnected(ctx context.Context, timeout time.Duration) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}

	var start func()
	switch m.state {
	case Connected:
		m.mu.Unlock()
		return true
	case Disconnected:
		att := m.beginAttemptLocked()
		start = func() { m.connect(att, metrics.TriggerCaller) }
	}
	latch, _ := m.gate.Arm()
	m.mu.Unlock()

	outcome := latch.RunAndWait(ctx, timeout, start)
	metrics.RecordConnectWait(outcome.String())

	if outcome != syncgate.Signaled {
		m.logger.Debug("connect wait ended", "outcome", outcome.String(), "timeout", timeout)
		return false
	}
	return m.State() == Connected
}

// Teardown releases the endpoint and the platform binding. The manager
// cannot be reused afterwards.
func (m *Manager) Teardown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.stopTimersLocked()
	ep := m.dropHandleLocked()
	m.transitionLocked(Disconnected)
	m.gate.Signal()
	m.mu.Unlock()

	if ep != nil {
		m.closeEndpoint(ep)
	}
	m.connector.Disconnect()
	m.limiter.Reset(m.name)
	m.logger.Info("connection torn down")
}

// beginAttemptLocked moves to Connecting and arms a fresh attempt.
func (m *Manager) beginAttemptLocked() uint64 {
	m.transitionLocked(Connecting)
	m.attemptID++
	m.attempts++
	id := m.attemptID

	if m.attemptTimer != nil {
		m.attemptTimer.Stop()
	}
	m.attemptTimer = time.AfterFunc(m.expiry, func() { m.expire(id) })
	m.gate.Arm()
	return id
}

// connect issues the platform request for attempt id. It runs without the
// lock held.
func (m *Manager) connect(id uint64, trigger string) {
	metrics.RecordConnectAttempt(trigger)
	m.logger.Debug("requesting connection", "attempt", id, "trigger", trigger)

	if err := m.connector.Connect(&attemptListener{m: m, id: id}); err != nil {
		m.logger.Warnf("connect request failed: %v", err)
		m.fail(id, err)
	}
}

func (m *Manager) expire(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.state != Connecting || m.attemptID != id {
		return
	}
	m.logger.Warn("connect attempt expired", "attempt", id, "after", m.expiry)
	m.attemptTimer = nil
	m.transitionLocked(Disconnected)
	m.gate.Signal()
}

// fail ends attempt id without a connection. No reconnect is scheduled; the
// next caller starts over.
func (m *Manager) fail(id uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.state != Connecting || m.attemptID != id {
		return
	}
	if m.attemptTimer != nil {
		m.attemptTimer.Stop()
		m.attemptTimer = nil
	}
	m.logger.Warn("connect attempt failed", "attempt", id, "error", err)
	m.transitionLocked(Disconnected)
	m.gate.Signal()
}

func (m *Manager) onConnected(id uint64, ep Endpoint) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.logger.Debug("closing endpoint delivered after teardown", "attempt", id)
		m.closeEndpoint(ep)
		return
	}
	if m.state == Connected {
		m.mu.Unlock()
		m.logger.Debug("closing surplus endpoint", "attempt", id)
		m.closeEndpoint(ep)
		return
	}

	if m.attemptTimer != nil {
		m.attemptTimer.Stop()
		m.attemptTimer = nil
	}

	m.generation++
	gen := m.generation
	unlink, err := ep.LinkToDeath(func() { m.onDeath(gen) })
	if err != nil {
		// Died before it could be watched.
		m.logger.Warnf("endpoint died before install: %v", err)
		m.deaths++
		metrics.RecordEndpointDeath()
		m.transitionLocked(Disconnected)
		m.gate.Signal()
		start := m.scheduleReconnectLocked()
		m.mu.Unlock()
		m.closeEndpoint(ep)
		if start != nil {
			start()
		}
		return
	}

	m.h = &handle{ep: ep, gen: gen, attempt: id, unlink: unlink}
	m.transitionLocked(Connected)
	m.gate.Signal()
	m.mu.Unlock()

	m.logger.Info("connected", "attempt", id, "generation", gen)
}

func (m *Manager) onDisconnected(id uint64, err error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	switch m.state {
	case Connecting:
		m.mu.Unlock()
		m.fail(id, err)
		return
	case Connected:
		if m.h == nil || m.h.attempt != id {
			m.mu.Unlock()
			return
		}
		m.logger.Warn("service disconnected", "generation", m.h.gen, "error", err)
		m.lose()
		return
	}
	m.mu.Unlock()
}

func (m *Manager) onDeath(gen uint64) {
	m.mu.Lock()
	if m.closed || m.h == nil || m.h.gen != gen {
		m.mu.Unlock()
		return
	}
	m.logger.Warn("endpoint died", "generation", gen)
	m.lose()
}

// lose discards the installed handle and schedules a reconnect. It is
// entered with the lock held and returns with it released.
func (m *Manager) lose() {
	m.deaths++
	metrics.RecordEndpointDeath()

	ep := m.dropHandleLocked()
	m.transitionLocked(Disconnected)
	start := m.scheduleReconnectLocked()
	m.mu.Unlock()

	if ep != nil {
		m.closeEndpoint(ep)
	}
	if start != nil {
		start()
	}
}

// scheduleReconnectLocked arranges a reconnect. When the throttle allows an
// immediate attempt it returns the start action for the caller to run after
// releasing the lock.
func (m *Manager) scheduleReconnectLocked() func() {
	delay := m.limiter.Delay(m.name)
	if delay > 0 {
		m.logger.Info("reconnect throttled", "delay", delay)
		if m.reconnectTimer != nil {
			m.reconnectTimer.Stop()
		}
		m.reconnectTimer = time.AfterFunc(delay, m.reconnect)
		return nil
	}
	id := m.beginAttemptLocked()
	return func() { m.connect(id, metrics.TriggerReconnect) }
}

func (m *Manager) reconnect() {
	m.mu.Lock()
	m.reconnectTimer = nil
	if m.closed || m.state != Disconnected {
		m.mu.Unlock()
		return
	}
	id := m.beginAttemptLocked()
	m.mu.Unlock()
	m.connect(id, metrics.TriggerReconnect)
}

// dropHandleLocked unlinks and clears the handle, returning the endpoint
// for the caller to close once the lock is released.
func (m *Manager) dropHandleLocked() Endpoint {
	if m.h == nil {
		return nil
	}
	h := m.h
	m.h = nil
	if h.unlink != nil {
		h.unlink()
	}
	return h.ep
}

func (m *Manager) stopTimersLocked() {
	if m.attemptTimer != nil {
		m.attemptTimer.Stop()
		m.attemptTimer = nil
	}
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

func (m *Manager) transitionLocked(to State) {
	from := m.state
	if from == to {
		return
	}
	m.state = to
	metrics.RecordTransition(from.String(), to.String(), int(to))
	if m.observer != nil {
		m.observer(from, to)
	}
}

func (m *Manager) closeEndpoint(ep Endpoint) {
	if err := ep.Close(); err != nil {
		m.logger.Debug("endpoint close failed", "error", err)
	}
}

// attemptListener tags platform notifications with the attempt that
// requested them.
type attemptListener struct {
	m  *Manager
	id uint64
}

func (l *attemptListener) OnConnected(ep Endpoint) {
	l.m.onConnected(l.id, ep)
}

func (l *attemptListener) OnDisconnected(err error) {
	l.m.onDisconnected(l.id, err)
}
