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

// Package connectiontest provides in-memory Connector and Endpoint
// implementations for exercising connection.Manager and its users.
package connectiontest

import (
	"errors"
	"sync"
	"time"

	"github.com/jeremyhahn/go-securekey/pkg/connection"
	"github.com/jeremyhahn/go-securekey/pkg/remote"
)

// Endpoint is a controllable connection.Endpoint.
type Endpoint struct {
	ch remote.Channel

	mu        sync.Mutex
	dead      bool
	closed    int
	nextID    int
	links     map[int]func()
	history   []func()
	unlinks   int
	linkError error
}

// NewEndpoint returns a live endpoint serving ch.
func NewEndpoint(ch remote.Channel) *Endpoint {
	return &Endpoint{
		ch:    ch,
		links: make(map[int]func()),
	}
}

// Channel implements connection.Endpoint.
func (e *Endpoint) Channel() remote.Channel {
	return e.ch
}

// LinkToDeath implements connection.Endpoint.
func (e *Endpoint) LinkToDeath(fn func()) (func(), error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.linkError != nil {
		return nil, e.linkError
	}
	if e.dead {
		return nil, connection.ErrEndpointDead
	}
	id := e.nextID
	e.nextID++
	e.links[id] = fn
	e.history = append(e.history, fn)

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			delete(e.links, id)
			e.unlinks++
		})
	}, nil
}

// Close implements connection.Endpoint.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed++
	return nil
}

// FailLink makes every following LinkToDeath return err.
func (e *Endpoint) FailLink(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.linkError = err
}

// Kill marks the endpoint dead and runs every linked callback on the
// calling goroutine.
func (e *Endpoint) Kill() {
	e.mu.Lock()
	e.dead = true
	fns := make([]func(), 0, len(e.links))
	for id, fn := range e.links {
		fns = append(fns, fn)
		delete(e.links, id)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// DeathCallbacks returns every callback ever linked, including unlinked
// ones, so tests can replay stale notifications.
func (e *Endpoint) DeathCallbacks() []func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]func(){}, e.history...)
}

// Linked returns the number of active death registrations.
func (e *Endpoint) Linked() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.links)
}

// Unlinks returns how many registrations were cancelled.
func (e *Endpoint) Unlinks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.unlinks
}

// Closed reports whether Close was called at least once.
func (e *Endpoint) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed > 0
}

// Connector is a controllable connection.Connector. By default it only
// records requests; the test completes or fails them explicitly. With
// OnConnect set, each request is handed to that function on a new goroutine.
type Connector struct {
	// OnConnect, when set, answers each request asynchronously.
	OnConnect func(l connection.Listener)

	// ConnectErr, when set, is returned by Connect.
	ConnectErr error

	mu          sync.Mutex
	listeners   []connection.Listener
	disconnects int
	calls       chan struct{}
}

// NewConnector returns a connector in manual mode.
func NewConnector() *Connector {
	return &Connector{calls: make(chan struct{}, 1024)}
}

// AutoConnector returns a connector that answers every request with a
// fresh endpoint from newEndpoint.
func AutoConnector(newEndpoint func() *Endpoint) *Connector {
	c := NewConnector()
	c.OnConnect = func(l connection.Listener) {
		l.OnConnected(newEndpoint())
	}
	return c
}

// Connect implements connection.Connector.
func (c *Connector) Connect(l connection.Listener) error {
	c.mu.Lock()
	err := c.ConnectErr
	if err == nil {
		c.listeners = append(c.listeners, l)
	}
	onConnect := c.OnConnect
	c.mu.Unlock()

	if err != nil {
		return err
	}
	select {
	case c.calls <- struct{}{}:
	default:
	}
	if onConnect != nil {
		go onConnect(l)
	}
	return nil
}

// Disconnect implements connection.Connector.
func (c *Connector) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
}

// SetConnectErr changes the error returned by Connect.
func (c *Connector) SetConnectErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ConnectErr = err
}

// Calls returns the number of accepted connect requests.
func (c *Connector) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners)
}

// Disconnects returns the number of Disconnect calls.
func (c *Connector) Disconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

// Listener returns the listener of request i (zero based).
func (c *Connector) Listener(i int) connection.Listener {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.listeners) {
		return nil
	}
	return c.listeners[i]
}

// Complete delivers ep to the most recent request.
func (c *Connector) Complete(ep connection.Endpoint) error {
	l := c.Listener(c.Calls() - 1)
	if l == nil {
		return errors.New("connectiontest: no pending request")
	}
	l.OnConnected(ep)
	return nil
}

// Fail reports err to the most recent request.
func (c *Connector) Fail(err error) error {
	l := c.Listener(c.Calls() - 1)
	if l == nil {
		return errors.New("connectiontest: no pending request")
	}
	l.OnDisconnected(err)
	return nil
}

// WaitForCalls blocks until at least n requests were accepted or timeout
// elapses, and reports whether n was reached.
func (c *Connector) WaitForCalls(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if c.Calls() >= n {
			return true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		select {
		case <-c.calls:
		case <-time.After(minDuration(remaining, 10*time.Millisecond)):
		}
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
