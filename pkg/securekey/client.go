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

// Package securekey is the public API for secure key operations served by
// an out-of-process secure key service.
//
// A Client hides that the service is reached through an asynchronous,
// fallible connection. Every operation checks capability, waits a bounded
// time for a connection, issues one or two remote calls and maps the result
// into an *Error with a Kind and the operation's failure code.
//
// Example:
//
//	client := securekey.New(&securekey.Config{Slot: 0})
//	if !client.Init(ctx, transport.NewConnector(cfg)) {
//	    log.Println("service not reachable yet; operations will retry")
//	}
//	defer client.Teardown()
//
//	if err := client.GenerateGlobalKey(ctx); err != nil {
//	    if errors.Is(err, securekey.ErrUnavailable) { ... }
//	}
package securekey

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jeremyhahn/go-securekey/pkg/connection"
	"github.com/jeremyhahn/go-securekey/pkg/correlation"
	"github.com/jeremyhahn/go-securekey/pkg/health"
	"github.com/jeremyhahn/go-securekey/pkg/logging"
	"github.com/jeremyhahn/go-securekey/pkg/metrics"
	"github.com/jeremyhahn/go-securekey/pkg/remote"
)

// Client is safe for concurrent use.
type Client struct {
	cfg    Config
	logger *logging.Logger

	mu        sync.RWMutex
	manager   *connection.Manager
	proxy     *remote.Proxy
	incapable error

	checker *health.Checker
}

// New creates an uninitialised client. Operations fail with
// KindConfiguration until Init is called.
func New(cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	c := &Client{
		cfg:     *cfg,
		logger:  logger.With("component", "securekey", "slot", cfg.Slot),
		checker: health.NewChecker(),
	}
	c.checker.RegisterCheck("capability", c.checkCapability)
	c.checker.RegisterCheck("connection", c.checkConnection)
	c.checker.RegisterCheck("service", c.checkService)
	return c
}

// Init binds the client to connector and waits up to the configured timeout
// for the first connection. It reports whether the client is connected; a
// false result is not fatal, since later operations join or restart the
// attempt. Calling Init again replaces the previous binding.
func (c *Client) Init(ctx context.Context, connector connection.Connector) bool {
	if connector == nil {
		c.logger.Warn("init called without a connector")
		return false
	}

	m := connection.NewManager(connector, &connection.Options{
		Name:          fmt.Sprintf("slot-%d", c.cfg.Slot),
		AttemptExpiry: c.cfg.AttemptExpiry,
		Reconnect:     c.cfg.Reconnect,
		Observer:      c.cfg.Observer,
		Logger:        c.logger,
	})
	p := remote.NewProxy(m, c.logger)

	c.mu.Lock()
	old := c.manager
	c.manager = m
	c.proxy = p
	c.mu.Unlock()

	if old != nil {
		old.Teardown()
	}

	if err := c.capability(); err != nil {
		c.logger.Warnf("init: %v", err)
		return false
	}
	ok := m.EnsureConnected(ctx, c.cfg.timeout())
	c.logger.Info("initialized", "connected", ok)
	return ok
}

// Teardown releases the connection. The client returns to the
// uninitialised state.
func (c *Client) Teardown() {
	c.mu.Lock()
	m := c.manager
	c.manager = nil
	c.proxy = nil
	c.mu.Unlock()

	if m != nil {
		m.Teardown()
	}
}

// MarkIncapable latches an irrecoverable platform fault. Every following
// operation fails fast with KindCapability.
func (c *Client) MarkIncapable(reason error) {
	if reason == nil {
		reason = errors.New("marked incapable")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.incapable == nil {
		c.incapable = reason
		c.logger.Warnf("platform marked incapable: %v", reason)
	}
}

// Capable reports whether operations may be attempted at all.
func (c *Client) Capable() bool {
	return c.capability() == nil
}

// State returns the connection state. An uninitialised client is
// Disconnected.
func (c *Client) State() connection.State {
	c.mu.RLock()
	m := c.manager
	c.mu.RUnlock()
	if m == nil {
		return connection.Disconnected
	}
	return m.State()
}

// Stats returns the connection counters, or zero stats before Init.
func (c *Client) Stats() connection.Stats {
	c.mu.RLock()
	m := c.manager
	c.mu.RUnlock()
	if m == nil {
		return connection.Stats{}
	}
	return m.Stats()
}

func (c *Client) capability() error {
	c.mu.RLock()
	latched := c.incapable
	c.mu.RUnlock()
	if latched != nil {
		return fmt.Errorf("%w: %v", ErrIncapable, latched)
	}
	if c.cfg.CapabilityProbe != nil {
		if err := c.cfg.CapabilityProbe(); err != nil {
			return fmt.Errorf("%w: %v", ErrIncapable, err)
		}
	}
	return nil
}

// prepare runs the shared preamble of every operation: correlation,
// capability, configuration and connection. code is the failure code
// reported when the preamble fails.
func (c *Client) prepare(ctx context.Context, op string, code remote.ResultCode) (context.Context, *remote.Proxy, *Error) {
	ctx, id := correlation.Ensure(ctx)
	c.logger.Debug("operation", "op", op, correlation.LogField, id)

	if err := c.capability(); err != nil {
		return ctx, nil, newError(op, KindCapability, code, err)
	}

	c.mu.RLock()
	m, p := c.manager, c.proxy
	c.mu.RUnlock()
	if m == nil {
		return ctx, nil, newError(op, KindConfiguration, code, ErrNotInitialized)
	}

	if !m.EnsureConnected(ctx, c.cfg.timeout()) {
		return ctx, nil, newError(op, KindConnection, code, ErrNotConnected)
	}
	return ctx, p, nil
}

// finish records metrics and logs a failed operation.
func (c *Client) finish(ctx context.Context, op string, start time.Time, err error) {
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
		var e *Error
		if errors.As(err, &e) && e.Kind.unavailable() {
			status = metrics.StatusUnavailable
		}
		c.logger.Warn("operation failed",
			"op", op,
			"error", err,
			correlation.LogField, correlation.GetCorrelationID(ctx))
	}
	metrics.RecordOperation(op, status, time.Since(start).Seconds())
}
