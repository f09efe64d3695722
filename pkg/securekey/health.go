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

package securekey

import (
	"context"
	"fmt"

	"github.com/jeremyhahn/go-securekey/pkg/connection"
	"github.com/jeremyhahn/go-securekey/pkg/health"
)

// Check runs the client health checks: capability, connection state and,
// when connected, a version round trip. It never starts a connection.
func (c *Client) Check(ctx context.Context) health.Report {
	return c.checker.Run(ctx)
}

func (c *Client) checkCapability(context.Context) health.CheckResult {
	if err := c.capability(); err != nil {
		return health.Unhealthy("capability", err)
	}
	return health.Healthy("capability", "platform capable")
}

func (c *Client) checkConnection(context.Context) health.CheckResult {
	c.mu.RLock()
	m := c.manager
	c.mu.RUnlock()
	if m == nil {
		return health.Unhealthy("connection", ErrNotInitialized)
	}

	stats := m.Stats()
	msg := fmt.Sprintf("%s (attempts %d, deaths %d)", stats.State, stats.Attempts, stats.Deaths)
	switch stats.State {
	case connection.Connected:
		return health.Healthy("connection", msg)
	case connection.Connecting:
		return health.CheckResult{Name: "connection", Status: health.StatusDegraded, Message: msg}
	default:
		r := health.Unhealthy("connection", ErrNotConnected)
		r.Message = msg
		return r
	}
}

func (c *Client) checkService(ctx context.Context) health.CheckResult {
	c.mu.RLock()
	m, p := c.manager, c.proxy
	c.mu.RUnlock()
	if m == nil || m.State() != connection.Connected {
		return health.CheckResult{
			Name:    "service",
			Status:  health.StatusDegraded,
			Message: "not probed while disconnected",
		}
	}

	v, err := p.Version(ctx)
	if err != nil {
		return health.Unhealthy("service", err)
	}
	return health.Healthy("service", fmt.Sprintf("version %d", v))
}
