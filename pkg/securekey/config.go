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
	"time"

	"github.com/jeremyhahn/go-securekey/pkg/connection"
	"github.com/jeremyhahn/go-securekey/pkg/logging"
	"github.com/jeremyhahn/go-securekey/pkg/ratelimit"
)

// DefaultTimeout bounds how long an operation waits for a connection.
const DefaultTimeout = 3 * time.Second

// Config configures a Client. The zero value is usable.
type Config struct {
	// Slot is the application slot every key operation addresses.
	Slot uint32

	// Timeout bounds each wait for a connection. Defaults to DefaultTimeout.
	Timeout time.Duration

	// AttemptExpiry abandons a connect attempt that never reports back.
	// Defaults to connection.DefaultAttemptExpiry.
	AttemptExpiry time.Duration

	// Reconnect throttles automatic reconnects after endpoint death.
	// Defaults to ratelimit.DefaultConfig.
	Reconnect *ratelimit.Limiter

	// CapabilityProbe, when set, is consulted before every operation. A
	// non-nil error fails the operation with KindCapability.
	CapabilityProbe func() error

	// Observer receives connection state transitions.
	Observer func(from, to connection.State)

	Logger *logging.Logger
}

func (c *Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}
