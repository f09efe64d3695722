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

package transport

import (
	"context"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"

	"github.com/jeremyhahn/go-securekey/pkg/codec"
	"github.com/jeremyhahn/go-securekey/pkg/connection"
	"github.com/jeremyhahn/go-securekey/pkg/logging"
	"github.com/jeremyhahn/go-securekey/pkg/remote"
)

// GRPCChannel adapts a gRPC client connection to remote.Channel. Calls use
// the CBOR codec and fail fast when the channel is not ready.
type GRPCChannel struct {
	cc grpc.ClientConnInterface
}

// NewGRPCChannel wraps cc.
func NewGRPCChannel(cc grpc.ClientConnInterface) *GRPCChannel {
	return &GRPCChannel{cc: cc}
}

// Invoke implements remote.Channel.
func (c *GRPCChannel) Invoke(ctx context.Context, method string, args, reply any) error {
	return c.cc.Invoke(ctx, method, args, reply, grpc.CallContentSubtype(codec.Name))
}

// Endpoint is a connected gRPC channel to the service.
type Endpoint struct {
	cc     *grpc.ClientConn
	ch     *GRPCChannel
	logger *logging.Logger

	mu     sync.Mutex
	dead   bool
	closed bool
}

var _ connection.Endpoint = (*Endpoint)(nil)

func newEndpoint(cc *grpc.ClientConn, logger *logging.Logger) *Endpoint {
	return &Endpoint{
		cc:     cc,
		ch:     NewGRPCChannel(cc),
		logger: logger,
	}
}

// Channel implements connection.Endpoint.
func (e *Endpoint) Channel() remote.Channel {
	return e.ch
}

// LinkToDeath implements connection.Endpoint. fn runs at most once, on a
// watcher goroutine, when the channel leaves READY. The returned function
// stops the watcher.
func (e *Endpoint) LinkToDeath(fn func()) (func(), error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.dead || e.closed || e.cc.GetState() != connectivity.Ready {
		e.dead = true
		return nil, connection.ErrEndpointDead
	}

	ctx, cancel := context.WithCancel(context.Background())
	go e.watch(ctx, fn)
	return cancel, nil
}

func (e *Endpoint) watch(ctx context.Context, fn func()) {
	state := connectivity.Ready
	for {
		if !e.cc.WaitForStateChange(ctx, state) {
			// Unlinked.
			return
		}
		state = e.cc.GetState()
		if state == connectivity.Ready {
			continue
		}

		e.mu.Lock()
		closed := e.closed
		e.dead = true
		e.mu.Unlock()
		if closed {
			return
		}

		e.logger.Warn("endpoint died", "state", state.String())
		fn()
		return
	}
}

// Dead reports whether the channel has left READY.
func (e *Endpoint) Dead() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dead
}

// Close implements connection.Endpoint. Watchers exit without reporting.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()
	return e.cc.Close()
}
