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

package remotetest

import (
	"context"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jeremyhahn/go-securekey/pkg/codec"
	"github.com/jeremyhahn/go-securekey/pkg/remote"
)

// Channel dispatches calls to a remote.Server in process. Arguments and
// replies pass through the wire codec, and the server is reached through
// remote.ServiceDesc, so method routing matches a real socket.
type Channel struct {
	srv         remote.Server
	handlers    map[string]func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error)
	interceptor grpc.UnaryServerInterceptor

	mu     sync.RWMutex
	closed bool
}

// NewChannel returns a channel serving srv. An optional interceptor runs
// around every handler, as it would inside a gRPC server.
func NewChannel(srv remote.Server, interceptor grpc.UnaryServerInterceptor) *Channel {
	handlers := make(map[string]func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error), len(remote.ServiceDesc.Methods))
	for _, m := range remote.ServiceDesc.Methods {
		handlers["/"+remote.ServiceDesc.ServiceName+"/"+m.MethodName] = m.Handler
	}
	return &Channel{
		srv:         srv,
		handlers:    handlers,
		interceptor: interceptor,
	}
}

// Invoke implements remote.Channel.
func (c *Channel) Invoke(ctx context.Context, method string, args, reply any) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return status.Error(codes.Unavailable, "remotetest: channel closed")
	}

	handler, ok := c.handlers[method]
	if !ok {
		return status.Errorf(codes.Unimplemented, "remotetest: unknown method %s", method)
	}

	dec := func(in any) error {
		return codec.Copy(in, args)
	}
	out, err := handler(c.srv, ctx, dec, c.interceptor)
	if err != nil {
		return err
	}
	return codec.Copy(reply, out)
}

// Close makes every following call fail with codes.Unavailable.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

var _ remote.Channel = (*Channel)(nil)
