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
	"time"

	"github.com/jeremyhahn/go-securekey/pkg/metrics"
	"github.com/jeremyhahn/go-securekey/pkg/remote"
)

// SignSession is a sign session opened by InitSign. It is single use.
type SignSession struct {
	ID uint64
	// Challenge is the challenge as echoed by the service.
	Challenge string
	Code      remote.ResultCode
}

// InitSign opens a sign session over challenge with the named auth key.
// The session is nil whenever err is not.
func (c *Client) InitSign(ctx context.Context, name, challenge string) (s *SignSession, err error) {
	const op = metrics.OpInitSign

	start := time.Now()
	ctx, p, e := c.prepare(ctx, op, remote.ResultOK)
	defer func() { c.finish(ctx, op, start, err) }()
	if e != nil {
		return nil, e
	}

	reply, callErr := p.InitSign(ctx, c.cfg.Slot, name, challenge)
	if callErr != nil {
		return nil, newError(op, KindRemoteCall, remote.ResultOK, callErr)
	}
	if !reply.Code.OK() {
		return nil, operationError(op, remote.ResultInitSignFailed, reply.Code)
	}
	return &SignSession{
		ID:        reply.Session,
		Challenge: reply.Challenge,
		Code:      reply.Code,
	}, nil
}

// FinishSign completes session and returns the signature.
//
// A non-OK result after a successful call is a KindOperation error matching
// ErrSignFailed; the session is consumed either way. Being unable to reach
// the service matches ErrUnavailable instead. Every call reaches the
// service, so finishing the same session twice surfaces the second result.
func (c *Client) FinishSign(ctx context.Context, session uint64) (sig []byte, err error) {
	const op = metrics.OpFinishSign

	start := time.Now()
	ctx, p, e := c.prepare(ctx, op, remote.ResultOK)
	defer func() { c.finish(ctx, op, start, err) }()
	if e != nil {
		return nil, e
	}

	reply, callErr := p.FinishSign(ctx, session)
	if callErr != nil {
		return nil, newError(op, KindRemoteCall, remote.ResultOK, callErr)
	}
	if !reply.Code.OK() {
		return nil, operationError(op, remote.ResultSignFailed, reply.Code)
	}
	return reply.Signature, nil
}

// Version returns the service version, or 0 with an error when it cannot
// be determined.
func (c *Client) Version(ctx context.Context) (v int, err error) {
	const op = metrics.OpVersion

	start := time.Now()
	ctx, p, e := c.prepare(ctx, op, remote.ResultOK)
	defer func() { c.finish(ctx, op, start, err) }()
	if e != nil {
		return 0, e
	}

	v, callErr := p.Version(ctx)
	if callErr != nil {
		return 0, newError(op, KindRemoteCall, remote.ResultOK, callErr)
	}
	return v, nil
}
