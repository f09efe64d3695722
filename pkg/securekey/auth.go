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

	"github.com/jeremyhahn/go-securekey/pkg/descriptor"
	"github.com/jeremyhahn/go-securekey/pkg/metrics"
	"github.com/jeremyhahn/go-securekey/pkg/remote"
)

// GenerateAuthKey generates the named auth key. Failures match
// ErrAuthKeyGeneration.
func (c *Client) GenerateAuthKey(ctx context.Context, name string) (err error) {
	const op = metrics.OpGenerateAuthKey
	const failure = remote.ResultAuthKeyGenerationFailed

	start := time.Now()
	ctx, p, e := c.prepare(ctx, op, failure)
	defer func() { c.finish(ctx, op, start, err) }()
	if e != nil {
		return e
	}

	code, callErr := p.GenerateAuthKey(ctx, c.cfg.Slot, name)
	if callErr != nil {
		return newError(op, KindRemoteCall, failure, callErr)
	}
	if !code.OK() {
		return operationError(op, failure, code)
	}
	return nil
}

// RemoveAuthKey removes the named auth key. With autoDeleteGlobal set, the
// global key is removed as well once the auth key is gone; a failure of
// that second step matches ErrGlobalKeyRemoval even though the auth key was
// removed. Other failures match ErrAuthKeyRemoval.
func (c *Client) RemoveAuthKey(ctx context.Context, name string, autoDeleteGlobal bool) (err error) {
	const op = metrics.OpRemoveAuthKey
	const failure = remote.ResultAuthKeyRemovalFailed

	start := time.Now()
	ctx, p, e := c.prepare(ctx, op, failure)
	defer func() { c.finish(ctx, op, start, err) }()
	if e != nil {
		return e
	}

	code, callErr := p.RemoveAuthKey(ctx, c.cfg.Slot, name)
	if callErr != nil {
		return newError(op, KindRemoteCall, failure, callErr)
	}
	if !code.OK() {
		return operationError(op, failure, code)
	}
	if !autoDeleteGlobal {
		return nil
	}

	code, callErr = p.RemoveAllAuthKeys(ctx, c.cfg.Slot)
	if callErr != nil {
		return newError(op, KindRemoteCall, remote.ResultGlobalKeyRemovalFailed, callErr)
	}
	if !code.OK() {
		return operationError(op, remote.ResultGlobalKeyRemovalFailed, code)
	}
	return nil
}

// HasAuthKey reports whether the named auth key exists. Any failure
// reports false along with the error.
func (c *Client) HasAuthKey(ctx context.Context, name string) (has bool, err error) {
	const op = metrics.OpHasAuthKey

	start := time.Now()
	ctx, p, e := c.prepare(ctx, op, remote.ResultOK)
	defer func() { c.finish(ctx, op, start, err) }()
	if e != nil {
		return false, e
	}

	has, callErr := p.HasAuthKey(ctx, c.cfg.Slot, name)
	if callErr != nil {
		return false, newError(op, KindRemoteCall, remote.ResultOK, callErr)
	}
	return has, nil
}

// AuthKeyDescriptor returns the public record of the named auth key, with
// the same not-found policy as GlobalKeyDescriptor.
func (c *Client) AuthKeyDescriptor(ctx context.Context, name string) (d *descriptor.Descriptor, err error) {
	const op = metrics.OpExportAuthKey

	start := time.Now()
	ctx, p, e := c.prepare(ctx, op, remote.ResultOK)
	defer func() { c.finish(ctx, op, start, err) }()
	if e != nil {
		return nil, e
	}

	data, callErr := p.ExportAuthKey(ctx, c.cfg.Slot, name)
	if callErr != nil {
		return nil, newError(op, KindRemoteCall, remote.ResultOK, callErr)
	}
	return c.parse(op, data), nil
}

// AuthKeyIsValid reports whether the named auth key exists and its record
// is retrievable.
func (c *Client) AuthKeyIsValid(ctx context.Context, name string) bool {
	has, err := c.HasAuthKey(ctx, name)
	if err != nil || !has {
		return false
	}
	d, err := c.AuthKeyDescriptor(ctx, name)
	return err == nil && d != nil
}
