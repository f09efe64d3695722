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

// GenerateGlobalKey generates the application global key of the configured
// slot. Failures match ErrGlobalKeyGeneration.
func (c *Client) GenerateGlobalKey(ctx context.Context) (err error) {
	const op = metrics.OpGenerateGlobalKey
	const failure = remote.ResultGlobalKeyGenerationFailed

	start := time.Now()
	ctx, p, e := c.prepare(ctx, op, failure)
	defer func() { c.finish(ctx, op, start, err) }()
	if e != nil {
		return e
	}

	code, callErr := p.GenerateGlobalKey(ctx, c.cfg.Slot)
	if callErr != nil {
		return newError(op, KindRemoteCall, failure, callErr)
	}
	if !code.OK() {
		return operationError(op, failure, code)
	}
	return nil
}

// RemoveGlobalKey removes the global key of the configured slot together
// with every auth key derived from it. Failures match ErrGlobalKeyRemoval.
func (c *Client) RemoveGlobalKey(ctx context.Context) (err error) {
	const op = metrics.OpRemoveGlobalKey
	const failure = remote.ResultGlobalKeyRemovalFailed

	start := time.Now()
	ctx, p, e := c.prepare(ctx, op, failure)
	defer func() { c.finish(ctx, op, start, err) }()
	if e != nil {
		return e
	}

	code, callErr := p.RemoveAllAuthKeys(ctx, c.cfg.Slot)
	if callErr != nil {
		return newError(op, KindRemoteCall, failure, callErr)
	}
	if !code.OK() {
		return operationError(op, failure, code)
	}
	return nil
}

// HasGlobalKey reports whether the configured slot has a global key. Any
// failure reports false along with the error.
func (c *Client) HasGlobalKey(ctx context.Context) (has bool, err error) {
	const op = metrics.OpHasGlobalKey

	start := time.Now()
	ctx, p, e := c.prepare(ctx, op, remote.ResultOK)
	defer func() { c.finish(ctx, op, start, err) }()
	if e != nil {
		return false, e
	}

	has, callErr := p.HasGlobalKey(ctx, c.cfg.Slot)
	if callErr != nil {
		return false, newError(op, KindRemoteCall, remote.ResultOK, callErr)
	}
	return has, nil
}

// GlobalKeyDescriptor returns the public record of the global key. A
// record that is absent, empty or unreadable yields (nil, nil); an error
// means the service could not be asked.
func (c *Client) GlobalKeyDescriptor(ctx context.Context) (d *descriptor.Descriptor, err error) {
	const op = metrics.OpExportGlobalKey

	start := time.Now()
	ctx, p, e := c.prepare(ctx, op, remote.ResultOK)
	defer func() { c.finish(ctx, op, start, err) }()
	if e != nil {
		return nil, e
	}

	data, callErr := p.ExportGlobalKey(ctx, c.cfg.Slot)
	if callErr != nil {
		return nil, newError(op, KindRemoteCall, remote.ResultOK, callErr)
	}
	return c.parse(op, data), nil
}

// GlobalKeyIsValid reports whether the global key exists and its record is
// retrievable. The export is skipped when the key is absent.
func (c *Client) GlobalKeyIsValid(ctx context.Context) bool {
	has, err := c.HasGlobalKey(ctx)
	if err != nil || !has {
		return false
	}
	d, err := c.GlobalKeyDescriptor(ctx)
	return err == nil && d != nil
}

// parse converts exported bytes to a descriptor. Unusable data is treated
// as not found.
func (c *Client) parse(op string, data []byte) *descriptor.Descriptor {
	if len(data) == 0 {
		c.logger.Debug("key record not retrievable", "op", op)
		return nil
	}
	d, err := descriptor.Parse(data)
	if err != nil {
		c.logger.Warn("key record unreadable",
			"op", op,
			"kind", KindData.String(),
			"error", err)
		return nil
	}
	return d
}
