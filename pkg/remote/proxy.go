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

package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/jeremyhahn/go-securekey/pkg/logging"
	"github.com/jeremyhahn/go-securekey/pkg/metrics"
)

// ChannelSource lends out the live channel for the duration of one call.
// Implementations must hand out the current channel on every call so a
// handle invalidated by endpoint death is never reused.
type ChannelSource interface {
	Channel() (Channel, error)
}

// Proxy maps each domain-level operation of the secure key service to
// exactly one channel call. Channel faults come back as *CallError; the
// proxy never retries.
type Proxy struct {
	source ChannelSource
	logger *logging.Logger
}

// NewProxy creates a proxy that borrows channels from source.
func NewProxy(source ChannelSource, logger *logging.Logger) *Proxy {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &Proxy{
		source: source,
		logger: logger,
	}
}

// invoke performs one call on a freshly borrowed channel.
func (p *Proxy) invoke(ctx context.Context, method string, args, reply any) (err error) {
	ch, err := p.source.Channel()
	if err != nil {
		metrics.RecordRemoteCall(ShortMethod(method), metrics.StatusUnavailable, 0)
		return &CallError{Method: method, Err: err}
	}
	if ch == nil {
		metrics.RecordRemoteCall(ShortMethod(method), metrics.StatusUnavailable, 0)
		return &CallError{Method: method, Err: ErrNoChannel}
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = &CallError{Method: method, Err: fmt.Errorf("%w: %v", ErrPanic, r)}
		}
		status := metrics.StatusSuccess
		if err != nil {
			status = metrics.StatusError
			p.logger.Warnf("remote call %s failed: %v", ShortMethod(method), err)
		}
		metrics.RecordRemoteCall(ShortMethod(method), status, time.Since(start).Seconds())
	}()

	if callErr := ch.Invoke(ctx, method, args, reply); callErr != nil {
		return &CallError{Method: method, Err: callErr}
	}
	return nil
}

// GenerateGlobalKey asks the service to generate the global key of slot.
func (p *Proxy) GenerateGlobalKey(ctx context.Context, slot uint32) (ResultCode, error) {
	reply := new(CodeReply)
	if err := p.invoke(ctx, MethodGenerateGlobalKey, &SlotRequest{Slot: slot}, reply); err != nil {
		return 0, err
	}
	return reply.Code, nil
}

// RemoveAllAuthKeys removes the global key of slot together with every auth
// key derived from it.
func (p *Proxy) RemoveAllAuthKeys(ctx context.Context, slot uint32) (ResultCode, error) {
	reply := new(CodeReply)
	if err := p.invoke(ctx, MethodRemoveAllAuthKeys, &SlotRequest{Slot: slot}, reply); err != nil {
		return 0, err
	}
	return reply.Code, nil
}

// HasGlobalKey reports whether slot has a global key.
func (p *Proxy) HasGlobalKey(ctx context.Context, slot uint32) (bool, error) {
	reply := new(BoolReply)
	if err := p.invoke(ctx, MethodHasGlobalKey, &SlotRequest{Slot: slot}, reply); err != nil {
		return false, err
	}
	return reply.Value, nil
}

// ExportGlobalKey returns the exported public record of the global key.
func (p *Proxy) ExportGlobalKey(ctx context.Context, slot uint32) ([]byte, error) {
	reply := new(ExportReply)
	if err := p.invoke(ctx, MethodExportGlobalKey, &SlotRequest{Slot: slot}, reply); err != nil {
		return nil, err
	}
	return reply.Data, nil
}

// GenerateAuthKey asks the service to generate the named auth key.
func (p *Proxy) GenerateAuthKey(ctx context.Context, slot uint32, name string) (ResultCode, error) {
	reply := new(CodeReply)
	if err := p.invoke(ctx, MethodGenerateAuthKey, &AuthKeyRequest{Slot: slot, Name: name}, reply); err != nil {
		return 0, err
	}
	return reply.Code, nil
}

// RemoveAuthKey removes the named auth key.
func (p *Proxy) RemoveAuthKey(ctx context.Context, slot uint32, name string) (ResultCode, error) {
	reply := new(CodeReply)
	if err := p.invoke(ctx, MethodRemoveAuthKey, &AuthKeyRequest{Slot: slot, Name: name}, reply); err != nil {
		return 0, err
	}
	return reply.Code, nil
}

// HasAuthKey reports whether the named auth key exists.
func (p *Proxy) HasAuthKey(ctx context.Context, slot uint32, name string) (bool, error) {
	reply := new(BoolReply)
	if err := p.invoke(ctx, MethodHasAuthKey, &AuthKeyRequest{Slot: slot, Name: name}, reply); err != nil {
		return false, err
	}
	return reply.Value, nil
}

// ExportAuthKey returns the exported public record of the named auth key.
func (p *Proxy) ExportAuthKey(ctx context.Context, slot uint32, name string) ([]byte, error) {
	reply := new(ExportReply)
	if err := p.invoke(ctx, MethodExportAuthKey, &AuthKeyRequest{Slot: slot, Name: name}, reply); err != nil {
		return nil, err
	}
	return reply.Data, nil
}

// InitSign starts a sign session over challenge with the named auth key.
func (p *Proxy) InitSign(ctx context.Context, slot uint32, name, challenge string) (*SessionReply, error) {
	reply := new(SessionReply)
	req := &InitSignRequest{Slot: slot, Name: name, Challenge: challenge}
	if err := p.invoke(ctx, MethodInitSign, req, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// FinishSign completes a sign session. Sessions are single use; the proxy
// forwards every call, including repeats.
func (p *Proxy) FinishSign(ctx context.Context, session uint64) (*SignReply, error) {
	reply := new(SignReply)
	if err := p.invoke(ctx, MethodFinishSign, &FinishSignRequest{Session: session}, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// Version returns the service version.
func (p *Proxy) Version(ctx context.Context) (int, error) {
	reply := new(VersionReply)
	if err := p.invoke(ctx, MethodGetVersion, &VersionRequest{}, reply); err != nil {
		return 0, err
	}
	return int(reply.Version), nil
}
