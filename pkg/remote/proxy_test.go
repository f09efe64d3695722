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

package remote_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-securekey/pkg/descriptor"
	"github.com/jeremyhahn/go-securekey/pkg/logging"
	"github.com/jeremyhahn/go-securekey/pkg/remote"
	"github.com/jeremyhahn/go-securekey/pkg/remote/remotetest"
)

// source lends ch on every call and counts the borrows.
type source struct {
	ch      remote.Channel
	err     error
	borrows int
}

func (s *source) Channel() (remote.Channel, error) {
	s.borrows++
	return s.ch, s.err
}

func newProxy(t *testing.T) (*remote.Proxy, *remotetest.Service, *source) {
	t.Helper()
	svc := remotetest.NewService()
	src := &source{ch: remotetest.NewChannel(svc, nil)}
	return remote.NewProxy(src, logging.Discard()), svc, src
}

func TestProxy_GlobalKeyLifecycle(t *testing.T) {
	p, _, src := newProxy(t)
	ctx := context.Background()

	has, err := p.HasGlobalKey(ctx, 0)
	require.NoError(t, err)
	assert.False(t, has)

	code, err := p.GenerateGlobalKey(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, remote.ResultOK, code)

	has, err = p.HasGlobalKey(ctx, 0)
	require.NoError(t, err)
	assert.True(t, has)

	data, err := p.ExportGlobalKey(ctx, 0)
	require.NoError(t, err)
	_, err = descriptor.Parse(data)
	require.NoError(t, err)

	code, err = p.RemoveAllAuthKeys(ctx, 0)
	require.NoError(t, err)
	assert.True(t, code.OK())

	data, err = p.ExportGlobalKey(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, data)

	// One borrow per call, never cached.
	assert.Equal(t, 6, src.borrows)
}

func TestProxy_AuthKeyAndSign(t *testing.T) {
	p, _, _ := newProxy(t)
	ctx := context.Background()

	_, err := p.GenerateGlobalKey(ctx, 3)
	require.NoError(t, err)

	code, err := p.GenerateAuthKey(ctx, 3, "login")
	require.NoError(t, err)
	require.True(t, code.OK())

	has, err := p.HasAuthKey(ctx, 3, "login")
	require.NoError(t, err)
	assert.True(t, has)

	data, err := p.ExportAuthKey(ctx, 3, "login")
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	sess, err := p.InitSign(ctx, 3, "login", "challenge")
	require.NoError(t, err)
	require.True(t, sess.Code.OK())
	assert.Equal(t, "challenge", sess.Challenge)

	sig, err := p.FinishSign(ctx, sess.Session)
	require.NoError(t, err)
	assert.True(t, sig.Code.OK())
	assert.NotEmpty(t, sig.Signature)

	// Repeats are forwarded, not deduplicated.
	sig, err = p.FinishSign(ctx, sess.Session)
	require.NoError(t, err)
	assert.Equal(t, remote.ResultSignFailed, sig.Code)

	code, err = p.RemoveAuthKey(ctx, 3, "login")
	require.NoError(t, err)
	assert.True(t, code.OK())
}

func TestProxy_Version(t *testing.T) {
	p, svc, _ := newProxy(t)
	svc.SetVersion(4)

	v, err := p.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, v)
}

func TestProxy_ApplicationCodesAreNotCallErrors(t *testing.T) {
	p, svc, _ := newProxy(t)
	svc.FailWith("GenerateGlobalKey", remote.ResultGlobalKeyGenerationFailed)

	code, err := p.GenerateGlobalKey(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, remote.ResultGlobalKeyGenerationFailed, code)
}

func TestProxy_ChannelFault(t *testing.T) {
	p, svc, _ := newProxy(t)
	boom := errors.New("socket reset")
	svc.ErrorOn("HasAuthKey", boom)

	_, err := p.HasAuthKey(context.Background(), 0, "x")
	require.Error(t, err)
	assert.True(t, remote.IsCallError(err))

	var ce *remote.CallError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, remote.MethodHasAuthKey, ce.Method)
	assert.Contains(t, err.Error(), "HasAuthKey")
}

func TestProxy_NoChannel(t *testing.T) {
	src := &source{err: errors.New("not connected")}
	p := remote.NewProxy(src, logging.Discard())

	_, err := p.Version(context.Background())
	require.Error(t, err)
	assert.True(t, remote.IsCallError(err))
	assert.EqualError(t, errors.Unwrap(err), "not connected")

	p = remote.NewProxy(&source{}, nil)
	_, err = p.HasGlobalKey(context.Background(), 0)
	assert.ErrorIs(t, err, remote.ErrNoChannel)
}

func TestProxy_PanicBecomesCallError(t *testing.T) {
	ch := remote.ChannelFunc(func(ctx context.Context, method string, args, reply any) error {
		panic("binder exploded")
	})
	p := remote.NewProxy(&source{ch: ch}, logging.Discard())

	var err error
	assert.NotPanics(t, func() {
		_, err = p.InitSign(context.Background(), 0, "x", "y")
	})
	assert.ErrorIs(t, err, remote.ErrPanic)
	assert.True(t, remote.IsCallError(err))
}

func TestResultCode_String(t *testing.T) {
	assert.Equal(t, "ok", remote.ResultOK.String())
	assert.Equal(t, "sign_failed", remote.ResultSignFailed.String())
	assert.Equal(t, "result_42", remote.ResultCode(42).String())
}

func TestShortMethod(t *testing.T) {
	assert.Equal(t, "GetVersion", remote.ShortMethod(remote.MethodGetVersion))
	assert.Equal(t, "plain", remote.ShortMethod("plain"))
}
