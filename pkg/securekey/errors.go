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
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-securekey/pkg/remote"
)

// Kind classifies why an operation did not succeed.
type Kind int

const (
	// KindCapability means the platform is known to be unable to serve
	// secure key operations. No remote interaction was attempted.
	KindCapability Kind = iota + 1
	// KindConfiguration means the client was not initialised with a
	// connector.
	KindConfiguration
	// KindConnection means no connection was available within the timeout.
	KindConnection
	// KindRemoteCall means the channel itself faulted during the call.
	KindRemoteCall
	// KindOperation means the service ran the call and reported failure.
	KindOperation
	// KindData means exported bytes could not be interpreted.
	KindData
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindCapability:
		return "capability"
	case KindConfiguration:
		return "configuration"
	case KindConnection:
		return "connection"
	case KindRemoteCall:
		return "remote_call"
	case KindOperation:
		return "operation"
	case KindData:
		return "data"
	default:
		return "unknown"
	}
}

// unavailable reports whether the kind means the service could not be used
// at all, as opposed to the service refusing the request.
func (k Kind) unavailable() bool {
	switch k {
	case KindCapability, KindConfiguration, KindConnection, KindRemoteCall:
		return true
	}
	return false
}

var (
	// ErrUnavailable matches every error whose operation never reached a
	// working service.
	ErrUnavailable = errors.New("securekey: service unavailable")

	// ErrIncapable is the cause of capability errors.
	ErrIncapable = errors.New("securekey: platform is not capable")

	// ErrNotInitialized is the cause of configuration errors.
	ErrNotInitialized = errors.New("securekey: client not initialized")

	// ErrNotConnected is the cause of connection errors.
	ErrNotConnected = errors.New("securekey: not connected within timeout")

	// ErrNotSupported is matched by errors carrying remote.ResultNotSupported.
	ErrNotSupported = errors.New("securekey: operation not supported")

	// ErrGlobalKeyGeneration is matched by failed global key generation.
	ErrGlobalKeyGeneration = errors.New("securekey: global key generation failed")

	// ErrGlobalKeyRemoval is matched by failed global key removal, including
	// the second step of RemoveAuthKey with autoDeleteGlobal.
	ErrGlobalKeyRemoval = errors.New("securekey: global key removal failed")

	// ErrAuthKeyGeneration is matched by failed auth key generation.
	ErrAuthKeyGeneration = errors.New("securekey: auth key generation failed")

	// ErrAuthKeyRemoval is matched by failed auth key removal.
	ErrAuthKeyRemoval = errors.New("securekey: auth key removal failed")

	// ErrInitSign is matched by a refused sign session.
	ErrInitSign = errors.New("securekey: sign initialization failed")

	// ErrSignFailed is matched when the service completed the sign call but
	// reported failure. The session must be considered consumed.
	ErrSignFailed = errors.New("securekey: sign failed")
)

var codeErrors = map[remote.ResultCode]error{
	remote.ResultNotSupported:              ErrNotSupported,
	remote.ResultGlobalKeyGenerationFailed: ErrGlobalKeyGeneration,
	remote.ResultAuthKeyGenerationFailed:   ErrAuthKeyGeneration,
	remote.ResultGlobalKeyRemovalFailed:    ErrGlobalKeyRemoval,
	remote.ResultAuthKeyRemovalFailed:      ErrAuthKeyRemoval,
	remote.ResultSignFailed:                ErrSignFailed,
	remote.ResultInitSignFailed:            ErrInitSign,
}

// Error is returned by every Client operation that does not succeed.
//
// Code is the operation's documented failure code. It is set for
// unavailable outcomes too, so callers switching on codes see the same
// value whether the service refused or could not be reached. Operations
// without a documented code leave it zero.
type Error struct {
	Op   string
	Kind Kind
	Code remote.ResultCode
	Err  error
}

// Error implements error.
func (e *Error) Error() string {
	msg := "securekey: " + e.Op + ": " + e.Kind.String()
	if e.Code != remote.ResultOK {
		msg += " (" + e.Code.String() + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches ErrUnavailable by kind and the per-operation sentinels by code.
func (e *Error) Is(target error) bool {
	if target == ErrUnavailable {
		return e.Kind.unavailable()
	}
	if sentinel, ok := codeErrors[e.Code]; ok && sentinel == target {
		return true
	}
	return false
}

// KindOf returns the kind of err, or zero when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func newError(op string, kind Kind, code remote.ResultCode, err error) *Error {
	return &Error{Op: op, Kind: kind, Code: code, Err: err}
}

func operationError(op string, code, got remote.ResultCode) *Error {
	return newError(op, KindOperation, code, fmt.Errorf("service returned %s", got))
}
