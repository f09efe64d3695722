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
	"errors"
	"fmt"
)

var (
	// ErrNoChannel is returned when no live channel could be borrowed for
	// the call.
	ErrNoChannel = errors.New("remote: no channel available")

	// ErrPanic wraps a panic raised by a channel implementation.
	ErrPanic = errors.New("remote: channel panicked")
)

// CallError reports that a remote call did not complete at the channel
// level. It never carries an application result code; those travel in the
// reply.
type CallError struct {
	// Method is the full method name that failed.
	Method string

	// Err is the underlying channel failure.
	Err error
}

// Error implements error.
func (e *CallError) Error() string {
	return fmt.Sprintf("remote: %s failed: %v", ShortMethod(e.Method), e.Err)
}

// Unwrap returns the underlying channel failure.
func (e *CallError) Unwrap() error {
	return e.Err
}

// IsCallError reports whether err is (or wraps) a CallError.
func IsCallError(err error) bool {
	var ce *CallError
	return errors.As(err, &ce)
}
