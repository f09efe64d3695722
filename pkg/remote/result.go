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

import "fmt"

// ResultCode is the application-level status returned by the secure key
// service for operations that report one. It is independent of whether the
// call itself reached the service.
type ResultCode int32

const (
	// ResultOK is the canonical success value.
	ResultOK ResultCode = 0

	// ResultNotSupported means the service cannot perform the operation on
	// this device.
	ResultNotSupported ResultCode = 2

	// ResultGlobalKeyGenerationFailed is returned when the app global key
	// could not be generated.
	ResultGlobalKeyGenerationFailed ResultCode = 3

	// ResultAuthKeyGenerationFailed is returned when an auth key could not
	// be generated.
	ResultAuthKeyGenerationFailed ResultCode = 4

	// ResultGlobalKeyRemovalFailed is returned when the global key (and with
	// it every auth key of the slot) could not be removed.
	ResultGlobalKeyRemovalFailed ResultCode = 5

	// ResultAuthKeyRemovalFailed is returned when an auth key could not be
	// removed.
	ResultAuthKeyRemovalFailed ResultCode = 6

	// ResultSignFailed is returned when a sign session could not be
	// completed.
	ResultSignFailed ResultCode = 7

	// ResultInitSignFailed is returned when a sign session could not be
	// started.
	ResultInitSignFailed ResultCode = 8
)

// OK reports whether the code is the success value.
func (c ResultCode) OK() bool {
	return c == ResultOK
}

// String returns a stable name for the code.
func (c ResultCode) String() string {
	switch c {
	case ResultOK:
		return "ok"
	case ResultNotSupported:
		return "not_supported"
	case ResultGlobalKeyGenerationFailed:
		return "global_key_generation_failed"
	case ResultAuthKeyGenerationFailed:
		return "auth_key_generation_failed"
	case ResultGlobalKeyRemovalFailed:
		return "global_key_removal_failed"
	case ResultAuthKeyRemovalFailed:
		return "auth_key_removal_failed"
	case ResultSignFailed:
		return "sign_failed"
	case ResultInitSignFailed:
		return "init_sign_failed"
	default:
		return fmt.Sprintf("result_%d", int32(c))
	}
}
