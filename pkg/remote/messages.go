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

// SlotRequest addresses the global key of a slot.
type SlotRequest struct {
	Slot uint32 `cbor:"slot"`
}

// AuthKeyRequest addresses a named auth key within a slot.
type AuthKeyRequest struct {
	Slot uint32 `cbor:"slot"`
	Name string `cbor:"name"`
}

// InitSignRequest starts a sign session for an auth key and challenge.
type InitSignRequest struct {
	Slot      uint32 `cbor:"slot"`
	Name      string `cbor:"name"`
	Challenge string `cbor:"challenge"`
}

// FinishSignRequest completes a sign session.
type FinishSignRequest struct {
	Session uint64 `cbor:"session"`
}

// VersionRequest asks for the service version.
type VersionRequest struct{}

// CodeReply carries a bare result code.
type CodeReply struct {
	Code ResultCode `cbor:"code"`
}

// BoolReply carries a presence answer.
type BoolReply struct {
	Value bool `cbor:"value"`
}

// ExportReply carries an exported public key record. Empty data means the
// record is not retrievable.
type ExportReply struct {
	Data []byte     `cbor:"data,omitempty"`
	Code ResultCode `cbor:"code"`
}

// SessionReply answers InitSign.
type SessionReply struct {
	Session   uint64     `cbor:"session"`
	Challenge string     `cbor:"challenge"`
	Code      ResultCode `cbor:"code"`
}

// SignReply answers FinishSign.
type SignReply struct {
	Signature []byte     `cbor:"signature,omitempty"`
	Code      ResultCode `cbor:"code"`
}

// VersionReply answers GetVersion.
type VersionReply struct {
	Version int32 `cbor:"version"`
}
