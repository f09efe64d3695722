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

// Package descriptor parses the public key records exported by the secure
// key service.
//
// The service exports a record as
//
//	uint32 little-endian length n | n bytes of JSON | signature
//
// where the JSON carries the PEM encoded public key together with the
// service counter, the owning uid and the device cpu id, and the trailing
// bytes are the service's signature over the JSON. A bare JWK object is
// accepted as well.
package descriptor

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"

	jose "github.com/go-jose/go-jose/v4"
)

// PEMTypePublicKey is the PEM block type of exported public keys.
const PEMTypePublicKey = "PUBLIC KEY"

const headerSize = 4

var (
	// ErrEmpty is returned for an empty export.
	ErrEmpty = errors.New("descriptor: empty record")

	// ErrMalformed is returned when the record framing or JSON is invalid.
	ErrMalformed = errors.New("descriptor: malformed record")

	// ErrInvalidPublicKey is returned when the embedded key cannot be decoded.
	ErrInvalidPublicKey = errors.New("descriptor: invalid public key")
)

// Descriptor is a parsed, immutable public key record.
type Descriptor struct {
	// Algorithm is the key family: "EC", "RSA" or "OKP".
	Algorithm string
	PublicKey crypto.PublicKey
	// PEM is the PKIX PEM encoding of PublicKey.
	PEM     string
	Counter int64
	UID     int64
	CPUID   string
	// KeyID is set for JWK records that carry a "kid".
	KeyID string
	// JSON is the raw JSON portion of the record.
	JSON []byte
	// Signature is the service signature over JSON, empty for JWK records.
	Signature []byte
}

// Record is the JSON body of an exported key.
type Record struct {
	PublicKey string `json:"pub_key"`
	Counter   int64  `json:"counter"`
	UID       int64  `json:"uid"`
	CPUID     string `json:"cpu_id"`
}

// Parse decodes an exported record.
func Parse(data []byte) (*Descriptor, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if looksLikeJSON(data) {
		return parseJWK(data)
	}
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformed, len(data))
	}

	n := binary.LittleEndian.Uint32(data[:headerSize])
	if n == 0 || uint64(n) > uint64(len(data)-headerSize) {
		return nil, fmt.Errorf("%w: json length %d exceeds record", ErrMalformed, n)
	}
	body := data[headerSize : headerSize+int(n)]
	sig := data[headerSize+int(n):]

	var rec Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	pub, err := decodePublicKeyPEM([]byte(rec.PublicKey))
	if err != nil {
		return nil, err
	}

	return &Descriptor{
		Algorithm: algorithmOf(pub),
		PublicKey: pub,
		PEM:       rec.PublicKey,
		Counter:   rec.Counter,
		UID:       rec.UID,
		CPUID:     rec.CPUID,
		JSON:      append([]byte(nil), body...),
		Signature: append([]byte(nil), sig...),
	}, nil
}

// Encode frames rec and signature the way the service exports them.
func Encode(rec Record, signature []byte) ([]byte, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("descriptor: marshal record: %w", err)
	}
	out := make([]byte, headerSize, headerSize+len(body)+len(signature))
	binary.LittleEndian.PutUint32(out, uint32(len(body)))
	out = append(out, body...)
	return append(out, signature...), nil
}

// EncodePublicKeyPEM encodes a public key as a PKIX PEM block.
func EncodePublicKeyPEM(pub crypto.PublicKey) (string, error) {
	if pub == nil {
		return "", ErrInvalidPublicKey
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: PEMTypePublicKey, Bytes: der})), nil
}

// Signed reports whether the record carries a service signature.
func (d *Descriptor) Signed() bool {
	return len(d.Signature) > 0
}

// JWK returns the public key as a JSON Web Key.
func (d *Descriptor) JWK() jose.JSONWebKey {
	return jose.JSONWebKey{
		Key:   d.PublicKey,
		KeyID: d.KeyID,
	}
}

// Thumbprint returns the RFC 7638 SHA-256 thumbprint of the public key,
// base64url encoded.
func (d *Descriptor) Thumbprint() (string, error) {
	jwk := d.JWK()
	sum, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("descriptor: thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(sum), nil
}

func parseJWK(data []byte) (*Descriptor, error) {
	var jwk jose.JSONWebKey
	if err := jwk.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !jwk.Valid() {
		return nil, ErrInvalidPublicKey
	}
	if !jwk.IsPublic() {
		jwk = jwk.Public()
	}

	pemText, err := EncodePublicKeyPEM(jwk.Key)
	if err != nil {
		return nil, err
	}

	return &Descriptor{
		Algorithm: algorithmOf(jwk.Key),
		PublicKey: jwk.Key,
		PEM:       pemText,
		KeyID:     jwk.KeyID,
		JSON:      append([]byte(nil), data...),
	}, nil
}

func decodePublicKeyPEM(data []byte) (crypto.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block", ErrInvalidPublicKey)
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return pub, nil
}

func algorithmOf(pub crypto.PublicKey) string {
	switch pub.(type) {
	case *ecdsa.PublicKey:
		return "EC"
	case *rsa.PublicKey:
		return "RSA"
	case ed25519.PublicKey:
		return "OKP"
	default:
		return "unknown"
	}
}

func looksLikeJSON(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{'
}
