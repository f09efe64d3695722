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

// Package remotetest provides an in-memory secure key service and a
// Channel that dispatches to it through the real service descriptor and
// wire codec.
package remotetest

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"sync"

	"github.com/jeremyhahn/go-securekey/pkg/descriptor"
	"github.com/jeremyhahn/go-securekey/pkg/remote"
)

// DefaultVersion is the version reported by a new Service.
const DefaultVersion = 1

// DefaultUID is the uid stamped into exported records.
const DefaultUID = 10086

type key struct {
	priv    *ecdsa.PrivateKey
	counter int64
}

type authID struct {
	slot uint32
	name string
}

type session struct {
	id        authID
	challenge string
}

// Service is an in-memory remote.Server. Keys are real ECDSA P-256 keys so
// exported records and signatures can be verified.
type Service struct {
	mu       sync.Mutex
	version  int32
	counter  int64
	globals  map[uint32]*key
	auth     map[authID]*key
	sessions map[uint64]session
	nextID   uint64
	codes    map[string]remote.ResultCode
	errs     map[string]error
	exports  map[string][]byte
	calls    map[string]int
}

// NewService returns an empty service.
func NewService() *Service {
	return &Service{
		version:  DefaultVersion,
		globals:  make(map[uint32]*key),
		auth:     make(map[authID]*key),
		sessions: make(map[uint64]session),
		codes:    make(map[string]remote.ResultCode),
		errs:     make(map[string]error),
		exports:  make(map[string][]byte),
		calls:    make(map[string]int),
	}
}

// SetVersion changes the reported version.
func (s *Service) SetVersion(v int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version = v
}

// FailWith makes method (short name, e.g. "RemoveAuthKey") answer with
// code instead of performing the operation.
func (s *Service) FailWith(method string, code remote.ResultCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[method] = code
}

// ErrorOn makes method fail at the call level with err.
func (s *Service) ErrorOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[method] = err
}

// SetExport overrides the bytes returned by an export method.
func (s *Service) SetExport(method string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exports[method] = data
}

// Reset clears every injected fault and export override.
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes = make(map[string]remote.ResultCode)
	s.errs = make(map[string]error)
	s.exports = make(map[string][]byte)
}

// Calls returns how many times method was invoked.
func (s *Service) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// GlobalPublicKey returns the public half of the global key of slot.
func (s *Service) GlobalPublicKey(slot uint32) *ecdsa.PublicKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.globals[slot]; ok {
		return &k.priv.PublicKey
	}
	return nil
}

// AuthPublicKey returns the public half of the named auth key.
func (s *Service) AuthPublicKey(slot uint32, name string) *ecdsa.PublicKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.auth[authID{slot, name}]; ok {
		return &k.priv.PublicKey
	}
	return nil
}

// enter records the call and returns any injected fault. Callers hold mu.
func (s *Service) enter(method string) (remote.ResultCode, bool, error) {
	s.calls[method]++
	if err, ok := s.errs[method]; ok {
		return 0, true, err
	}
	if code, ok := s.codes[method]; ok {
		return code, true, nil
	}
	return remote.ResultOK, false, nil
}

func (s *Service) newKey() (*key, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	s.counter++
	return &key{priv: priv, counter: s.counter}, nil
}

func (s *Service) export(method string, k *key) ([]byte, error) {
	if data, ok := s.exports[method]; ok {
		return data, nil
	}
	if k == nil {
		return nil, nil
	}
	pemText, err := descriptor.EncodePublicKeyPEM(&k.priv.PublicKey)
	if err != nil {
		return nil, err
	}
	rec := descriptor.Record{
		PublicKey: pemText,
		Counter:   k.counter,
		UID:       DefaultUID,
		CPUID:     "remotetest",
	}
	body, err := descriptor.Encode(rec, nil)
	if err != nil {
		return nil, err
	}
	// Sign the JSON with the record's own key as an attestation stand-in.
	digest := sha256.Sum256(body[4:])
	sig, err := ecdsa.SignASN1(rand.Reader, k.priv, digest[:])
	if err != nil {
		return nil, err
	}
	return append(body, sig...), nil
}

// GenerateGlobalKey implements remote.Server.
func (s *Service) GenerateGlobalKey(_ context.Context, req *remote.SlotRequest) (*remote.CodeReply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code, faulted, err := s.enter("GenerateGlobalKey"); faulted {
		return &remote.CodeReply{Code: code}, err
	}
	k, err := s.newKey()
	if err != nil {
		return &remote.CodeReply{Code: remote.ResultGlobalKeyGenerationFailed}, nil
	}
	s.globals[req.Slot] = k
	return &remote.CodeReply{Code: remote.ResultOK}, nil
}

// RemoveAllAuthKeys implements remote.Server.
func (s *Service) RemoveAllAuthKeys(_ context.Context, req *remote.SlotRequest) (*remote.CodeReply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code, faulted, err := s.enter("RemoveAllAuthKeys"); faulted {
		return &remote.CodeReply{Code: code}, err
	}
	delete(s.globals, req.Slot)
	for id := range s.auth {
		if id.slot == req.Slot {
			delete(s.auth, id)
		}
	}
	return &remote.CodeReply{Code: remote.ResultOK}, nil
}

// HasGlobalKey implements remote.Server.
func (s *Service) HasGlobalKey(_ context.Context, req *remote.SlotRequest) (*remote.BoolReply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, faulted, err := s.enter("HasGlobalKey"); faulted {
		return &remote.BoolReply{}, err
	}
	_, ok := s.globals[req.Slot]
	return &remote.BoolReply{Value: ok}, nil
}

// ExportGlobalKey implements remote.Server.
func (s *Service) ExportGlobalKey(_ context.Context, req *remote.SlotRequest) (*remote.ExportReply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code, faulted, err := s.enter("ExportGlobalKey"); faulted {
		return &remote.ExportReply{Code: code}, err
	}
	data, err := s.export("ExportGlobalKey", s.globals[req.Slot])
	if err != nil {
		return nil, err
	}
	return &remote.ExportReply{Data: data}, nil
}

// GenerateAuthKey implements remote.Server. The slot's global key must
// exist.
func (s *Service) GenerateAuthKey(_ context.Context, req *remote.AuthKeyRequest) (*remote.CodeReply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code, faulted, err := s.enter("GenerateAuthKey"); faulted {
		return &remote.CodeReply{Code: code}, err
	}
	if _, ok := s.globals[req.Slot]; !ok || req.Name == "" {
		return &remote.CodeReply{Code: remote.ResultAuthKeyGenerationFailed}, nil
	}
	k, err := s.newKey()
	if err != nil {
		return &remote.CodeReply{Code: remote.ResultAuthKeyGenerationFailed}, nil
	}
	s.auth[authID{req.Slot, req.Name}] = k
	return &remote.CodeReply{Code: remote.ResultOK}, nil
}

// RemoveAuthKey implements remote.Server.
func (s *Service) RemoveAuthKey(_ context.Context, req *remote.AuthKeyRequest) (*remote.CodeReply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code, faulted, err := s.enter("RemoveAuthKey"); faulted {
		return &remote.CodeReply{Code: code}, err
	}
	delete(s.auth, authID{req.Slot, req.Name})
	return &remote.CodeReply{Code: remote.ResultOK}, nil
}

// HasAuthKey implements remote.Server.
func (s *Service) HasAuthKey(_ context.Context, req *remote.AuthKeyRequest) (*remote.BoolReply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, faulted, err := s.enter("HasAuthKey"); faulted {
		return &remote.BoolReply{}, err
	}
	_, ok := s.auth[authID{req.Slot, req.Name}]
	return &remote.BoolReply{Value: ok}, nil
}

// ExportAuthKey implements remote.Server.
func (s *Service) ExportAuthKey(_ context.Context, req *remote.AuthKeyRequest) (*remote.ExportReply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code, faulted, err := s.enter("ExportAuthKey"); faulted {
		return &remote.ExportReply{Code: code}, err
	}
	data, err := s.export("ExportAuthKey", s.auth[authID{req.Slot, req.Name}])
	if err != nil {
		return nil, err
	}
	return &remote.ExportReply{Data: data}, nil
}

// InitSign implements remote.Server.
func (s *Service) InitSign(_ context.Context, req *remote.InitSignRequest) (*remote.SessionReply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code, faulted, err := s.enter("InitSign"); faulted {
		return &remote.SessionReply{Code: code}, err
	}
	id := authID{req.Slot, req.Name}
	if _, ok := s.auth[id]; !ok {
		return &remote.SessionReply{Code: remote.ResultInitSignFailed}, nil
	}
	s.nextID++
	s.sessions[s.nextID] = session{id: id, challenge: req.Challenge}
	return &remote.SessionReply{Session: s.nextID, Challenge: req.Challenge, Code: remote.ResultOK}, nil
}

// FinishSign implements remote.Server. Sessions are single use; a second
// finish of the same session fails.
func (s *Service) FinishSign(_ context.Context, req *remote.FinishSignRequest) (*remote.SignReply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code, faulted, err := s.enter("FinishSign"); faulted {
		return &remote.SignReply{Code: code}, err
	}
	sess, ok := s.sessions[req.Session]
	if !ok {
		return &remote.SignReply{Code: remote.ResultSignFailed}, nil
	}
	delete(s.sessions, req.Session)

	k, ok := s.auth[sess.id]
	if !ok {
		return &remote.SignReply{Code: remote.ResultSignFailed}, nil
	}
	digest := sha256.Sum256([]byte(sess.challenge))
	sig, err := ecdsa.SignASN1(rand.Reader, k.priv, digest[:])
	if err != nil {
		return &remote.SignReply{Code: remote.ResultSignFailed}, nil
	}
	return &remote.SignReply{Signature: sig, Code: remote.ResultOK}, nil
}

// GetVersion implements remote.Server.
func (s *Service) GetVersion(_ context.Context, _ *remote.VersionRequest) (*remote.VersionReply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, faulted, err := s.enter("GetVersion"); faulted {
		return &remote.VersionReply{}, err
	}
	return &remote.VersionReply{Version: s.version}, nil
}

var _ remote.Server = (*Service)(nil)
