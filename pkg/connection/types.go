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

package connection

import (
	"errors"

	"github.com/jeremyhahn/go-securekey/pkg/remote"
)

var (
	// ErrNotConnected is returned by Manager.Channel when no endpoint is installed.
	ErrNotConnected = errors.New("connection: not connected")

	// ErrClosed is returned after Teardown.
	ErrClosed = errors.New("connection: manager closed")

	// ErrEndpointDead is returned by Endpoint.LinkToDeath for an endpoint
	// that already died.
	ErrEndpointDead = errors.New("connection: endpoint is dead")
)

// State is the connection state of a Manager.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Listener receives the outcome of a connect request. Either method may be
// called on any goroutine, at any time after Connect returns, including
// after the caller stopped waiting.
type Listener interface {
	// OnConnected delivers a live endpoint.
	OnConnected(ep Endpoint)
	// OnDisconnected reports that the attempt failed or that the service
	// behind a delivered endpoint went away.
	OnDisconnected(err error)
}

// Connector is the platform side of a connection: it knows how to locate
// and bind the secure key service.
type Connector interface {
	// Connect starts a connect attempt and returns without waiting for it.
	// A non-nil error means the request could not even be issued.
	Connect(l Listener) error
	// Disconnect releases the platform binding.
	Disconnect()
}

// Endpoint is a live binding to the service.
type Endpoint interface {
	// Channel returns the transport used for remote calls.
	Channel() remote.Channel
	// LinkToDeath registers fn to run once when the endpoint dies. fn must
	// never be called synchronously from LinkToDeath; an endpoint that is
	// already dead returns ErrEndpointDead instead. unlink cancels the
	// registration and must not block.
	LinkToDeath(fn func()) (unlink func(), err error)
	// Close releases the endpoint.
	Close() error
}

// Stats is a snapshot of manager counters.
type Stats struct {
	State      State  `json:"state" yaml:"state"`
	Attempts   uint64 `json:"attempts" yaml:"attempts"`
	Deaths     uint64 `json:"deaths" yaml:"deaths"`
	Generation uint64 `json:"generation" yaml:"generation"`
	Closed     bool   `json:"closed" yaml:"closed"`
}
