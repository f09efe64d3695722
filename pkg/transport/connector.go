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

// Package transport connects the client to the secure key service over
// gRPC on a Unix domain socket.
//
// Connector implements connection.Connector: each connect request dials on
// its own goroutine and reports back through the listener. The Endpoint it
// delivers watches the channel's connectivity state and reports death when
// the channel leaves READY. Server hosts any remote.Server on a socket.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/jeremyhahn/go-securekey/pkg/connection"
	"github.com/jeremyhahn/go-securekey/pkg/correlation"
	"github.com/jeremyhahn/go-securekey/pkg/logging"
	"github.com/jeremyhahn/go-securekey/pkg/metrics"
	"github.com/jeremyhahn/go-securekey/pkg/remote"
)

// DefaultSocketPath is where the secure key service listens.
const DefaultSocketPath = "/var/run/securekey/securekey.sock"

// DefaultDialTimeout bounds one connect request, probe included.
const DefaultDialTimeout = 5 * time.Second

var (
	// ErrNoSocket is returned by NewConnector without a socket path.
	ErrNoSocket = errors.New("transport: socket path is required")

	// ErrUnreachable means the channel failed before becoming ready.
	ErrUnreachable = errors.New("transport: service unreachable")

	// ErrNotServing means the health probe reported the service down.
	ErrNotServing = errors.New("transport: service not serving")

	// ErrPeerRejected means the socket peer failed the credential check.
	ErrPeerRejected = errors.New("transport: peer credentials rejected")
)

// Config configures a Connector.
type Config struct {
	// SocketPath is the service socket. Defaults to DefaultSocketPath.
	SocketPath string

	// DialTimeout bounds each connect request. Defaults to
	// DefaultDialTimeout.
	DialTimeout time.Duration

	// Keepalive pings detect a peer that vanished without closing the
	// socket.
	Keepalive keepalive.ClientParameters

	// MaxMsgSize caps request and reply sizes. Defaults to 4MB.
	MaxMsgSize int

	// AllowedUIDs, when non-empty, restricts the socket peer to these user
	// ids. Only supported on Linux.
	AllowedUIDs []uint32

	Logger *logging.Logger
}

// Connector dials the service. It is safe for concurrent use.
type Connector struct {
	cfg    Config
	logger *logging.Logger

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]context.CancelFunc
}

var _ connection.Connector = (*Connector)(nil)

// NewConnector validates cfg and fills in defaults.
func NewConnector(cfg *Config) (*Connector, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	c := *cfg
	if c.SocketPath == "" {
		c.SocketPath = DefaultSocketPath
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.Keepalive.Time == 0 {
		c.Keepalive = keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             3 * time.Second,
			PermitWithoutStream: true,
		}
	}
	if c.MaxMsgSize <= 0 {
		c.MaxMsgSize = 4 * 1024 * 1024
	}
	if c.Logger == nil {
		c.Logger = logging.DefaultLogger()
	}
	return &Connector{
		cfg:     c,
		logger:  c.Logger.With("component", "transport", "socket", c.SocketPath),
		pending: make(map[uint64]context.CancelFunc),
	}, nil
}

// SocketPath returns the socket the connector dials.
func (c *Connector) SocketPath() string {
	return c.cfg.SocketPath
}

// Connect starts dialing and returns immediately. The outcome is reported
// to l from another goroutine.
func (c *Connector) Connect(l connection.Listener) error {
	if l == nil {
		return errors.New("transport: listener is required")
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.DialTimeout)

	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.pending[id] = cancel
	c.mu.Unlock()

	go func() {
		defer c.done(id)

		ep, err := c.open(ctx)
		if err != nil {
			c.logger.Warn("connect failed", "error", err)
			l.OnDisconnected(err)
			return
		}
		l.OnConnected(ep)
	}()
	return nil
}

// Disconnect abandons every dial still in flight. Endpoints already
// delivered are owned by the listener.
func (c *Connector) Disconnect() {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[uint64]context.CancelFunc)
	c.mu.Unlock()

	for _, cancel := range pending {
		cancel()
	}
}

func (c *Connector) done(id uint64) {
	c.mu.Lock()
	cancel, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()
	if ok {
		cancel()
	}
}

// open dials, waits for READY and probes the service.
func (c *Connector) open(ctx context.Context) (*Endpoint, error) {
	opts := []grpc.DialOption{
		grpc.WithContextDialer(c.dial),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(c.cfg.Keepalive),
		// A quiet channel must stay READY; leaving READY means death.
		grpc.WithIdleTimeout(0),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(c.cfg.MaxMsgSize),
			grpc.MaxCallSendMsgSize(c.cfg.MaxMsgSize),
		),
		grpc.WithChainUnaryInterceptor(
			correlation.UnaryClientInterceptor(),
			metrics.GRPCUnaryClientInterceptor(),
		),
	}

	// passthrough bypasses the resolver so the dialer sees the raw path.
	cc, err := grpc.NewClient("passthrough:///"+c.cfg.SocketPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	cc.Connect()

	if err := waitReady(ctx, cc); err != nil {
		_ = cc.Close()
		return nil, err
	}
	if err := probe(ctx, cc); err != nil {
		_ = cc.Close()
		return nil, err
	}

	c.logger.Debug("connected")
	return newEndpoint(cc, c.logger), nil
}

func (c *Connector) dial(ctx context.Context, _ string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.cfg.SocketPath)
	if err != nil {
		return nil, err
	}
	if len(c.cfg.AllowedUIDs) > 0 {
		if err := checkPeer(conn, c.cfg.AllowedUIDs); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

// waitReady blocks until cc is READY. A channel that fails before ever
// becoming ready is reported as unreachable rather than retried.
func waitReady(ctx context.Context, cc *grpc.ClientConn) error {
	for {
		state := cc.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.TransientFailure, connectivity.Shutdown:
			return fmt.Errorf("%w: channel %s", ErrUnreachable, state)
		}
		if !cc.WaitForStateChange(ctx, state) {
			return fmt.Errorf("%w: %v", ErrUnreachable, ctx.Err())
		}
	}
}

// probe asks the standard health service about the secure key service and
// falls back to GetVersion when the health service is not registered.
func probe(ctx context.Context, cc *grpc.ClientConn) error {
	resp, err := healthpb.NewHealthClient(cc).Check(ctx, &healthpb.HealthCheckRequest{
		Service: remote.ServiceName,
	})
	switch {
	case err == nil:
		if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			return fmt.Errorf("%w: %s", ErrNotServing, resp.GetStatus())
		}
		return nil
	case status.Code(err) == codes.Unimplemented:
		var reply remote.VersionReply
		if err := NewGRPCChannel(cc).Invoke(ctx, remote.MethodGetVersion, &remote.VersionRequest{}, &reply); err != nil {
			return fmt.Errorf("%w: %v", ErrNotServing, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %v", ErrNotServing, err)
	}
}
