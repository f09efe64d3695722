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

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/jeremyhahn/go-securekey/pkg/correlation"
	"github.com/jeremyhahn/go-securekey/pkg/logging"
	"github.com/jeremyhahn/go-securekey/pkg/remote"
)

// ServerConfig holds the Unix socket server configuration.
type ServerConfig struct {
	// SocketPath is the path to the Unix socket file
	SocketPath string

	// SocketMode is the file mode for the socket (default: 0660)
	SocketMode os.FileMode

	Logger *logging.Logger

	// MaxMsgSize is the maximum message size in either direction (default: 4MB)
	MaxMsgSize int

	// ConnectionTimeout is the maximum duration for connection establishment
	ConnectionTimeout time.Duration

	// MaxConcurrentStreams is the maximum number of concurrent streams per connection
	MaxConcurrentStreams uint32

	// DisableHealth leaves the gRPC health service unregistered
	DisableHealth bool
}

// Server hosts a remote.Server on a Unix domain socket.
type Server struct {
	config   ServerConfig
	service  remote.Server
	logger   *logging.Logger
	health   *health.Server
	mu       sync.RWMutex
	server   *grpc.Server
	listener net.Listener
}

// NewServer creates a server for svc. Nothing listens until Listen.
func NewServer(cfg *ServerConfig, svc remote.Server) (*Server, error) {
	if svc == nil {
		return nil, errors.New("transport: service is required")
	}
	if cfg == nil {
		cfg = &ServerConfig{}
	}
	c := *cfg
	if c.SocketPath == "" {
		c.SocketPath = DefaultSocketPath
	}
	if c.SocketMode == 0 {
		c.SocketMode = 0660
	}
	if c.Logger == nil {
		c.Logger = logging.DefaultLogger()
	}
	if c.MaxMsgSize == 0 {
		c.MaxMsgSize = 4 * 1024 * 1024
	}
	if c.ConnectionTimeout == 0 {
		c.ConnectionTimeout = 120 * time.Second
	}
	if c.MaxConcurrentStreams == 0 {
		c.MaxConcurrentStreams = 100
	}
	return &Server{
		config:  c,
		service: svc,
		logger:  c.Logger.With("component", "transport-server", "socket", c.SocketPath),
	}, nil
}

// Listen creates the socket and registers the services. A stale socket
// file at the path is removed first.
func (s *Server) Listen() error {
	socketDir := filepath.Dir(s.config.SocketPath)
	if err := os.MkdirAll(socketDir, 0750); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}
	if err := os.Remove(s.config.SocketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", s.config.SocketPath)
	if err != nil {
		return fmt.Errorf("failed to create Unix socket listener: %w", err)
	}
	if err := os.Chmod(s.config.SocketPath, s.config.SocketMode); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	srv := grpc.NewServer(
		grpc.MaxRecvMsgSize(s.config.MaxMsgSize),
		grpc.MaxSendMsgSize(s.config.MaxMsgSize),
		grpc.ConnectionTimeout(s.config.ConnectionTimeout),
		grpc.MaxConcurrentStreams(s.config.MaxConcurrentStreams),
		grpc.ChainUnaryInterceptor(correlation.UnaryServerInterceptor()),
	)
	remote.RegisterServer(srv, s.service)

	s.mu.Lock()
	if !s.config.DisableHealth {
		s.health = health.NewServer()
		s.health.SetServingStatus(remote.ServiceName, healthpb.HealthCheckResponse_SERVING)
		healthpb.RegisterHealthServer(srv, s.health)
	}
	s.server = srv
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("Unix socket created")
	return nil
}

// Serve blocks serving connections until Stop.
func (s *Server) Serve() error {
	s.mu.RLock()
	srv, lis := s.server, s.listener
	s.mu.RUnlock()
	if srv == nil {
		return errors.New("transport: server is not listening")
	}

	s.logger.Info("serving")
	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("unix socket server error: %w", err)
	}
	return nil
}

// Start listens and serves.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// SetServing flips the health status reported for the service.
func (s *Server) SetServing(serving bool) {
	s.mu.RLock()
	h := s.health
	s.mu.RUnlock()
	if h == nil {
		return
	}
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	h.SetServingStatus(remote.ServiceName, st)
}

// Stop gracefully stops the server, forcing shutdown when ctx ends first,
// and removes the socket file.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()

	if srv != nil {
		stopped := make(chan struct{})
		go func() {
			srv.GracefulStop()
			close(stopped)
		}()

		select {
		case <-stopped:
			s.logger.Info("stopped gracefully")
		case <-ctx.Done():
			s.logger.Warn("graceful stop timed out, forcing shutdown")
			srv.Stop()
		}
	}

	if err := os.Remove(s.config.SocketPath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove socket file", "error", err)
	}
	return nil
}

// Kill closes every connection immediately, as a crashing service would.
func (s *Server) Kill() {
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()
	if srv != nil {
		srv.Stop()
	}
}

// SocketPath returns the path to the Unix socket.
func (s *Server) SocketPath() string {
	return s.config.SocketPath
}
