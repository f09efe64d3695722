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

package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-securekey/pkg/remote/remotetest"
	"github.com/jeremyhahn/go-securekey/pkg/transport"
)

func newServeCmd(cfg *Config) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an in-memory development service on the socket",
		Long: `Serve the secure key protocol on the configured socket from an
in-memory service with software keys. Keys do not survive a restart.
Intended for development and integration testing only.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, _ := cmd.Flags().GetUint32("socket-mode")
			version, _ := cmd.Flags().GetInt32("service-version")

			svc := remotetest.NewService()
			svc.SetVersion(version)

			logger := cfg.logger(cmd)
			srv, err := transport.NewServer(&transport.ServerConfig{
				SocketPath: cfg.Settings.Service.Socket,
				SocketMode: os.FileMode(mode),
				Logger:     logger,
			}, svc)
			if err != nil {
				return err
			}
			if err := srv.Listen(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Serve() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Stop(shutdownCtx); err != nil {
				return err
			}
			return <-errCh
		},
	}
	serveCmd.Flags().Uint32("socket-mode", 0660, "socket file mode")
	serveCmd.Flags().Int32("service-version", remotetest.DefaultVersion, "version reported by the service")
	return serveCmd
}
