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
	"errors"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-securekey/pkg/health"
)

var errUnhealthy = errors.New("secure key client is unhealthy")

func newStatusCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show client health and connection state",
		Long: `Connect to the service and report the capability, connection and
service checks. Exits non-zero when the client is unhealthy.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := cfg.open(cmd)
			if err != nil {
				return err
			}
			defer client.Teardown()

			report := client.Check(cmd.Context())
			if err := cfg.printer(cmd).PrintStatus(cfg.Settings.Service.Socket, report, client.Stats()); err != nil {
				return err
			}
			if report.Status == health.StatusUnhealthy {
				return errUnhealthy
			}
			return nil
		},
	}
}
