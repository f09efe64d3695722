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
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version information (injected at build time via -ldflags)
var (
	Version   = "dev"     // Set via -ldflags "-X github.com/jeremyhahn/go-securekey/internal/cli.Version=x.y.z"
	GitCommit = "unknown" // Set via -ldflags "-X github.com/jeremyhahn/go-securekey/internal/cli.GitCommit=abc123"
	BuildDate = "unknown" // Set via -ldflags "-X github.com/jeremyhahn/go-securekey/internal/cli.BuildDate=2025-01-15"
)

func newVersionCmd(cfg *Config) *cobra.Command {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Print the version information for securekeyctl and, with --service, the service version`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			withService, _ := cmd.Flags().GetBool("service")
			printer := cfg.printer(cmd)

			if !withService {
				if cfg.OutputFormat == string(OutputFormatJSON) {
					return printer.printJSON(map[string]interface{}{
						"version":    Version,
						"commit":     GitCommit,
						"build_date": BuildDate,
						"go_version": runtime.Version(),
						"os":         runtime.GOOS,
						"arch":       runtime.GOARCH,
					})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "securekeyctl version %s\n", Version)
				fmt.Fprintf(out, "Git commit: %s\n", GitCommit)
				fmt.Fprintf(out, "Build date: %s\n", BuildDate)
				fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
				fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
				return nil
			}

			client, err := cfg.session(cmd)
			if err != nil {
				return err
			}
			defer client.Teardown()

			v, err := client.Version(cmd.Context())
			if err != nil {
				return err
			}
			return printer.PrintServiceVersion(v)
		},
	}
	versionCmd.Flags().Bool("service", false, "query the service version")
	return versionCmd
}
