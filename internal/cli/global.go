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
	"github.com/spf13/cobra"
)

const globalKeyName = "global"

func newGlobalCmd(cfg *Config) *cobra.Command {
	globalCmd := &cobra.Command{
		Use:   "global",
		Short: "Manage the application global key",
		Long:  `Generate, remove, inspect and export the global key of the configured slot`,
	}

	globalCmd.AddCommand(&cobra.Command{
		Use:   "generate",
		Short: "Generate the global key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cfg.session(cmd)
			if err != nil {
				return err
			}
			defer client.Teardown()

			if err := client.GenerateGlobalKey(cmd.Context()); err != nil {
				return err
			}
			return cfg.printer(cmd).PrintSuccess("Global key generated")
		},
	})

	globalCmd.AddCommand(&cobra.Command{
		Use:   "remove",
		Short: "Remove the global key and every auth key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cfg.session(cmd)
			if err != nil {
				return err
			}
			defer client.Teardown()

			if err := client.RemoveGlobalKey(cmd.Context()); err != nil {
				return err
			}
			return cfg.printer(cmd).PrintSuccess("Global key removed")
		},
	})

	globalCmd.AddCommand(&cobra.Command{
		Use:   "has",
		Short: "Report whether the global key exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cfg.session(cmd)
			if err != nil {
				return err
			}
			defer client.Teardown()

			has, err := client.HasGlobalKey(cmd.Context())
			if err != nil {
				return err
			}
			return cfg.printer(cmd).PrintExists(globalKeyName, has)
		},
	})

	globalCmd.AddCommand(&cobra.Command{
		Use:   "export",
		Short: "Print the global key record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cfg.session(cmd)
			if err != nil {
				return err
			}
			defer client.Teardown()

			d, err := client.GlobalKeyDescriptor(cmd.Context())
			if err != nil {
				return err
			}
			return cfg.printer(cmd).PrintDescriptor(globalKeyName, d)
		},
	})

	globalCmd.AddCommand(&cobra.Command{
		Use:   "valid",
		Short: "Report whether the global key exists and its record is retrievable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cfg.session(cmd)
			if err != nil {
				return err
			}
			defer client.Teardown()

			return cfg.printer(cmd).PrintValid(globalKeyName, client.GlobalKeyIsValid(cmd.Context()))
		},
	})

	return globalCmd
}
