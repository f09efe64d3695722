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

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-securekey/pkg/validation"
)

func newAuthCmd(cfg *Config) *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage auth keys",
		Long:  `Generate, remove, inspect and export auth keys derived from the global key`,
	}

	authCmd.AddCommand(&cobra.Command{
		Use:   "generate <name>",
		Short: "Generate an auth key",
		Args:  keyNameArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cfg.session(cmd)
			if err != nil {
				return err
			}
			defer client.Teardown()

			if err := client.GenerateAuthKey(cmd.Context(), args[0]); err != nil {
				return err
			}
			return cfg.printer(cmd).PrintSuccess(fmt.Sprintf("Auth key generated: %s", args[0]))
		},
	})

	removeCmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove an auth key",
		Args:  keyNameArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			withGlobal, _ := cmd.Flags().GetBool("with-global")

			client, err := cfg.session(cmd)
			if err != nil {
				return err
			}
			defer client.Teardown()

			printVerbose(cmd, cfg, "Removing auth key %s (with global: %v)", args[0], withGlobal)
			if err := client.RemoveAuthKey(cmd.Context(), args[0], withGlobal); err != nil {
				return err
			}
			msg := fmt.Sprintf("Auth key removed: %s", args[0])
			if withGlobal {
				msg += " (global key removed)"
			}
			return cfg.printer(cmd).PrintSuccess(msg)
		},
	}
	removeCmd.Flags().Bool("with-global", false, "also remove the global key")
	authCmd.AddCommand(removeCmd)

	authCmd.AddCommand(&cobra.Command{
		Use:   "has <name>",
		Short: "Report whether an auth key exists",
		Args:  keyNameArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cfg.session(cmd)
			if err != nil {
				return err
			}
			defer client.Teardown()

			has, err := client.HasAuthKey(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return cfg.printer(cmd).PrintExists(args[0], has)
		},
	})

	authCmd.AddCommand(&cobra.Command{
		Use:   "export <name>",
		Short: "Print an auth key record",
		Args:  keyNameArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cfg.session(cmd)
			if err != nil {
				return err
			}
			defer client.Teardown()

			d, err := client.AuthKeyDescriptor(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return cfg.printer(cmd).PrintDescriptor(args[0], d)
		},
	})

	authCmd.AddCommand(&cobra.Command{
		Use:   "valid <name>",
		Short: "Report whether an auth key exists and its record is retrievable",
		Args:  keyNameArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cfg.session(cmd)
			if err != nil {
				return err
			}
			defer client.Teardown()

			return cfg.printer(cmd).PrintValid(args[0], client.AuthKeyIsValid(cmd.Context(), args[0]))
		},
	})

	return authCmd
}

// keyNameArg accepts exactly one valid auth key name.
func keyNameArg(cmd *cobra.Command, args []string) error {
	if err := cobra.ExactArgs(1)(cmd, args); err != nil {
		return err
	}
	return validation.ValidateKeyName(args[0])
}
