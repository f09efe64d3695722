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
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-securekey/pkg/validation"
)

func newSignCmd(cfg *Config) *cobra.Command {
	signCmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign challenges with an auth key",
		Long: `Sign a challenge in two steps: "init" opens a session over the
challenge and "finish" completes it. A session can be finished once.`,
	}

	signCmd.AddCommand(&cobra.Command{
		Use:   "init <name> <challenge>",
		Short: "Open a sign session",
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.ExactArgs(2)(cmd, args); err != nil {
				return err
			}
			if err := validation.ValidateKeyName(args[0]); err != nil {
				return err
			}
			return validation.ValidateChallenge(args[1])
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cfg.session(cmd)
			if err != nil {
				return err
			}
			defer client.Teardown()

			session, err := client.InitSign(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return cfg.printer(cmd).PrintSignSession(session)
		},
	})

	signCmd.AddCommand(&cobra.Command{
		Use:   "finish <session>",
		Short: "Complete a sign session and print the signature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid session %q: %w", args[0], err)
			}

			client, err := cfg.session(cmd)
			if err != nil {
				return err
			}
			defer client.Teardown()

			sig, err := client.FinishSign(cmd.Context(), id)
			if err != nil {
				return err
			}
			return cfg.printer(cmd).PrintSignature(sig)
		},
	})

	return signCmd
}
