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

// Package cli implements the securekeyctl command tree.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-securekey/pkg/validation"
)

// NewRootCmd builds the securekeyctl command tree.
func NewRootCmd() *cobra.Command {
	cfg := NewConfig()

	rootCmd := &cobra.Command{
		Use:   "securekeyctl",
		Short: "securekeyctl - secure key service client",
		Long: `securekeyctl talks to the local secure key service over its Unix
socket. It manages the application global key and the auth keys derived
from it, and runs challenge signing sessions.

Settings come from flags, then SECUREKEY_* environment variables, then
the optional YAML config file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cfg.bind(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfg.ConfigFile, "config", "", "config file (YAML)")
	flags.String("socket", "", "service socket path")
	flags.Duration("timeout", 0, "connection wait per operation")
	flags.Uint32("slot", 0, "application slot")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.StringP("output", "o", "text", "output format (text, json, table)")
	flags.BoolP("verbose", "v", false, "verbose output")

	rootCmd.AddCommand(
		newVersionCmd(cfg),
		newGlobalCmd(cfg),
		newAuthCmd(cfg),
		newSignCmd(cfg),
		newStatusCmd(cfg),
		newServeCmd(cfg),
	)
	return rootCmd
}

// Execute runs the command tree and prints any error in the requested
// output format.
func Execute() error {
	return run(NewRootCmd(), os.Args[1:], os.Stdout, os.Stderr)
}

func run(rootCmd *cobra.Command, args []string, stdout, stderr io.Writer) error {
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	err := rootCmd.Execute()
	if err != nil {
		format, _ := rootCmd.PersistentFlags().GetString("output")
		_ = NewPrinter(format, stderr).PrintError(err) // best-effort
	}
	return err
}

// newViper returns a viper instance reading SECUREKEY_* variables.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("SECUREKEY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// printVerbose prints a message if verbose mode is enabled
func printVerbose(cmd *cobra.Command, cfg *Config, format string, args ...any) {
	if cfg.Verbose {
		msg := validation.SanitizeForLog(fmt.Sprintf(format, args...))
		fmt.Fprintf(cmd.ErrOrStderr(), "[VERBOSE] %s\n", msg)
	}
}
