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

	"github.com/jeremyhahn/go-securekey/internal/config"
	"github.com/jeremyhahn/go-securekey/pkg/logging"
	"github.com/jeremyhahn/go-securekey/pkg/metrics"
	"github.com/jeremyhahn/go-securekey/pkg/securekey"
	"github.com/jeremyhahn/go-securekey/pkg/transport"
)

// Config holds global CLI configuration
type Config struct {
	// ConfigFile is the path to the configuration file
	ConfigFile string

	// OutputFormat controls output formatting (json, text, table)
	OutputFormat string

	// Verbose enables verbose logging
	Verbose bool

	// Settings is the resolved client configuration, available once the
	// command's flags are bound.
	Settings *config.Config
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		OutputFormat: string(OutputFormatText),
		Settings:     config.Default(),
	}
}

// bind resolves the settings for cmd. Flags win over SECUREKEY_*
// environment variables, which win over the config file.
func (c *Config) bind(cmd *cobra.Command) error {
	v := newViper()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	if c.ConfigFile == "" {
		c.ConfigFile = v.GetString("config")
	}
	settings, err := config.Load(c.ConfigFile)
	if err != nil {
		return err
	}

	if v.IsSet("socket") {
		settings.Service.Socket = v.GetString("socket")
	}
	if v.IsSet("timeout") {
		settings.Client.Timeout = v.GetDuration("timeout")
	}
	if v.IsSet("slot") {
		settings.Client.Slot = v.GetUint32("slot")
	}
	c.Verbose = v.GetBool("verbose")
	switch {
	case v.IsSet("log-level"):
		settings.Logging.Level = v.GetString("log-level")
	case c.Verbose:
		settings.Logging.Level = "debug"
	case c.ConfigFile == "":
		// Keep one-shot commands quiet unless asked.
		settings.Logging.Level = "warn"
	}
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	c.OutputFormat = v.GetString("output")
	if !ValidOutputFormat(c.OutputFormat) {
		return fmt.Errorf("unknown output format: %s", c.OutputFormat)
	}

	if settings.Metrics.Enabled {
		metrics.Enable()
	} else {
		metrics.Disable()
	}

	c.Settings = settings
	return nil
}

// logger builds the command logger on the command's error stream.
func (c *Config) logger(cmd *cobra.Command) *logging.Logger {
	return logging.New(&logging.Config{
		Level:  c.Settings.Logging.Level,
		Format: c.Settings.Logging.Format,
		Output: cmd.ErrOrStderr(),
	})
}

// printer returns a printer for the command's output stream.
func (c *Config) printer(cmd *cobra.Command) *Printer {
	return NewPrinter(c.OutputFormat, cmd.OutOrStdout())
}

// open creates a client bound to the configured socket and waits for the
// first connection. The client is returned even when that wait failed;
// connected reports the outcome. Callers must Teardown the client.
func (c *Config) open(cmd *cobra.Command) (client *securekey.Client, connected bool, err error) {
	logger := c.logger(cmd)
	connector, err := transport.NewConnector(c.Settings.TransportConfig(logger))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create connector: %w", err)
	}

	printVerbose(cmd, c, "Connecting to %s (slot %d)", c.Settings.Service.Socket, c.Settings.Client.Slot)
	client = securekey.New(c.Settings.SecureKeyConfig(logger))
	connected = client.Init(cmd.Context(), connector)
	return client, connected, nil
}

// session opens a connected client or fails.
func (c *Config) session(cmd *cobra.Command) (*securekey.Client, error) {
	client, connected, err := c.open(cmd)
	if err != nil {
		return nil, err
	}
	if !connected {
		client.Teardown()
		return nil, fmt.Errorf("secure key service not reachable at %s", c.Settings.Service.Socket)
	}
	return client, nil
}
