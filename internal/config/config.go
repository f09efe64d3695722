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

// Package config loads the securekeyctl configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeremyhahn/go-securekey/pkg/connection"
	"github.com/jeremyhahn/go-securekey/pkg/logging"
	"github.com/jeremyhahn/go-securekey/pkg/ratelimit"
	"github.com/jeremyhahn/go-securekey/pkg/securekey"
	"github.com/jeremyhahn/go-securekey/pkg/transport"
)

// Environment variables that override file settings.
const (
	EnvSocket    = "SECUREKEY_SOCKET"
	EnvTimeout   = "SECUREKEY_TIMEOUT"
	EnvSlot      = "SECUREKEY_SLOT"
	EnvLogLevel  = "SECUREKEY_LOG_LEVEL"
	EnvLogFormat = "SECUREKEY_LOG_FORMAT"
)

// Config represents the complete client configuration
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Client    ClientConfig    `yaml:"client"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServiceConfig locates the secure key service
type ServiceConfig struct {
	Socket      string        `yaml:"socket"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	AllowedUIDs []uint32      `yaml:"allowed_uids,omitempty"`
}

// ClientConfig controls the key operation client
type ClientConfig struct {
	Slot          uint32        `yaml:"slot"`
	Timeout       time.Duration `yaml:"timeout"`
	AttemptExpiry time.Duration `yaml:"attempt_expiry"`
}

// ReconnectConfig throttles automatic reconnects after the service dies
type ReconnectConfig struct {
	Enabled   bool `yaml:"enabled"`
	PerMinute int  `yaml:"per_minute"`
	Burst     int  `yaml:"burst"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig toggles Prometheus collection
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the built-in configuration.
func Default() *Config {
	rl := ratelimit.DefaultConfig()
	return &Config{
		Service: ServiceConfig{
			Socket:      transport.DefaultSocketPath,
			DialTimeout: transport.DefaultDialTimeout,
		},
		Client: ClientConfig{
			Timeout:       securekey.DefaultTimeout,
			AttemptExpiry: connection.DefaultAttemptExpiry,
		},
		Reconnect: ReconnectConfig{
			Enabled:   rl.Enabled,
			PerMinute: rl.PerMinute,
			Burst:     rl.Burst,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: logging.FormatText,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Load reads configuration from a YAML file over the defaults and applies
// environment variable overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		// #nosec G304 - Config file path is provided by admin/user
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	if socket := os.Getenv(EnvSocket); socket != "" {
		cfg.Service.Socket = socket
	}
	if timeout := os.Getenv(EnvTimeout); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			log.Printf("Warning: invalid %s value %q, using %s: %v",
				EnvTimeout, timeout, cfg.Client.Timeout, err)
		} else {
			cfg.Client.Timeout = d
		}
	}
	if slot := os.Getenv(EnvSlot); slot != "" {
		n, err := strconv.ParseUint(slot, 10, 32)
		if err != nil {
			log.Printf("Warning: invalid %s value %q, using %d: %v",
				EnvSlot, slot, cfg.Client.Slot, err)
		} else {
			cfg.Client.Slot = uint32(n)
		}
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv(EnvLogFormat); format != "" {
		cfg.Logging.Format = format
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Service.Socket == "" {
		return fmt.Errorf("service socket must be specified")
	}
	if c.Service.DialTimeout < 0 {
		return fmt.Errorf("invalid dial_timeout: %s", c.Service.DialTimeout)
	}
	if c.Client.Timeout <= 0 {
		return fmt.Errorf("invalid client timeout: %s (must be positive)", c.Client.Timeout)
	}
	if c.Client.AttemptExpiry < 0 {
		return fmt.Errorf("invalid attempt_expiry: %s", c.Client.AttemptExpiry)
	}
	if c.Reconnect.Enabled {
		if c.Reconnect.PerMinute < 1 {
			return fmt.Errorf("reconnect per_minute must be at least 1 when enabled")
		}
		if c.Reconnect.Burst < 1 {
			return fmt.Errorf("reconnect burst must be at least 1 when enabled")
		}
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	validFormats := map[string]bool{
		logging.FormatJSON: true, logging.FormatText: true,
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}
	return nil
}

// NewLogger builds the logger described by the logging section.
func (c *Config) NewLogger() *logging.Logger {
	return logging.New(&logging.Config{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
	})
}

// ReconnectLimiter builds the reconnect throttle.
func (c *Config) ReconnectLimiter() *ratelimit.Limiter {
	return ratelimit.New(&ratelimit.Config{
		Enabled:   c.Reconnect.Enabled,
		PerMinute: c.Reconnect.PerMinute,
		Burst:     c.Reconnect.Burst,
	})
}

// TransportConfig returns the connector settings.
func (c *Config) TransportConfig(logger *logging.Logger) *transport.Config {
	return &transport.Config{
		SocketPath:  c.Service.Socket,
		DialTimeout: c.Service.DialTimeout,
		AllowedUIDs: c.Service.AllowedUIDs,
		Logger:      logger,
	}
}

// SecureKeyConfig returns the key operation client settings.
func (c *Config) SecureKeyConfig(logger *logging.Logger) *securekey.Config {
	return &securekey.Config{
		Slot:          c.Client.Slot,
		Timeout:       c.Client.Timeout,
		AttemptExpiry: c.Client.AttemptExpiry,
		Reconnect:     c.ReconnectLimiter(),
		Logger:        logger,
	}
}
