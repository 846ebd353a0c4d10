// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the relay configuration from a single YAML
// file. There is no automatic discovery and environment variables do
// not override file values; the file is the source of truth, which
// keeps deployments auditable.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the relay configuration.
type Config struct {
	// Listen configures the network endpoints.
	Listen ListenConfig `yaml:"listen"`

	// Database configures durable storage.
	Database DatabaseConfig `yaml:"database"`

	// Auth configures credential verification.
	Auth AuthConfig `yaml:"auth"`

	// Reaper configures the liveness sweep.
	Reaper ReaperConfig `yaml:"reaper"`

	// Limits bounds per-connection resource use.
	Limits LimitsConfig `yaml:"limits"`
}

// ListenConfig holds the bind addresses.
type ListenConfig struct {
	// Relay is the TCP address for persistent signal connections
	// (e.g., ":7450"). Use ":0" for a random port in tests.
	Relay string `yaml:"relay"`

	// API is the HTTP address for the request/response boundary
	// (license management, stats, one-shot trade submission).
	API string `yaml:"api"`
}

// DatabaseConfig holds storage parameters.
type DatabaseConfig struct {
	// Path is the SQLite database file. The parent directory must
	// exist. Required.
	Path string `yaml:"path"`

	// PoolSize is the connection pool size. Zero means the
	// sqlitepool default.
	PoolSize int `yaml:"pool_size"`
}

// AuthConfig holds credential material locations.
type AuthConfig struct {
	// MasterPublicKey is the path to the hex-encoded Ed25519 public
	// key that master API keys are verified against. Required.
	MasterPublicKey string `yaml:"master_public_key"`

	// AdminToken gates the HTTP license-management and stats
	// endpoints. Required when the API listener is enabled.
	AdminToken string `yaml:"admin_token"`
}

// ReaperConfig holds the liveness sweep parameters.
type ReaperConfig struct {
	// Interval is how often the sweep runs. Default 1m.
	Interval Duration `yaml:"interval"`

	// SessionTimeout is the silence threshold past which a session
	// is evicted. Default 5m.
	SessionTimeout Duration `yaml:"session_timeout"`

	// LogRetention is how many event-log rows survive a trim.
	// Default 10000.
	LogRetention int `yaml:"log_retention"`
}

// LimitsConfig bounds per-connection resource use.
type LimitsConfig struct {
	// MaxMessageBytes caps a single inbound CBOR message. Default 64 KiB.
	MaxMessageBytes int `yaml:"max_message_bytes"`
}

// Duration is a time.Duration that YAML-decodes from strings like
// "90s" or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var text string
	if err := node.Decode(&text); err != nil {
		return fmt.Errorf("config: duration must be a string like \"5m\": %w", err)
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("config: parsing duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the base configuration applied before the file is
// read. The file is still required; these exist so optional fields
// have sensible values, not as a zero-config mode.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{
			Relay: ":7450",
			API:   ":7451",
		},
		Database: DatabaseConfig{},
		Reaper: ReaperConfig{
			Interval:       Duration(time.Minute),
			SessionTimeout: Duration(5 * time.Minute),
			LogRetention:   10000,
		},
		Limits: LimitsConfig{
			MaxMessageBytes: 64 * 1024,
		},
	}
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors. All problems are
// reported at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Listen.Relay == "" {
		errs = append(errs, fmt.Errorf("listen.relay is required"))
	}
	if c.Database.Path == "" {
		errs = append(errs, fmt.Errorf("database.path is required"))
	}
	if c.Auth.MasterPublicKey == "" {
		errs = append(errs, fmt.Errorf("auth.master_public_key is required"))
	}
	if c.Listen.API != "" && c.Auth.AdminToken == "" {
		errs = append(errs, fmt.Errorf("auth.admin_token is required when listen.api is set"))
	}
	if c.Reaper.Interval.Std() <= 0 {
		errs = append(errs, fmt.Errorf("reaper.interval must be positive"))
	}
	if c.Reaper.SessionTimeout.Std() <= 0 {
		errs = append(errs, fmt.Errorf("reaper.session_timeout must be positive"))
	}
	if c.Reaper.LogRetention <= 0 {
		errs = append(errs, fmt.Errorf("reaper.log_retention must be positive"))
	}
	if c.Limits.MaxMessageBytes <= 0 {
		errs = append(errs, fmt.Errorf("limits.max_message_bytes must be positive"))
	}

	return errors.Join(errs...)
}
