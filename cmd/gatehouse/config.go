// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/gatehouse/gatehouse/internal/xdg"
)

// serveConfig holds configuration for the serve command. Keys mirror the
// flag names so a YAML config file and the command line describe the same
// settings.
type serveConfig struct {
	MetricsAddr      string        `koanf:"metrics-addr"`
	LogFormat        string        `koanf:"log-format"`
	AutoMigrate      bool          `koanf:"auto-migrate"`
	AuditBuffer      int           `koanf:"audit-buffer"`
	SessionIdleAfter time.Duration `koanf:"session-idle-timeout"`
	SessionRetention time.Duration `koanf:"session-retention"`
	SweepInterval    time.Duration `koanf:"sweep-interval"`
}

// Validate checks that the configuration is valid.
func (cfg *serveConfig) Validate() error {
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return oops.Code("CONFIG_INVALID").
			Errorf("log-format must be 'json' or 'text', got %q", cfg.LogFormat)
	}
	if cfg.AuditBuffer < 0 {
		return oops.Code("CONFIG_INVALID").
			Errorf("audit-buffer cannot be negative")
	}
	if cfg.SessionIdleAfter <= 0 {
		return oops.Code("CONFIG_INVALID").
			Errorf("session-idle-timeout must be positive")
	}
	if cfg.SessionRetention < cfg.SessionIdleAfter {
		return oops.Code("CONFIG_INVALID").
			Errorf("session-retention cannot be shorter than session-idle-timeout")
	}
	if cfg.SweepInterval <= 0 {
		return oops.Code("CONFIG_INVALID").
			Errorf("sweep-interval must be positive")
	}
	return nil
}

// loadServeConfig layers configuration: flag defaults, then the YAML config
// file, then GATEHOUSE_* environment variables, then flags the operator set
// explicitly. When no --config path is given, the XDG config file is used if
// it exists.
func loadServeConfig(path string, flags *pflag.FlagSet) (*serveConfig, error) {
	k := koanf.New(".")

	if path == "" {
		if candidate := xdg.DefaultConfigFile(); fileExists(candidate) {
			path = candidate
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_INVALID").
				With("path", path).
				Wrap(err)
		}
	}

	// GATEHOUSE_METRICS_ADDR maps to the metrics-addr key and so on.
	if err := k.Load(env.Provider("GATEHOUSE_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "GATEHOUSE_")), "_", "-")
	}), nil); err != nil {
		return nil, oops.Code("CONFIG_INVALID").
			With("operation", "merge environment").
			Wrap(err)
	}

	// Flag defaults fill gaps; explicitly set flags win over file and
	// environment.
	if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
		return nil, oops.Code("CONFIG_INVALID").
			With("operation", "merge flags").
			Wrap(err)
	}

	cfg := &serveConfig{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").
			With("operation", "unmarshal config").
			Wrap(err)
	}
	return cfg, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// getDatabaseURL reads the PostgreSQL connection string from the
// environment. Connection strings carry credentials, so they never live in
// config files or flags.
func getDatabaseURL() (string, error) {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return "", oops.Code("CONFIG_INVALID").
			Errorf("DATABASE_URL environment variable is required")
	}
	return databaseURL, nil
}
