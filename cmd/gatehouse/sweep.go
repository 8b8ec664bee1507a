// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/auth"
	authpg "github.com/gatehouse/gatehouse/internal/auth/postgres"
	"github.com/gatehouse/gatehouse/internal/store"
)

// Default timeout for sweep database operations.
const defaultSweepTimeout = 30 * time.Second

// sweepConfig holds configuration for the sweep command.
type sweepConfig struct {
	idleTimeout time.Duration
	retention   time.Duration
	timeout     time.Duration
}

// NewSweepCmd creates the sweep subcommand.
func NewSweepCmd() *cobra.Command {
	cfg := &sweepConfig{}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one maintenance sweep",
		Long: `Deactivates device sessions idle longer than the idle timeout, deletes
inactive session rows past the retention window, and clears expired
password-reset challenges. The serve command runs the same sweep
periodically; this one-shot form suits cron-style scheduling.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd, args, cfg)
		},
	}

	cmd.Flags().DurationVar(&cfg.idleTimeout, "idle-timeout", defaultSessionIdleTimeout, "deactivate active sessions idle longer than this")
	cmd.Flags().DurationVar(&cfg.retention, "retention", defaultSessionRetention, "delete inactive session rows older than this")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultSweepTimeout, "timeout for database operations (e.g., 30s, 1m)")

	return cmd
}

func runSweep(cmd *cobra.Command, _ []string, cfg *sweepConfig) error {
	databaseURL, err := getDatabaseURL()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.timeout)
	defer cancel()

	st, err := store.Open(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer st.Close()

	users := authpg.NewUserRepository(st.Pool())
	sessions := authpg.NewDeviceSessionRepository(st.Pool())

	registry, err := auth.NewDeviceRegistry(sessions, nil, slog.Default())
	if err != nil {
		return err
	}

	now := time.Now().UTC()

	expired, err := registry.ExpireIdle(ctx, now.Add(-cfg.idleTimeout))
	if err != nil {
		return err
	}
	cmd.Printf("Expired %d idle sessions\n", expired)

	purged, err := registry.PurgeInactive(ctx, now.Add(-cfg.retention))
	if err != nil {
		return err
	}
	cmd.Printf("Purged %d inactive session rows\n", purged)

	cleared, err := users.ClearExpiredChallenges(ctx, now)
	if err != nil {
		return err
	}
	cmd.Printf("Cleared %d expired reset challenges\n", cleared)

	return nil
}
