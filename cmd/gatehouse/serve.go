// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/audit"
	auditpg "github.com/gatehouse/gatehouse/internal/audit/postgres"
	"github.com/gatehouse/gatehouse/internal/auth"
	authpg "github.com/gatehouse/gatehouse/internal/auth/postgres"
	"github.com/gatehouse/gatehouse/internal/logging"
	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/internal/store"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

// Default values for serve command flags.
const (
	defaultMetricsAddr        = "127.0.0.1:9100"
	defaultLogFormat          = "json"
	defaultSessionIdleTimeout = 24 * time.Hour
	defaultSessionRetention   = 30 * 24 * time.Hour
	defaultSweepInterval      = 10 * time.Minute

	shutdownTimeout  = 10 * time.Second
	readinessTimeout = 2 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the session authority maintenance daemon",
		Long: `Run the Gatehouse daemon: audit dispatch, periodic expiry of idle
device sessions, retention purges, and the metrics/health HTTP endpoint.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}

	cmd.Flags().String("metrics-addr", defaultMetricsAddr, "metrics/health HTTP address")
	cmd.Flags().String("log-format", defaultLogFormat, "log format (json or text)")
	cmd.Flags().Bool("auto-migrate", true, "run pending migrations on startup")
	cmd.Flags().Int("audit-buffer", audit.DefaultBufferSize, "audit dispatcher queue capacity")
	cmd.Flags().Duration("session-idle-timeout", defaultSessionIdleTimeout, "deactivate active sessions idle longer than this")
	cmd.Flags().Duration("session-retention", defaultSessionRetention, "delete inactive session rows older than this")
	cmd.Flags().Duration("sweep-interval", defaultSweepInterval, "how often the maintenance sweep runs")

	return cmd
}

func runServe(cmd *cobra.Command) error {
	cfg, err := loadServeConfig(configFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logging.SetDefault("gatehouse", version, cfg.LogFormat)

	databaseURL, err := getDatabaseURL()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting gatehouse",
		"metrics_addr", cfg.MetricsAddr,
		"sweep_interval", cfg.SweepInterval,
	)

	if cfg.AutoMigrate {
		if err := migrateUp(databaseURL); err != nil {
			return err
		}
		slog.Info("migrations applied")
	}

	st, err := store.Open(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer st.Close()

	users := authpg.NewUserRepository(st.Pool())
	sessions := authpg.NewDeviceSessionRepository(st.Pool())
	auditRepo := auditpg.NewAuditRepository(st.Pool())

	dispatcher := audit.NewDispatcher(auditRepo, cfg.AuditBuffer, slog.Default())
	defer dispatcher.Close()

	registry, err := auth.NewDeviceRegistry(sessions, dispatcher, slog.Default())
	if err != nil {
		return err
	}

	server := observability.NewServer(cfg.MetricsAddr, func() bool {
		pingCtx, cancel := context.WithTimeout(context.Background(), readinessTimeout)
		defer cancel()
		return st.Ping(pingCtx) == nil
	})
	server.RegisterAuditDropGauge(dispatcher.Dropped)

	errCh, err := server.Start()
	if err != nil {
		return oops.Code("SERVE_FAILED").
			With("operation", "start observability server").
			Wrap(err)
	}
	slog.Info("observability server listening", "addr", server.Addr())

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("shutting down")
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Stop(stopCtx); err != nil {
				errutil.LogError(slog.Default(), "observability server shutdown failed", err)
			}
			return nil
		case err := <-errCh:
			return oops.Code("SERVE_FAILED").
				With("operation", "observability server").
				Wrap(err)
		case <-ticker.C:
			runSweepCycle(ctx, registry, users, server.Metrics(), cfg)
		}
	}
}

// runSweepCycle performs one maintenance pass. Failures are logged, not
// fatal; the next tick retries.
func runSweepCycle(
	ctx context.Context,
	registry *auth.DeviceRegistry,
	users *authpg.UserRepository,
	metrics *observability.Metrics,
	cfg *serveConfig,
) {
	now := time.Now().UTC()

	expired, err := registry.ExpireIdle(ctx, now.Add(-cfg.SessionIdleAfter))
	if err != nil {
		errutil.LogError(slog.Default(), "idle session expiry failed", err)
	} else {
		metrics.RecordSessionsTerminated("idle_expired", expired)
	}

	if _, err := registry.PurgeInactive(ctx, now.Add(-cfg.SessionRetention)); err != nil {
		errutil.LogError(slog.Default(), "inactive session purge failed", err)
	}

	if cleared, err := users.ClearExpiredChallenges(ctx, now); err != nil {
		errutil.LogError(slog.Default(), "reset challenge sweep failed", err)
	} else if cleared > 0 {
		slog.Info("cleared expired reset challenges", "count", cleared)
	}
}

// migrateUp runs all pending migrations.
func migrateUp(databaseURL string) error {
	migrator, err := store.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := migrator.Close(); err != nil {
			errutil.LogError(slog.Default(), "migrator close failed", err)
		}
	}()
	return migrator.Up()
}
