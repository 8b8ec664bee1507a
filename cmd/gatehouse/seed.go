// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/audit"
	auditpg "github.com/gatehouse/gatehouse/internal/audit/postgres"
	"github.com/gatehouse/gatehouse/internal/auth"
	authpg "github.com/gatehouse/gatehouse/internal/auth/postgres"
	"github.com/gatehouse/gatehouse/internal/store"
)

// Default timeout for seed-admin database operations.
const defaultSeedTimeout = 30 * time.Second

// seedConfig holds configuration for the seed-admin command.
type seedConfig struct {
	email   string
	name    string
	timeout time.Duration
}

// NewSeedAdminCmd creates the seed-admin subcommand.
func NewSeedAdminCmd() *cobra.Command {
	cfg := &seedConfig{}

	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create the initial admin account",
		Long: `Creates an ADMIN user with a generated temporary password. The password
is printed exactly once; the account must change it on first login.
This command is idempotent - an existing account with the same email is
left untouched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeedAdmin(cmd, args, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.email, "email", "", "email address for the admin account")
	cmd.Flags().StringVar(&cfg.name, "name", "", "display name for the admin account")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultSeedTimeout, "timeout for database operations (e.g., 30s, 1m)")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func runSeedAdmin(cmd *cobra.Command, _ []string, cfg *seedConfig) error {
	databaseURL, err := getDatabaseURL()
	if err != nil {
		return err
	}

	// Use cmd.Context() to respect SIGINT/SIGTERM signals.
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.timeout)
	defer cancel()

	cmd.Println("Connecting to database...")
	st, err := store.Open(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer st.Close()

	users := authpg.NewUserRepository(st.Pool())
	sessions := authpg.NewDeviceSessionRepository(st.Pool())

	dispatcher := audit.NewDispatcher(auditpg.NewAuditRepository(st.Pool()), 0, slog.Default())
	defer dispatcher.Close()

	registry, err := auth.NewDeviceRegistry(sessions, dispatcher, slog.Default())
	if err != nil {
		return err
	}
	svc, err := auth.NewService(users, registry, auth.NewArgon2idHasher(), nil, dispatcher, nil, slog.Default())
	if err != nil {
		return err
	}

	var displayName *string
	if cfg.name != "" {
		displayName = &cfg.name
	}

	user, tempPassword, err := svc.CreateUser(ctx, cfg.email, displayName, auth.RoleAdmin)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			cmd.Println("Account already exists, skipping seed")
			return nil
		}
		return err
	}

	cmd.Printf("Created admin account %s (%s)\n", user.Email, user.ID)
	cmd.Printf("Temporary password: %s\n", tempPassword)
	cmd.Println("The password must be changed on first login.")
	return nil
}
