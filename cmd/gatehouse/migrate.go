// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/store"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status|force <version>]",
		Short:     "Run database migrations",
		Long:      `Apply, roll back, or inspect schema migrations against the PostgreSQL database.`,
		Args:      cobra.RangeArgs(0, 2),
		ValidArgs: []string{"up", "down", "status", "force"},
		RunE:      runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, args []string) error {
	databaseURL, err := getDatabaseURL()
	if err != nil {
		return err
	}

	direction := "up"
	if len(args) > 0 {
		direction = args[0]
	}

	migrator, err := store.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = migrator.Close() }()

	switch direction {
	case "up":
		cmd.Println("Running migrations...")
		if err := migrator.Up(); err != nil {
			return err
		}
		cmd.Println("Migrations completed successfully")
	case "down":
		cmd.Println("Rolling back one migration...")
		if err := migrator.Steps(-1); err != nil {
			return err
		}
		cmd.Println("Rollback completed successfully")
	case "status":
		version, dirty, err := migrator.Version()
		if err != nil {
			return err
		}
		cmd.Printf("version: %d, dirty: %t\n", version, dirty)
	case "force":
		if len(args) < 2 {
			return oops.Code("INVALID_VERSION").
				Errorf("force requires a version argument")
		}
		forceVersion, err := parseForceVersion(args[1])
		if err != nil {
			return err
		}
		if err := migrator.Force(forceVersion); err != nil {
			return err
		}
		cmd.Printf("Forced schema version to %d\n", forceVersion)
	default:
		return oops.Code("INVALID_ARGUMENT").
			Errorf("unknown migrate action %q", direction)
	}

	return nil
}

// parseForceVersion parses the version argument for migrate force.
func parseForceVersion(s string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &version); err != nil {
		return 0, oops.Code("INVALID_VERSION").
			With("input", s).
			Errorf("version must be an integer")
	}
	return version, nil
}
