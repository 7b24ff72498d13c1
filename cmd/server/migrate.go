package main

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/sakif/readme-studio/internal/config"
	"github.com/sakif/readme-studio/internal/repository/postgres"
	sqliteRepo "github.com/sakif/readme-studio/internal/repository/sqlite"
)

// migrateCmd manages the SQL schema. The server migrates up on start, so
// these are for rollbacks and inspection.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all up migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(func(m *migrate.Migrate) error {
			if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back one migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(func(m *migrate.Migrate) error {
			if err := m.Steps(-1); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "rolled back one migration")
			return nil
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(func(m *migrate.Migrate) error {
			version, dirty, err := m.Version()
			if errors.Is(err, migrate.ErrNilVersion) {
				fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
}

// withMigrator runs fn against the configured SQL backend.
func withMigrator(fn func(*migrate.Migrate) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	switch cfg.DBDriver {
	case config.DriverPostgres:
		return postgres.Migrate(cfg.DatabaseURL, fn)

	case config.DriverSQLite:
		db, err := sqliteRepo.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		m, err := db.Migrator()
		if err != nil {
			db.Close()
			return err
		}
		// Closing the migrator closes db as well.
		defer func() {
			_, _ = m.Close()
		}()
		if err := fn(m); err != nil {
			return fmt.Errorf("sqlite: running migrations: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("migrate: the %s driver has no SQL schema; its indexes are created on startup", cfg.DBDriver)
	}
}
