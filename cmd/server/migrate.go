package main

import (
	"os"

	"github.com/prudhvinik1/sessionauth/internal/database"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// NewMigrateCmd creates the migrate subcommand and its up/down/version children.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(func(m *database.Migrator) error {
				if err := m.Up(); err != nil {
					return err
				}
				cmd.Println("Migrations completed successfully")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back every migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(func(m *database.Migrator) error {
				if err := m.Down(); err != nil {
					return err
				}
				cmd.Println("Migrations rolled back")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(func(m *database.Migrator) error {
				version, dirty, err := m.Version()
				if err != nil {
					return err
				}
				cmd.Printf("version %d (dirty: %t)\n", version, dirty)
				return nil
			})
		},
	})

	return cmd
}

func withMigrator(fn func(m *database.Migrator) error) (err error) {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("DATABASE_URL environment variable is required")
	}

	m, err := database.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); err == nil {
			err = closeErr
		}
	}()

	return fn(m)
}
