package main

import (
	"storyboard/internal/database"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// NewMigrateCmd creates the migrate subcommand
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long:  `Apply, roll back or inspect the PostgreSQL schema migrations.`,
		RunE:  runMigrateUp,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE:  runMigrateUp,
	})

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			cfg, _, err := loadConfig(cmd, false)
			if err != nil {
				return oops.Code("CONFIG_INVALID").Wrap(err)
			}
			if err := database.MigrateDown(cfg.Database.MigrationsPath, database.URL(cfg.Database), steps); err != nil {
				return oops.Code("MIGRATION_FAILED").With("steps", steps).Wrap(err)
			}
			cmd.Printf("Rolled back %d migration(s)\n", steps)
			return nil
		},
	}
	down.Flags().Int("steps", 1, "number of migrations to roll back")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(cmd, false)
			if err != nil {
				return oops.Code("CONFIG_INVALID").Wrap(err)
			}
			version, dirty, err := database.MigrationVersion(cfg.Database.MigrationsPath, database.URL(cfg.Database))
			if err != nil {
				return oops.Code("MIGRATION_FAILED").Wrap(err)
			}
			cmd.Printf("version %d (dirty: %t)\n", version, dirty)
			return nil
		},
	})

	return cmd
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig(cmd, false)
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}

	cmd.Println("Running migrations...")
	if err := database.RunMigrations(cfg.Database); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}

	cmd.Println("Migrations completed successfully")
	return nil
}
