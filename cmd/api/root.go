package main

import (
	"log/slog"

	"storyboard/internal/config"
	"storyboard/internal/logging"

	"github.com/spf13/cobra"
)

// Global flags available to all subcommands
var (
	configFile string
	envFile    string
)

// flagKeys maps command line flags onto configuration keys
var flagKeys = map[string]string{
	"port":          "api.port",
	"log-level":     "log.level",
	"log-format":    "log.format",
	"db-host":       "database.host",
	"db-port":       "database.port",
	"db-name":       "database.name",
	"migrations":    "database.migrations_path",
	"bcrypt-cost":   "auth.bcrypt_cost",
	"sweep":         "cleanup.enabled",
	"sweep-cron":    "cleanup.schedule",
	"store-retries": "store.retry_attempts",
}

// NewRootCmd creates the root command of the storyboard CLI
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "storyboard",
		Short:        "Storyboard account and session service",
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "YAML config file path")
	flags.StringVar(&envFile, "env", ".env", "path to env file")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "json", "log format (json, text)")
	flags.String("db-host", "localhost", "database host")
	flags.Int("db-port", 5432, "database port")
	flags.String("db-name", "storyboard", "database name")
	flags.String("migrations", "migrations", "migrations directory")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSweepCmd())

	return cmd
}

// loadConfig reads configuration for cmd. Commands that only touch the
// database pass validate=false so they run without a JWT secret.
func loadConfig(cmd *cobra.Command, validate bool) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(config.LoadOptions{
		EnvFile:      envFile,
		ConfigFile:   configFile,
		Flags:        cmd.Flags(),
		FlagKeys:     flagKeys,
		SkipValidate: !validate,
	})
	if err != nil {
		return nil, nil, err
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	})
	slog.SetDefault(logger)
	return cfg, logger, nil
}
