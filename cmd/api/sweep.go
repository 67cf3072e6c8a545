package main

import (
	"storyboard/internal/cleanup"
	"storyboard/internal/database"
	"storyboard/internal/repository/instrumented"
	"storyboard/internal/repository/postgres"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// NewSweepCmd creates the sweep subcommand
func NewSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete stale tokens once and exit",
		RunE:  runSweep,
	}
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd, false)
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}

	db, err := database.Connect(cmd.Context(), cfg.Database)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}
	defer db.Close()

	store := instrumented.Wrap(postgres.NewStore(db), instrumented.Options{Logger: logger})
	res, err := cleanup.NewSweeper(store, cfg.Cleanup, cleanup.WithLogger(logger)).RunOnce(cmd.Context())
	if err != nil {
		return oops.Code("SWEEP_FAILED").Wrap(err)
	}

	cmd.Printf("Deleted %d refresh tokens, %d email verifications, %d password resets\n",
		res.RefreshTokens, res.EmailVerifications, res.PasswordResets)
	return nil
}
