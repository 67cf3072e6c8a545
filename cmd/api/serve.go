package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"storyboard/internal/api/middleware"
	"storyboard/internal/api/routes"
	"storyboard/internal/api/server"
	"storyboard/internal/auth"
	"storyboard/internal/cleanup"
	"storyboard/internal/database"
	"storyboard/internal/email"
	"storyboard/internal/metrics"
	"storyboard/internal/repository/instrumented"
	"storyboard/internal/repository/postgres"
	"storyboard/internal/validation"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewServeCmd creates the serve subcommand
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API. Pending migrations are applied first and the
token sweeper runs in the background when enabled.`,
		RunE: runServe,
	}

	cmd.Flags().String("port", "8080", "HTTP port")
	cmd.Flags().Int("bcrypt-cost", 12, "bcrypt cost (10-14)")
	cmd.Flags().Bool("sweep", true, "run the token sweeper")
	cmd.Flags().String("sweep-cron", "@hourly", "token sweeper schedule")
	cmd.Flags().Int("store-retries", 0, "retries for reads failing with connection errors")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd, true)
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}
	defer db.Close()

	if err := database.RunMigrations(cfg.Database); err != nil {
		return oops.Code("MIGRATION_FAILED").Wrap(err)
	}

	validation.Initialize()

	registry := metrics.NewRegistry()
	m := metrics.NewMetrics(registry)

	store := instrumented.Wrap(postgres.NewStore(db), instrumented.Options{
		Logger:    logger,
		Attempts:  cfg.Store.RetryAttempts,
		BaseDelay: cfg.Store.RetryBaseDelay,
		Retryable: postgres.IsTransient,
	})

	notifier := email.NewNotifier(cfg.Email, logger)
	if closer, ok := notifier.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	service := auth.NewService(cfg, store, notifier,
		auth.WithLogger(logger),
		auth.WithMetrics(m),
	)
	// Let queued verification and reset mails finish before exiting
	defer service.Wait()

	limiter := middleware.NewRateLimiter(cfg.RateLimit)
	defer limiter.Stop()

	router := routes.SetupRoutes(routes.Dependencies{
		Service:     service,
		DB:          db,
		RateLimiter: limiter,
		Metrics:     m,
		Registry:    registry,
		Logger:      logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.New(cfg.API, router, logger).Run(gctx)
	})
	if cfg.Cleanup.Enabled {
		sweeper := cleanup.NewSweeper(store, cfg.Cleanup,
			cleanup.WithLogger(logger),
			cleanup.WithMetrics(m),
		)
		g.Go(func() error {
			return sweeper.Start(gctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("server exited")
	return nil
}
