// Package cleanup periodically deletes refresh, verification and reset
// tokens that can no longer be used.
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"storyboard/internal/config"
	"storyboard/internal/logging"
	"storyboard/internal/metrics"
	"storyboard/internal/repository"

	"github.com/robfig/cron/v3"
)

// Result counts the rows removed by one sweep
type Result struct {
	RefreshTokens      int64
	EmailVerifications int64
	PasswordResets     int64
}

// Sweeper runs token cleanup on a cron schedule
type Sweeper struct {
	store     repository.Store
	schedule  string
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
	metrics   *metrics.Metrics
	cron      *cron.Cron
}

// Option configures a Sweeper
type Option func(*Sweeper)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = logger }
}

// WithMetrics counts swept rows on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

// NewSweeper creates a new sweeper
func NewSweeper(store repository.Store, cfg config.CleanupConfig, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:     store,
		schedule:  cfg.Schedule,
		retention: cfg.Retention,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logging.Discard(),
		cron:      cron.New(cron.WithParser(config.ScheduleParser)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunOnce deletes refresh tokens expired or revoked before now-retention and
// verification and reset tokens expired before now.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	now := s.now()
	var res Result
	var err error

	if res.RefreshTokens, err = s.store.RefreshTokens.DeleteStale(ctx, now.Add(-s.retention)); err != nil {
		return res, fmt.Errorf("failed to sweep refresh tokens: %w", err)
	}
	s.metrics.Swept("refresh_token", res.RefreshTokens)

	if res.EmailVerifications, err = s.store.EmailVerifications.DeleteExpired(ctx, now); err != nil {
		return res, fmt.Errorf("failed to sweep email verifications: %w", err)
	}
	s.metrics.Swept("email_verification", res.EmailVerifications)

	if res.PasswordResets, err = s.store.PasswordResets.DeleteExpired(ctx, now); err != nil {
		return res, fmt.Errorf("failed to sweep password resets: %w", err)
	}
	s.metrics.Swept("password_reset", res.PasswordResets)

	s.logger.InfoContext(ctx, "token sweep finished",
		"refresh_tokens", res.RefreshTokens,
		"email_verifications", res.EmailVerifications,
		"password_resets", res.PasswordResets)
	return res, nil
}

// Start schedules RunOnce and blocks until ctx is cancelled
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			logging.LogError(ctx, s.logger, "token sweep failed", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "token sweeper started", "schedule", s.schedule, "retention", s.retention)

	<-ctx.Done()
	stopped := s.cron.Stop()
	<-stopped.Done()
	s.logger.Info("token sweeper stopped")
	return nil
}
