package auth

import (
	"log/slog"
	"time"

	"storyboard/internal/metrics"
)

type options struct {
	now        func() time.Time
	logger     *slog.Logger
	metrics    *metrics.Metrics
	syncNotify bool
}

// Option configures Service and SessionManager
type Option func(*options)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the logger. The default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics records outcomes on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithSyncNotifications delivers notifications on the calling goroutine
func WithSyncNotifications() Option {
	return func(o *options) { o.syncNotify = true }
}

func buildOptions(opts []Option) options {
	o := options{
		now:    func() time.Time { return time.Now().UTC() },
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
