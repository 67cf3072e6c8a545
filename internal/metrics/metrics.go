// Package metrics holds the Prometheus collectors of the auth service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains the service's counters. A nil *Metrics records nothing.
type Metrics struct {
	LoginAttempts  *prometheus.CounterVec
	TokenRotations *prometheus.CounterVec
	TokensSwept    *prometheus.CounterVec
	HTTPRequests   *prometheus.CounterVec
}

// NewMetrics creates and registers the counters on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storyboard_login_attempts_total",
				Help: "Login attempts by outcome",
			},
			[]string{"outcome"},
		),
		TokenRotations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storyboard_refresh_rotations_total",
				Help: "Refresh token rotations by outcome",
			},
			[]string{"outcome"},
		),
		TokensSwept: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storyboard_tokens_swept_total",
				Help: "Stale token rows deleted by the sweeper, by kind",
			},
			[]string{"kind"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storyboard_http_requests_total",
				Help: "HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
	}

	reg.MustRegister(m.LoginAttempts)
	reg.MustRegister(m.TokenRotations)
	reg.MustRegister(m.TokensSwept)
	reg.MustRegister(m.HTTPRequests)

	return m
}

// NewRegistry returns a registry with the Go runtime and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler serves the registry in the Prometheus exposition format
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// LoginAttempt counts one login outcome
func (m *Metrics) LoginAttempt(outcome string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(outcome).Inc()
}

// Rotation counts one refresh rotation outcome
func (m *Metrics) Rotation(outcome string) {
	if m == nil {
		return
	}
	m.TokenRotations.WithLabelValues(outcome).Inc()
}

// Swept adds n deleted rows of kind
func (m *Metrics) Swept(kind string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.TokensSwept.WithLabelValues(kind).Add(float64(n))
}

// Request counts one HTTP request
func (m *Metrics) Request(method, route, status string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
}
