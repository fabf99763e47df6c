// Package metrics exposes Prometheus counters for the auth security core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// LoginAttempts counts evaluated login attempts by outcome. The outcome
	// label matches the stored failure reason, with "success" for accepted
	// logins.
	LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bastion",
		Name:      "login_attempts_total",
		Help:      "Login attempts evaluated, by outcome.",
	}, []string{"outcome"})

	// RateLimited counts requests rejected by the fixed-window limiter.
	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bastion",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter, by endpoint.",
	}, []string{"endpoint"})

	// ResetTransitions counts password reset workflow events.
	ResetTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bastion",
		Name:      "reset_requests_total",
		Help:      "Password reset workflow transitions, by event.",
	}, []string{"event"})
)

// Handler returns the HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
