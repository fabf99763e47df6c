package middleware

import (
	"net/http"
	"time"

	"github.com/aefields/bastion/internal/metrics"
	"github.com/aefields/bastion/internal/ratelimit"
	pkghttp "github.com/aefields/bastion/pkg/http"
	"github.com/go-chi/httprate"
)

// EndpointRateLimit applies the fixed-window limiter for one named endpoint,
// keyed by (endpoint, client address). Rejections get a generic 429 that
// reveals neither the limit nor the window.
func EndpointRateLimit(limiter *ratelimit.Limiter, endpoint string, ipConfig *pkghttp.IPConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr := pkghttp.ExtractClientIP(r, ipConfig)

			if !limiter.Allow(r.Context(), endpoint, addr) {
				metrics.RateLimited.WithLabelValues(endpoint).Inc()
				pkghttp.WriteTooManyRequests(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GlobalRateLimit is a coarse per-IP backstop over the whole API, sitting in
// front of the per-endpoint windows.
func GlobalRateLimit(requestsPerMinute int) func(next http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		1*time.Minute,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w)
		}),
	)
}
