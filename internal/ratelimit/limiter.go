package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Policy caps one endpoint at Limit requests per Window.
type Policy struct {
	Limit  int
	Window time.Duration
}

// Limiter applies per-endpoint fixed-window policies over a Store.
// Exactly Limit requests are allowed inside a window; the request that
// pushes the count past Limit is the one rejected.
type Limiter struct {
	store    Store
	policies map[string]Policy
	logger   *slog.Logger

	// now is swappable for tests
	now func() time.Time
}

// NewLimiter creates a limiter with the given per-endpoint policies.
func NewLimiter(store Store, policies map[string]Policy, logger *slog.Logger) *Limiter {
	return &Limiter{
		store:    store,
		policies: policies,
		logger:   logger,
		now:      time.Now,
	}
}

// Allow reports whether a request for endpoint from addr may proceed, and
// mutates the window counter. Unknown endpoints are always allowed. Store
// failures fail open with a logged warning: the limiter is best-effort and
// must not take down login for legitimate users.
func (l *Limiter) Allow(ctx context.Context, endpoint, addr string) bool {
	policy, ok := l.policies[endpoint]
	if !ok {
		return true
	}

	key := windowKey(endpoint, addr)
	now := l.now()

	w, found, err := l.store.Get(ctx, key)
	if err != nil {
		l.logger.Warn("rate store get failed, allowing request",
			slog.String("endpoint", endpoint),
			slog.Any("error", err))
		return true
	}

	// Fresh window, or the previous one has elapsed.
	if !found || now.Sub(w.Start) > policy.Window {
		if err := l.store.Set(ctx, key, Window{Count: 1, Start: now}, policy.Window); err != nil {
			l.logger.Warn("rate store set failed",
				slog.String("endpoint", endpoint),
				slog.Any("error", err))
		}
		return true
	}

	w.Count++
	if err := l.store.Set(ctx, key, w, policy.Window); err != nil {
		l.logger.Warn("rate store set failed",
			slog.String("endpoint", endpoint),
			slog.Any("error", err))
	}

	allowed := w.Count <= policy.Limit
	if !allowed {
		l.logger.Warn("rate limit exceeded",
			slog.String("endpoint", endpoint),
			slog.String("client_addr", addr),
			slog.Int("count", w.Count),
			slog.Int("limit", policy.Limit))
	}
	return allowed
}

func windowKey(endpoint, addr string) string {
	return fmt.Sprintf("rl:%s:%s", endpoint, addr)
}
