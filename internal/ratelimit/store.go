// Package ratelimit implements fixed-window request limiting for the
// state-changing auth endpoints, keyed by (endpoint, client address).
// Windows live in an injected Store so multiple server instances can share
// limits when backed by Redis; the in-process driver is the default.
// Counters are a deterrent, not a security boundary - losing them on
// restart is acceptable.
package ratelimit

import (
	"context"
	"time"
)

// Endpoint keys recognized by the limiter.
const (
	EndpointLogin        = "login"
	EndpointRegister     = "register"
	EndpointResetRequest = "reset_request"
)

// Window is one fixed-window counter.
type Window struct {
	Count int       `json:"count"`
	Start time.Time `json:"start"`
}

// Store is the keyed backing store for rate windows. Get reports a miss via
// ok=false rather than an error. Implementations provide atomic get/set per
// key but not compare-and-swap; a window-boundary race can miscount by one
// request at the edge, which the policy tolerates.
type Store interface {
	Get(ctx context.Context, key string) (Window, bool, error)
	Set(ctx context.Context, key string, w Window, ttl time.Duration) error
}
