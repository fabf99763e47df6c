package models

import (
	"time"
	"unicode/utf8"
)

// Failure reasons recorded on login attempts.
const (
	FailureInvalidCredentials = "invalid_credentials"
	FailureAccountLocked      = "account_locked"
	FailureAccountInactive    = "account_inactive"
	// FailureAccountUnverified is part of the stored taxonomy but no login
	// path currently produces it; verification is tracked, not enforced.
	FailureAccountUnverified = "account_unverified"
)

// MaxUserAgentLength bounds the user agent stored on attempt and reset rows.
const MaxUserAgentLength = 500

// LoginAttempt is one immutable audit row per login attempt. A row is written
// for every attempt, including ones whose email resolves to no account, and
// is never mutated; deletion is an explicit admin-only purge.
type LoginAttempt struct {
	ID             string    `db:"id"`
	UserID         *string   `db:"user_id"` // nil when the email did not resolve
	EmailAttempted string    `db:"email_attempted"`
	IPAddress      string    `db:"ip_address"`
	UserAgent      string    `db:"user_agent"`
	Success        bool      `db:"success"`
	FailureReason  string    `db:"failure_reason"` // empty on success
	AttemptedAt    time.Time `db:"attempted_at"`
}

// TruncateUserAgent bounds free-text client agent strings before storage.
// The cut lands on a rune boundary so the result is always valid UTF-8;
// Postgres rejects TEXT values that are not.
func TruncateUserAgent(ua string) string {
	if len(ua) <= MaxUserAgentLength {
		return ua
	}
	cut := MaxUserAgentLength
	for cut > 0 && !utf8.RuneStart(ua[cut]) {
		cut--
	}
	return ua[:cut]
}
