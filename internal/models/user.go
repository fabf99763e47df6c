package models

import (
	"time"
)

// Lockout policy constants. After LockoutThreshold consecutive failures the
// account is locked for min(LockoutBaseMinutes * 2^(n-threshold), LockoutCapMinutes).
const (
	LockoutThreshold   = 5
	LockoutBaseMinutes = 5
	LockoutCapMinutes  = 60
)

type User struct {
	ID                  string
	Email               string
	PasswordHash        string
	FullName            string
	Company             string
	Phone               string
	Role                string // "user", "admin"
	IsActive            bool   // inactive accounts are rejected at login regardless of credentials
	IsVerified          bool   // tracked but not enforced as a login gate
	TokenKey            string // Per-user secret for composite token signing
	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastLoginAt         *time.Time
	LastLoginIP         *string
	PasswordChangedAt   *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsLocked reports whether the account is currently inside a lockout window.
func (u *User) IsLocked() bool {
	return u.LockedUntil != nil && u.LockedUntil.After(time.Now())
}

// LockoutRemainingMinutes returns the remaining lockout time rounded up to
// whole minutes, or 0 when the account is not locked.
func (u *User) LockoutRemainingMinutes() int {
	if !u.IsLocked() {
		return 0
	}
	remaining := time.Until(*u.LockedUntil)
	minutes := int(remaining / time.Minute)
	if remaining%time.Minute > 0 {
		minutes++
	}
	return minutes
}

// NextLockoutDuration computes the lockout to apply after the given
// post-increment failure count. Returns 0 below the threshold.
// Progression: 5, 10, 20, 40 minutes, capped at 60. The cap is applied
// before shifting so arbitrarily high counters cannot overflow the math
// back below the cap.
func NextLockoutDuration(failedAttempts int) time.Duration {
	if failedAttempts < LockoutThreshold {
		return 0
	}
	exp := failedAttempts - LockoutThreshold
	if exp >= 4 {
		return LockoutCapMinutes * time.Minute
	}
	minutes := LockoutBaseMinutes * (1 << exp)
	if minutes > LockoutCapMinutes {
		minutes = LockoutCapMinutes
	}
	return time.Duration(minutes) * time.Minute
}
