package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Login evaluation errors. Unknown identity and wrong password are both
	// reported as ErrInvalidCredentials to prevent account enumeration.
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountInactive    = errors.New("account is deactivated")

	// Reset workflow errors
	ErrDuplicatePendingRequest = errors.New("a pending password reset request already exists")
	ErrInvalidTransition       = errors.New("request is not pending")
)

// LockoutError is returned when a login attempt hits an account inside its
// lockout window. It carries the remaining time so callers can display it;
// the lock is only disclosed for identities that already proved to exist.
type LockoutError struct {
	RemainingMinutes int
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("account is temporarily locked, try again in %d minutes", e.RemainingMinutes)
}

// IsLockout reports whether err is a lockout error, returning it if so.
func IsLockout(err error) (*LockoutError, bool) {
	var le *LockoutError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}
