package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error kinds returned by the auth services. Callers match them with errors.Is;
// the wrapped chain carries an oops code and context for logging.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrAccountDeactivated = errors.New("account is deactivated")
	ErrEmailNotVerified   = errors.New("email address is not verified")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrWeakPassword       = errors.New("password does not meet requirements")
	ErrSamePassword       = errors.New("new password must differ from the current password")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not found")
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrInvalidOrExpiredToken covers unknown, used, revoked and expired tokens of every kind.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")

	// Refresh token failures. All match ErrInvalidOrExpiredToken.
	ErrInvalidToken = fmt.Errorf("token not recognised: %w", ErrInvalidOrExpiredToken)
	ErrTokenRevoked = fmt.Errorf("token revoked: %w", ErrInvalidOrExpiredToken)
	ErrTokenExpired = fmt.Errorf("token expired: %w", ErrInvalidOrExpiredToken)
)

// LockedError reports when a locked account becomes loginable again
type LockedError struct {
	Until time.Time
	// RetryAfter is the wait remaining when the login was refused
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%s until %s", ErrAccountLocked, e.Until.Format(time.RFC3339))
}

func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// WeakPasswordError lists every strength rule the password broke
type WeakPasswordError struct {
	Violations []Violation
}

func (e *WeakPasswordError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Message()
	}
	return fmt.Sprintf("%s: %s", ErrWeakPassword, strings.Join(msgs, "; "))
}

func (e *WeakPasswordError) Is(target error) bool {
	return target == ErrWeakPassword
}
