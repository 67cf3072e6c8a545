package repository

import (
	"context"
	"time"

	"storyboard/internal/models"

	"github.com/google/uuid"
)

// FailedLoginResult is the lockout state after a failure was recorded
type FailedLoginResult struct {
	FailedCount int
	LockedUntil *time.Time
}

// LockoutRule decides the failure counter and lock deadline after one more
// failed login. Stores apply it in the same step as the increment.
type LockoutRule interface {
	OnFailure(user *models.User, at time.Time) FailedLoginResult
	// Limits are the rule's parameters, for stores that express it in SQL.
	Limits() (threshold int, lockFor time.Duration)
}

// UserRepository defines the credential store.
//
// The GetActive* lookups exclude soft-deleted users and return
// ErrUserNotFound for them. Email lookups are case-insensitive.
type UserRepository interface {
	// Create inserts the user and fills ID and timestamps. Returns ErrEmailExists on a duplicate email.
	Create(ctx context.Context, user *models.User) error
	GetActiveByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetActiveByEmail(ctx context.Context, email string) (*models.User, error)

	// RecordFailedLogin atomically increments the failure counter and applies rule.
	RecordFailedLogin(ctx context.Context, id uuid.UUID, at time.Time, rule LockoutRule) (FailedLoginResult, error)
	// RecordSuccessfulLogin clears lockout state, stamps last_login_at and bumps login_count.
	// It returns ErrConflict when the account is locked at at.
	RecordSuccessfulLogin(ctx context.Context, id uuid.UUID, at time.Time) error

	// UpdatePassword stores a new digest and clears lockout state.
	UpdatePassword(ctx context.Context, id uuid.UUID, digest string, at time.Time) error
	MarkEmailVerified(ctx context.Context, id uuid.UUID, at time.Time) error

	// Admin operations. Not exposed over HTTP.
	SetActive(ctx context.Context, id uuid.UUID, active bool, at time.Time) error
	SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error
}
