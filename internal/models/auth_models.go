package models

import (
	"time"

	"github.com/google/uuid"
)

// Login failure reasons recorded on LoginAttempt. They are never sent to clients.
const (
	FailureUnknownEmail = "unknown_email"
	FailureBadPassword  = "bad_password"
	FailureLocked       = "locked"
	FailureDeactivated  = "deactivated"
	FailureUnverified   = "unverified"
)

// LoginAttempt is an append-only audit record of a login
type LoginAttempt struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	UserID        *uuid.UUID `json:"-" db:"user_id"`
	Email         string     `json:"-" db:"email"`
	IPAddress     string     `json:"ip_address" db:"ip_address"`
	UserAgent     string     `json:"user_agent" db:"user_agent"`
	Successful    bool       `json:"successful" db:"successful"`
	FailureReason string     `json:"-" db:"failure_reason"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}

// RefreshToken is the stored half of a session. Only the SHA-256 of the secret is kept.
type RefreshToken struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	UserID     uuid.UUID  `json:"user_id" db:"user_id"`
	TokenHash  string     `json:"-" db:"token_hash"`
	ExpiresAt  time.Time  `json:"expires_at" db:"expires_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
	ReplacedBy *uuid.UUID `json:"-" db:"replaced_by"`
	Replaces   *uuid.UUID `json:"-" db:"replaces"`
	IPAddress  string     `json:"ip_address" db:"ip_address"`
	UserAgent  string     `json:"user_agent" db:"user_agent"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// Usable reports whether the token can still be exchanged at now.
func (t *RefreshToken) Usable(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// Session is the client-facing view of an active refresh token
type Session struct {
	ID        uuid.UUID `json:"id"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionFromToken strips a refresh token down to its session view.
func SessionFromToken(t *RefreshToken) Session {
	return Session{
		ID:        t.ID,
		IPAddress: t.IPAddress,
		UserAgent: t.UserAgent,
		CreatedAt: t.CreatedAt,
		ExpiresAt: t.ExpiresAt,
	}
}

// EmailVerification represents an email verification token
type EmailVerification struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	UserID     uuid.UUID  `json:"user_id" db:"user_id"`
	TokenHash  string     `json:"-" db:"token_hash"`
	ExpiresAt  time.Time  `json:"expires_at" db:"expires_at"`
	VerifiedAt *time.Time `json:"verified_at,omitempty" db:"verified_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// PasswordReset represents a password reset token
type PasswordReset struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	UserID    uuid.UUID  `json:"user_id" db:"user_id"`
	TokenHash string     `json:"-" db:"token_hash"`
	ExpiresAt time.Time  `json:"expires_at" db:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty" db:"used_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}
