package models

import (
	"time"

	"github.com/google/uuid"
)

// Role names carried in the access token.
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// User represents an account holder
type User struct {
	ID                uuid.UUID  `json:"id" db:"id"`
	Email             string     `json:"email" db:"email"`
	Name              string     `json:"name" db:"name"`
	PasswordDigest    string     `json:"-" db:"password_digest"`
	EmailVerified     bool       `json:"email_verified" db:"email_verified"`
	IsActive          bool       `json:"is_active" db:"is_active"`
	Role              string     `json:"role" db:"role"`
	FailedLoginCount  int        `json:"-" db:"failed_login_count"`
	LockedUntil       *time.Time `json:"-" db:"locked_until"`
	LastLoginAt       *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
	LoginCount        int        `json:"login_count" db:"login_count"`
	PasswordChangedAt *time.Time `json:"password_changed_at,omitempty" db:"password_changed_at"`
	DeletedAt         *time.Time `json:"-" db:"deleted_at"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// IsAdmin returns true if the user has the admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// RegisterRequest represents a self-registration request
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,max=254"`
	Password string `json:"password" binding:"required,max=128"`
	Name     string `json:"name" binding:"required,nospaces,nocontrol,max=100"`
}

// ChangePasswordRequest represents the request to change the caller's password
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,max=128"`
}
