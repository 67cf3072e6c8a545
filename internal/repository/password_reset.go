package repository

import (
	"context"
	"time"

	"storyboard/internal/models"

	"github.com/google/uuid"
)

// PasswordResetRepository stores hashed password reset tokens
type PasswordResetRepository interface {
	Create(ctx context.Context, reset *models.PasswordReset) error
	// Consume marks the token used when it is unused and unexpired at now and
	// returns its owner. Unknown, used and expired tokens all yield ErrTokenNotFound.
	Consume(ctx context.Context, tokenHash string, now time.Time) (uuid.UUID, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
