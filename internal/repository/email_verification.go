package repository

import (
	"context"
	"time"

	"storyboard/internal/models"

	"github.com/google/uuid"
)

// EmailVerificationRepository stores hashed email verification tokens
type EmailVerificationRepository interface {
	Create(ctx context.Context, verification *models.EmailVerification) error
	// Consume marks the token verified when it is unused and unexpired at now
	// and returns its owner. Unknown, used and expired tokens all yield ErrTokenNotFound.
	Consume(ctx context.Context, tokenHash string, now time.Time) (uuid.UUID, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
