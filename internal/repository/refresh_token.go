package repository

import (
	"context"
	"time"

	"storyboard/internal/models"

	"github.com/google/uuid"
)

// RefreshTokenRepository stores hashed refresh tokens
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	// GetByTokenHash returns the row regardless of its state. ErrTokenNotFound when absent.
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)

	// Rotate revokes oldID and inserts next in one unit, linking the two rows.
	// The revoke only matches a row that is unrevoked and unexpired at now;
	// otherwise nothing is written and ErrConflict is returned.
	Rotate(ctx context.Context, oldID uuid.UUID, next *models.RefreshToken, now time.Time) error

	// Revoke revokes one usable token owned by userID. ErrNotFound when the
	// token is missing, foreign or already revoked.
	Revoke(ctx context.Context, id, userID uuid.UUID, now time.Time) error
	// RevokeAllForUser revokes every unrevoked token of the user and returns how many.
	RevokeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)

	// ListActiveByUser returns usable tokens, newest first.
	ListActiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]models.RefreshToken, error)

	// DeleteStale removes rows that expired or were revoked before the cutoff.
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}
