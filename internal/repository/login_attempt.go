package repository

import (
	"context"

	"storyboard/internal/models"

	"github.com/google/uuid"
)

// LoginAttemptRepository is the append-only login audit log
type LoginAttemptRepository interface {
	Create(ctx context.Context, attempt *models.LoginAttempt) error
	// ListByUser returns at most limit attempts, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.LoginAttempt, error)
}
