package memory

import (
	"context"
	"time"

	"storyboard/internal/models"

	"github.com/google/uuid"
)

type loginAttemptRepository struct {
	s *Store
}

func (r *loginAttemptRepository) Create(ctx context.Context, attempt *models.LoginAttempt) error {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}
	r.s.attempts = append(r.s.attempts, *attempt)
	return nil
}

func (r *loginAttemptRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.LoginAttempt, error) {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Appends are chronological, so walking backwards yields newest first.
	attempts := []models.LoginAttempt{}
	for i := len(r.s.attempts) - 1; i >= 0 && len(attempts) < limit; i-- {
		a := r.s.attempts[i]
		if a.UserID != nil && *a.UserID == userID {
			attempts = append(attempts, a)
		}
	}
	return attempts, nil
}
