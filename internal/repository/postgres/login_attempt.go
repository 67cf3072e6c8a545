package postgres

import (
	"context"
	"time"

	"storyboard/internal/models"
	"storyboard/internal/repository"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type loginAttemptRepository struct {
	BaseRepository
}

// NewLoginAttemptRepository creates a new PostgreSQL login attempt repository
func NewLoginAttemptRepository(db *sqlx.DB) repository.LoginAttemptRepository {
	return &loginAttemptRepository{NewBaseRepository(db)}
}

func (r *loginAttemptRepository) Create(ctx context.Context, attempt *models.LoginAttempt) error {
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO login_attempts (id, user_id, email, ip_address, user_agent, successful, failure_reason, created_at)
		VALUES (:id, :user_id, :email, :ip_address, :user_agent, :successful, :failure_reason, :created_at)`

	_, err := sqlx.NamedExecContext(ctx, r.ext(ctx), query, attempt)
	return err
}

func (r *loginAttemptRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.LoginAttempt, error) {
	query := `
		SELECT id, user_id, email, ip_address, user_agent, successful, failure_reason, created_at
		FROM login_attempts
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2`

	attempts := []models.LoginAttempt{}
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &attempts, query, userID, limit); err != nil {
		return nil, err
	}
	return attempts, nil
}
