package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"storyboard/internal/models"
	"storyboard/internal/repository"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type emailVerificationRepository struct {
	BaseRepository
}

// NewEmailVerificationRepository creates a new PostgreSQL email verification repository
func NewEmailVerificationRepository(db *sqlx.DB) repository.EmailVerificationRepository {
	return &emailVerificationRepository{NewBaseRepository(db)}
}

func (r *emailVerificationRepository) Create(ctx context.Context, v *models.EmailVerification) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO email_verifications (id, user_id, token_hash, expires_at, created_at)
		VALUES (:id, :user_id, :token_hash, :expires_at, :created_at)`

	_, err := sqlx.NamedExecContext(ctx, r.ext(ctx), query, v)
	return err
}

func (r *emailVerificationRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (uuid.UUID, error) {
	return consume(ctx, r.ext(ctx), `
		UPDATE email_verifications SET verified_at = $2
		WHERE token_hash = $1 AND verified_at IS NULL AND expires_at > $2
		RETURNING user_id`, tokenHash, now)
}

func (r *emailVerificationRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	return deleteExpired(ctx, r.ext(ctx), `DELETE FROM email_verifications WHERE expires_at < $1`, before)
}

type passwordResetRepository struct {
	BaseRepository
}

// NewPasswordResetRepository creates a new PostgreSQL password reset repository
func NewPasswordResetRepository(db *sqlx.DB) repository.PasswordResetRepository {
	return &passwordResetRepository{NewBaseRepository(db)}
}

func (r *passwordResetRepository) Create(ctx context.Context, reset *models.PasswordReset) error {
	if reset.ID == uuid.Nil {
		reset.ID = uuid.New()
	}
	if reset.CreatedAt.IsZero() {
		reset.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO password_resets (id, user_id, token_hash, expires_at, created_at)
		VALUES (:id, :user_id, :token_hash, :expires_at, :created_at)`

	_, err := sqlx.NamedExecContext(ctx, r.ext(ctx), query, reset)
	return err
}

func (r *passwordResetRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (uuid.UUID, error) {
	return consume(ctx, r.ext(ctx), `
		UPDATE password_resets SET used_at = $2
		WHERE token_hash = $1 AND used_at IS NULL AND expires_at > $2
		RETURNING user_id`, tokenHash, now)
}

func (r *passwordResetRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	return deleteExpired(ctx, r.ext(ctx), `DELETE FROM password_resets WHERE expires_at < $1`, before)
}

// consume runs a conditional single-use update returning the owner
func consume(ctx context.Context, q sqlx.QueryerContext, query, tokenHash string, now time.Time) (uuid.UUID, error) {
	var userID uuid.UUID
	if err := sqlx.GetContext(ctx, q, &userID, query, tokenHash, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, repository.ErrTokenNotFound
		}
		return uuid.Nil, err
	}
	return userID, nil
}

func deleteExpired(ctx context.Context, e sqlx.ExecerContext, query string, before time.Time) (int64, error) {
	result, err := e.ExecContext(ctx, query, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
