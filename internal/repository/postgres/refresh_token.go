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

const refreshTokenColumns = `id, user_id, token_hash, expires_at, revoked_at, replaced_by, replaces,
	ip_address, user_agent, created_at`

type refreshTokenRepository struct {
	BaseRepository
}

// NewRefreshTokenRepository creates a new PostgreSQL refresh token repository
func NewRefreshTokenRepository(db *sqlx.DB) repository.RefreshTokenRepository {
	return &refreshTokenRepository{NewBaseRepository(db)}
}

func (r *refreshTokenRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, replaces, ip_address, user_agent, created_at)
		VALUES (:id, :user_id, :token_hash, :expires_at, :replaces, :ip_address, :user_agent, :created_at)`

	_, err := sqlx.NamedExecContext(ctx, r.ext(ctx), query, token)
	return err
}

func (r *refreshTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	token := &models.RefreshToken{}
	query := `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE token_hash = $1`

	if err := sqlx.GetContext(ctx, r.ext(ctx), token, query, tokenHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrTokenNotFound
		}
		return nil, err
	}
	return token, nil
}

// Rotate inserts the successor first so replaced_by can reference it, then
// revokes the old row conditionally. A concurrent rotation of the same row
// blocks on the row lock and then matches nothing, rolling its insert back.
func (r *refreshTokenRepository) Rotate(ctx context.Context, oldID uuid.UUID, next *models.RefreshToken, now time.Time) error {
	if next.ID == uuid.Nil {
		next.ID = uuid.New()
	}
	next.Replaces = &oldID

	return r.Transaction(ctx, func(ctx context.Context) error {
		if err := r.Create(ctx, next); err != nil {
			return err
		}

		result, err := r.ext(ctx).ExecContext(ctx, `
			UPDATE refresh_tokens
			SET revoked_at = $2, replaced_by = $3
			WHERE id = $1 AND revoked_at IS NULL AND expires_at > $2`,
			oldID, now, next.ID)
		if err != nil {
			return err
		}

		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return repository.ErrConflict
		}
		return nil
	})
}

func (r *refreshTokenRepository) Revoke(ctx context.Context, id, userID uuid.UUID, now time.Time) error {
	result, err := r.ext(ctx).ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = $3
		WHERE id = $1 AND user_id = $2 AND revoked_at IS NULL AND expires_at > $3`,
		id, userID, now)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *refreshTokenRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	result, err := r.ext(ctx).ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL`,
		userID, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *refreshTokenRepository) ListActiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]models.RefreshToken, error) {
	query := `
		SELECT ` + refreshTokenColumns + `
		FROM refresh_tokens
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
		ORDER BY created_at DESC`

	tokens := []models.RefreshToken{}
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &tokens, query, userID, now); err != nil {
		return nil, err
	}
	return tokens, nil
}

func (r *refreshTokenRepository) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.ext(ctx).ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < $1 OR revoked_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
