package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"storyboard/internal/models"
	"storyboard/internal/repository"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const userColumns = `id, email, name, password_digest, email_verified, is_active, role,
	failed_login_count, locked_until, last_login_at, login_count,
	password_changed_at, deleted_at, created_at, updated_at`

type userRepository struct {
	BaseRepository
}

// NewUserRepository creates a new PostgreSQL user repository
func NewUserRepository(db *sqlx.DB) repository.UserRepository {
	return &userRepository{NewBaseRepository(db)}
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if user.Role == "" {
		user.Role = models.RoleMember
	}
	user.Email = strings.ToLower(user.Email)
	user.UpdatedAt = user.CreatedAt

	query := `
		INSERT INTO users (id, email, name, password_digest, email_verified, is_active, role, created_at, updated_at)
		VALUES (:id, :email, :name, :password_digest, :email_verified, :is_active, :role, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, r.ext(ctx), query, user); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrEmailExists
		}
		return err
	}
	return nil
}

func (r *userRepository) GetActiveByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.getActive(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 AND deleted_at IS NULL`, id)
}

func (r *userRepository) GetActiveByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getActive(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1) AND deleted_at IS NULL`, email)
}

func (r *userRepository) getActive(ctx context.Context, query string, arg any) (*models.User, error) {
	user := &models.User{}
	if err := sqlx.GetContext(ctx, r.ext(ctx), user, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (r *userRepository) RecordFailedLogin(ctx context.Context, id uuid.UUID, at time.Time, rule repository.LockoutRule) (repository.FailedLoginResult, error) {
	threshold, lockFor := rule.Limits()
	// SET expressions see the pre-update row, so the increment and the lock
	// decision are one atomic step. This is LockoutRule.OnFailure in SQL.
	query := `
		UPDATE users
		SET failed_login_count = failed_login_count + 1,
		    locked_until = CASE WHEN failed_login_count + 1 >= $3 THEN $4 ELSE locked_until END,
		    updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING failed_login_count, locked_until`

	var row struct {
		FailedCount int        `db:"failed_login_count"`
		LockedUntil *time.Time `db:"locked_until"`
	}
	if err := sqlx.GetContext(ctx, r.ext(ctx), &row, query, id, at, threshold, at.Add(lockFor)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repository.FailedLoginResult{}, repository.ErrUserNotFound
		}
		return repository.FailedLoginResult{}, err
	}
	return repository.FailedLoginResult{FailedCount: row.FailedCount, LockedUntil: row.LockedUntil}, nil
}

func (r *userRepository) RecordSuccessfulLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	err := r.exec(ctx, `
		UPDATE users
		SET failed_login_count = 0, locked_until = NULL, last_login_at = $2,
		    login_count = login_count + 1, updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL
		  AND (locked_until IS NULL OR locked_until <= $2)`, id, at)
	if !errors.Is(err, repository.ErrUserNotFound) {
		return err
	}

	// No row matched: either the user is gone or a lock landed since it was read.
	var exists bool
	if err := sqlx.GetContext(ctx, r.ext(ctx), &exists,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1 AND deleted_at IS NULL)`, id); err != nil {
		return err
	}
	if exists {
		return repository.ErrConflict
	}
	return repository.ErrUserNotFound
}

func (r *userRepository) UpdatePassword(ctx context.Context, id uuid.UUID, digest string, at time.Time) error {
	return r.exec(ctx, `
		UPDATE users
		SET password_digest = $2, password_changed_at = $3,
		    failed_login_count = 0, locked_until = NULL, updated_at = $3
		WHERE id = $1 AND deleted_at IS NULL`, id, digest, at)
}

func (r *userRepository) MarkEmailVerified(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.exec(ctx, `
		UPDATE users SET email_verified = TRUE, updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL`, id, at)
}

func (r *userRepository) SetActive(ctx context.Context, id uuid.UUID, active bool, at time.Time) error {
	return r.exec(ctx, `
		UPDATE users SET is_active = $2, updated_at = $3
		WHERE id = $1 AND deleted_at IS NULL`, id, active, at)
}

func (r *userRepository) SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.exec(ctx, `
		UPDATE users SET deleted_at = $2, updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL`, id, at)
}

// exec runs a single-row update and maps zero rows to ErrUserNotFound
func (r *userRepository) exec(ctx context.Context, query string, args ...any) error {
	result, err := r.ext(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrUserNotFound
	}
	return nil
}
