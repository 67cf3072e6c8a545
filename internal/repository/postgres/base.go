// Package postgres implements the repository contracts on PostgreSQL via sqlx.
package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net"

	"storyboard/internal/repository"

	"github.com/jackc/pgerrcode"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type txKey struct{}

// BaseRepository provides the connection and transaction handling shared by all repositories
type BaseRepository struct {
	db *sqlx.DB
}

// NewBaseRepository creates a new base repository
func NewBaseRepository(db *sqlx.DB) BaseRepository {
	return BaseRepository{db: db}
}

// DB returns the database connection
func (r *BaseRepository) DB() *sqlx.DB {
	return r.db
}

// ext returns the transaction bound to ctx, or the pool
func (r *BaseRepository) ext(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return r.db
}

// Transaction implements repository.Transactor. Repository calls made with
// the ctx handed to fn run on the transaction.
func (r *BaseRepository) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}

	return tx.Commit()
}

// NewStore wires every postgres repository on db
func NewStore(db *sqlx.DB) repository.Store {
	base := NewBaseRepository(db)
	return repository.Store{
		Tx:                 &base,
		Users:              &userRepository{base},
		LoginAttempts:      &loginAttemptRepository{base},
		RefreshTokens:      &refreshTokenRepository{base},
		EmailVerifications: &emailVerificationRepository{base},
		PasswordResets:     &passwordResetRepository{base},
	}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pgerrcode.UniqueViolation
}

// IsTransient reports whether err is a connection-level failure that is
// safe to retry for a read.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pgerrcode.IsConnectionException(string(pqErr.Code)) ||
			string(pqErr.Code) == pgerrcode.AdminShutdown ||
			string(pqErr.Code) == pgerrcode.CannotConnectNow
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
