// Package instrumented decorates a repository.Store with failure logging and
// retries of connection-class errors on reads.
package instrumented

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"storyboard/internal/logging"
	"storyboard/internal/models"
	"storyboard/internal/repository"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

// Options controls the decorator
type Options struct {
	Logger *slog.Logger
	// Attempts is the number of retries after the first try. Zero disables retrying.
	Attempts  int
	BaseDelay time.Duration
	// Retryable classifies errors that may be retried. Nil retries nothing.
	Retryable func(error) bool
}

type base struct {
	logger    *slog.Logger
	attempts  uint64
	delay     time.Duration
	retryable func(error) bool
}

// Wrap decorates every repository of store
func Wrap(store repository.Store, opts Options) repository.Store {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Attempts < 0 {
		opts.Attempts = 0
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 50 * time.Millisecond
	}
	b := &base{
		logger:    opts.Logger,
		attempts:  uint64(opts.Attempts),
		delay:     opts.BaseDelay,
		retryable: opts.Retryable,
	}

	return repository.Store{
		Tx:                 &transactor{store.Tx},
		Users:              &userRepository{b, store.Users},
		LoginAttempts:      &loginAttemptRepository{b, store.LoginAttempts},
		RefreshTokens:      &refreshTokenRepository{b, store.RefreshTokens},
		EmailVerifications: &emailVerificationRepository{b, store.EmailVerifications},
		PasswordResets:     &passwordResetRepository{b, store.PasswordResets},
	}
}

// expected are outcomes the callers branch on; they are not store failures.
var expected = []error{
	repository.ErrNotFound,
	repository.ErrConflict,
	repository.ErrEmailExists,
	repository.ErrUserNotFound,
	repository.ErrTokenNotFound,
	context.Canceled,
}

func isExpected(err error) bool {
	for _, e := range expected {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

func (b *base) observe(ctx context.Context, op string, err error) error {
	if err != nil && !isExpected(err) {
		b.logger.ErrorContext(ctx, "store operation failed",
			append([]any{"op", op}, logging.ErrorAttrs(err)...)...)
	}
	return err
}

// read runs fn, retrying transient failures with exponential backoff
func read[T any](ctx context.Context, b *base, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	if b.attempts == 0 || b.retryable == nil {
		v, err := fn(ctx)
		return v, b.observe(ctx, op, err)
	}

	attempt := 0
	err := retry.Do(ctx, retry.WithMaxRetries(b.attempts, retry.NewExponential(b.delay)), func(ctx context.Context) error {
		attempt++
		v, err := fn(ctx)
		if err != nil {
			if b.retryable(err) {
				b.logger.WarnContext(ctx, "retrying store read", "op", op, "attempt", attempt, "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		out = v
		return nil
	})
	return out, b.observe(ctx, op, err)
}

func write(ctx context.Context, b *base, op string, err error) error {
	return b.observe(ctx, op, err)
}

type transactor struct {
	next repository.Transactor
}

// Transaction does not log fn's result: the calls inside fn are decorated
// and report their own failures.
func (t *transactor) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return t.next.Transaction(ctx, fn)
}

type userRepository struct {
	*base
	next repository.UserRepository
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	return write(ctx, r.base, "Users.Create", r.next.Create(ctx, user))
}

func (r *userRepository) GetActiveByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return read(ctx, r.base, "Users.GetActiveByID", func(ctx context.Context) (*models.User, error) {
		return r.next.GetActiveByID(ctx, id)
	})
}

func (r *userRepository) GetActiveByEmail(ctx context.Context, email string) (*models.User, error) {
	return read(ctx, r.base, "Users.GetActiveByEmail", func(ctx context.Context) (*models.User, error) {
		return r.next.GetActiveByEmail(ctx, email)
	})
}

func (r *userRepository) RecordFailedLogin(ctx context.Context, id uuid.UUID, at time.Time, rule repository.LockoutRule) (repository.FailedLoginResult, error) {
	res, err := r.next.RecordFailedLogin(ctx, id, at, rule)
	return res, write(ctx, r.base, "Users.RecordFailedLogin", err)
}

func (r *userRepository) RecordSuccessfulLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return write(ctx, r.base, "Users.RecordSuccessfulLogin", r.next.RecordSuccessfulLogin(ctx, id, at))
}

func (r *userRepository) UpdatePassword(ctx context.Context, id uuid.UUID, digest string, at time.Time) error {
	return write(ctx, r.base, "Users.UpdatePassword", r.next.UpdatePassword(ctx, id, digest, at))
}

func (r *userRepository) MarkEmailVerified(ctx context.Context, id uuid.UUID, at time.Time) error {
	return write(ctx, r.base, "Users.MarkEmailVerified", r.next.MarkEmailVerified(ctx, id, at))
}

func (r *userRepository) SetActive(ctx context.Context, id uuid.UUID, active bool, at time.Time) error {
	return write(ctx, r.base, "Users.SetActive", r.next.SetActive(ctx, id, active, at))
}

func (r *userRepository) SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error {
	return write(ctx, r.base, "Users.SoftDelete", r.next.SoftDelete(ctx, id, at))
}

type loginAttemptRepository struct {
	*base
	next repository.LoginAttemptRepository
}

func (r *loginAttemptRepository) Create(ctx context.Context, attempt *models.LoginAttempt) error {
	return write(ctx, r.base, "LoginAttempts.Create", r.next.Create(ctx, attempt))
}

func (r *loginAttemptRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.LoginAttempt, error) {
	return read(ctx, r.base, "LoginAttempts.ListByUser", func(ctx context.Context) ([]models.LoginAttempt, error) {
		return r.next.ListByUser(ctx, userID, limit)
	})
}

type refreshTokenRepository struct {
	*base
	next repository.RefreshTokenRepository
}

func (r *refreshTokenRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	return write(ctx, r.base, "RefreshTokens.Create", r.next.Create(ctx, token))
}

func (r *refreshTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	return read(ctx, r.base, "RefreshTokens.GetByTokenHash", func(ctx context.Context) (*models.RefreshToken, error) {
		return r.next.GetByTokenHash(ctx, tokenHash)
	})
}

func (r *refreshTokenRepository) Rotate(ctx context.Context, oldID uuid.UUID, next *models.RefreshToken, now time.Time) error {
	return write(ctx, r.base, "RefreshTokens.Rotate", r.next.Rotate(ctx, oldID, next, now))
}

func (r *refreshTokenRepository) Revoke(ctx context.Context, id, userID uuid.UUID, now time.Time) error {
	return write(ctx, r.base, "RefreshTokens.Revoke", r.next.Revoke(ctx, id, userID, now))
}

func (r *refreshTokenRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	n, err := r.next.RevokeAllForUser(ctx, userID, now)
	return n, write(ctx, r.base, "RefreshTokens.RevokeAllForUser", err)
}

func (r *refreshTokenRepository) ListActiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]models.RefreshToken, error) {
	return read(ctx, r.base, "RefreshTokens.ListActiveByUser", func(ctx context.Context) ([]models.RefreshToken, error) {
		return r.next.ListActiveByUser(ctx, userID, now)
	})
}

func (r *refreshTokenRepository) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	n, err := r.next.DeleteStale(ctx, before)
	return n, write(ctx, r.base, "RefreshTokens.DeleteStale", err)
}

type emailVerificationRepository struct {
	*base
	next repository.EmailVerificationRepository
}

func (r *emailVerificationRepository) Create(ctx context.Context, v *models.EmailVerification) error {
	return write(ctx, r.base, "EmailVerifications.Create", r.next.Create(ctx, v))
}

func (r *emailVerificationRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (uuid.UUID, error) {
	id, err := r.next.Consume(ctx, tokenHash, now)
	return id, write(ctx, r.base, "EmailVerifications.Consume", err)
}

func (r *emailVerificationRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	n, err := r.next.DeleteExpired(ctx, before)
	return n, write(ctx, r.base, "EmailVerifications.DeleteExpired", err)
}

type passwordResetRepository struct {
	*base
	next repository.PasswordResetRepository
}

func (r *passwordResetRepository) Create(ctx context.Context, reset *models.PasswordReset) error {
	return write(ctx, r.base, "PasswordResets.Create", r.next.Create(ctx, reset))
}

func (r *passwordResetRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (uuid.UUID, error) {
	id, err := r.next.Consume(ctx, tokenHash, now)
	return id, write(ctx, r.base, "PasswordResets.Consume", err)
}

func (r *passwordResetRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	n, err := r.next.DeleteExpired(ctx, before)
	return n, write(ctx, r.base, "PasswordResets.DeleteExpired", err)
}
