// Package memory is an in-process implementation of the repository contracts.
// It is the reference behaviour for the postgres store and backs the service tests.
package memory

import (
	"context"
	"maps"
	"sync"

	"storyboard/internal/models"
	"storyboard/internal/repository"

	"github.com/google/uuid"
)

type txKey struct{}

// Store keeps all rows behind one mutex, so every method is a single
// serialised step. A transaction holds txMu for its whole run and a failed
// one restores the rows it started from. Calls made outside a transaction
// take txMu as well, so a rollback never discards another caller's write.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex

	users         map[uuid.UUID]models.User
	attempts      []models.LoginAttempt
	refreshTokens map[uuid.UUID]models.RefreshToken
	verifications map[uuid.UUID]models.EmailVerification
	resets        map[uuid.UUID]models.PasswordReset
}

// New returns an empty store
func New() *Store {
	return &Store{
		users:         make(map[uuid.UUID]models.User),
		refreshTokens: make(map[uuid.UUID]models.RefreshToken),
		verifications: make(map[uuid.UUID]models.EmailVerification),
		resets:        make(map[uuid.UUID]models.PasswordReset),
	}
}

// Repositories returns the store wired as a repository.Store
func (s *Store) Repositories() repository.Store {
	return repository.Store{
		Tx:                 s,
		Users:              &userRepository{s},
		LoginAttempts:      &loginAttemptRepository{s},
		RefreshTokens:      &refreshTokenRepository{s},
		EmailVerifications: &emailVerificationRepository{s},
		PasswordResets:     &passwordResetRepository{s},
	}
}

type snapshot struct {
	users         map[uuid.UUID]models.User
	attempts      []models.LoginAttempt
	refreshTokens map[uuid.UUID]models.RefreshToken
	verifications map[uuid.UUID]models.EmailVerification
	resets        map[uuid.UUID]models.PasswordReset
}

// Transaction implements repository.Transactor
func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	saved := snapshot{
		users:         maps.Clone(s.users),
		attempts:      append([]models.LoginAttempt(nil), s.attempts...),
		refreshTokens: maps.Clone(s.refreshTokens),
		verifications: maps.Clone(s.verifications),
		resets:        maps.Clone(s.resets),
	}
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.users = saved.users
		s.attempts = saved.attempts
		s.refreshTokens = saved.refreshTokens
		s.verifications = saved.verifications
		s.resets = saved.resets
		s.mu.Unlock()
		return err
	}
	return nil
}

// lock takes the row mutex after checking for cancellation. Outside a
// transaction it first waits for any open transaction to finish.
func (s *Store) lock(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ctx.Value(txKey{}) != nil {
		s.mu.Lock()
		return s.mu.Unlock, nil
	}
	s.txMu.Lock()
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		s.txMu.Unlock()
	}, nil
}

func ptr[T any](v T) *T {
	return &v
}
