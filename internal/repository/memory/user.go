package memory

import (
	"context"
	"strings"
	"time"

	"storyboard/internal/models"
	"storyboard/internal/repository"

	"github.com/google/uuid"
)

type userRepository struct {
	s *Store
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	email := strings.ToLower(user.Email)
	for _, u := range r.s.users {
		if strings.ToLower(u.Email) == email {
			return repository.ErrEmailExists
		}
	}

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = user.CreatedAt
	if user.Role == "" {
		user.Role = models.RoleMember
	}
	r.s.users[user.ID] = *user
	return nil
}

func (r *userRepository) GetActiveByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	u, ok := r.s.users[id]
	if !ok || u.DeletedAt != nil {
		return nil, repository.ErrUserNotFound
	}
	return &u, nil
}

func (r *userRepository) GetActiveByEmail(ctx context.Context, email string) (*models.User, error) {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	email = strings.ToLower(email)
	for _, u := range r.s.users {
		if strings.ToLower(u.Email) == email && u.DeletedAt == nil {
			return &u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

// update applies fn to a live user row under the store mutex. The row is
// left untouched when fn fails.
func (r *userRepository) update(ctx context.Context, id uuid.UUID, at time.Time, fn func(u *models.User) error) error {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	u, ok := r.s.users[id]
	if !ok || u.DeletedAt != nil {
		return repository.ErrUserNotFound
	}
	if err := fn(&u); err != nil {
		return err
	}
	u.UpdatedAt = at
	r.s.users[id] = u
	return nil
}

func (r *userRepository) RecordFailedLogin(ctx context.Context, id uuid.UUID, at time.Time, rule repository.LockoutRule) (repository.FailedLoginResult, error) {
	var res repository.FailedLoginResult
	err := r.update(ctx, id, at, func(u *models.User) error {
		res = rule.OnFailure(u, at)
		u.FailedLoginCount = res.FailedCount
		u.LockedUntil = res.LockedUntil
		return nil
	})
	return res, err
}

func (r *userRepository) RecordSuccessfulLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.update(ctx, id, at, func(u *models.User) error {
		if u.LockedUntil != nil && at.Before(*u.LockedUntil) {
			return repository.ErrConflict
		}
		u.FailedLoginCount = 0
		u.LockedUntil = nil
		u.LastLoginAt = ptr(at)
		u.LoginCount++

		return nil
	})
}

func (r *userRepository) UpdatePassword(ctx context.Context, id uuid.UUID, digest string, at time.Time) error {
	return r.update(ctx, id, at, func(u *models.User) error {
		u.PasswordDigest = digest
		u.PasswordChangedAt = ptr(at)
		u.FailedLoginCount = 0
		u.LockedUntil = nil

		return nil
	})
}

func (r *userRepository) MarkEmailVerified(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.update(ctx, id, at, func(u *models.User) error {
		u.EmailVerified = true

		return nil
	})
}

func (r *userRepository) SetActive(ctx context.Context, id uuid.UUID, active bool, at time.Time) error {
	return r.update(ctx, id, at, func(u *models.User) error {
		u.IsActive = active

		return nil
	})
}

func (r *userRepository) SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.update(ctx, id, at, func(u *models.User) error {
		u.DeletedAt = ptr(at)

		return nil
	})
}
