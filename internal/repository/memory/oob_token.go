package memory

import (
	"context"
	"time"

	"storyboard/internal/models"
	"storyboard/internal/repository"

	"github.com/google/uuid"
)

type emailVerificationRepository struct {
	s *Store
}

func (r *emailVerificationRepository) Create(ctx context.Context, v *models.EmailVerification) error {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	r.s.verifications[v.ID] = *v
	return nil
}

func (r *emailVerificationRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (uuid.UUID, error) {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	defer unlock()

	for id, v := range r.s.verifications {
		if v.TokenHash != tokenHash {
			continue
		}
		if v.VerifiedAt != nil || !now.Before(v.ExpiresAt) {
			break
		}
		v.VerifiedAt = ptr(now)
		r.s.verifications[id] = v
		return v.UserID, nil
	}
	return uuid.Nil, repository.ErrTokenNotFound
}

func (r *emailVerificationRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	var n int64
	for id, v := range r.s.verifications {
		if v.ExpiresAt.Before(before) {
			delete(r.s.verifications, id)
			n++
		}
	}
	return n, nil
}

type passwordResetRepository struct {
	s *Store
}

func (r *passwordResetRepository) Create(ctx context.Context, reset *models.PasswordReset) error {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if reset.ID == uuid.Nil {
		reset.ID = uuid.New()
	}
	if reset.CreatedAt.IsZero() {
		reset.CreatedAt = time.Now().UTC()
	}
	r.s.resets[reset.ID] = *reset
	return nil
}

func (r *passwordResetRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (uuid.UUID, error) {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	defer unlock()

	for id, reset := range r.s.resets {
		if reset.TokenHash != tokenHash {
			continue
		}
		if reset.UsedAt != nil || !now.Before(reset.ExpiresAt) {
			break
		}
		reset.UsedAt = ptr(now)
		r.s.resets[id] = reset
		return reset.UserID, nil
	}
	return uuid.Nil, repository.ErrTokenNotFound
}

func (r *passwordResetRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	var n int64
	for id, reset := range r.s.resets {
		if reset.ExpiresAt.Before(before) {
			delete(r.s.resets, id)
			n++
		}
	}
	return n, nil
}
