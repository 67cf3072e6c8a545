package memory

import (
	"context"
	"slices"
	"time"

	"storyboard/internal/models"
	"storyboard/internal/repository"

	"github.com/google/uuid"
)

type refreshTokenRepository struct {
	s *Store
}

func (r *refreshTokenRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	r.insert(token)
	return nil
}

// insert expects the store mutex to be held.
func (r *refreshTokenRepository) insert(token *models.RefreshToken) {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	r.s.refreshTokens[token.ID] = *token
}

func (r *refreshTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	for _, t := range r.s.refreshTokens {
		if t.TokenHash == tokenHash {
			return &t, nil
		}
	}
	return nil, repository.ErrTokenNotFound
}

func (r *refreshTokenRepository) Rotate(ctx context.Context, oldID uuid.UUID, next *models.RefreshToken, now time.Time) error {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	old, ok := r.s.refreshTokens[oldID]
	if !ok || !old.Usable(now) {
		return repository.ErrConflict
	}

	if next.ID == uuid.Nil {
		next.ID = uuid.New()
	}
	next.Replaces = &oldID
	old.RevokedAt = ptr(now)
	old.ReplacedBy = ptr(next.ID)
	r.s.refreshTokens[oldID] = old
	r.insert(next)
	return nil
}

func (r *refreshTokenRepository) Revoke(ctx context.Context, id, userID uuid.UUID, now time.Time) error {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	t, ok := r.s.refreshTokens[id]
	if !ok || t.UserID != userID || !t.Usable(now) {
		return repository.ErrNotFound
	}
	t.RevokedAt = ptr(now)
	r.s.refreshTokens[id] = t
	return nil
}

func (r *refreshTokenRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	var n int64
	for id, t := range r.s.refreshTokens {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = ptr(now)
			r.s.refreshTokens[id] = t
			n++
		}
	}
	return n, nil
}

func (r *refreshTokenRepository) ListActiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]models.RefreshToken, error) {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	tokens := []models.RefreshToken{}
	for _, t := range r.s.refreshTokens {
		if t.UserID == userID && t.Usable(now) {
			tokens = append(tokens, t)
		}
	}
	slices.SortFunc(tokens, func(a, b models.RefreshToken) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return tokens, nil
}

func (r *refreshTokenRepository) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	var n int64
	for id, t := range r.s.refreshTokens {
		if t.ExpiresAt.Before(before) || (t.RevokedAt != nil && t.RevokedAt.Before(before)) {
			delete(r.s.refreshTokens, id)
			n++
		}
	}
	return n, nil
}
