package auth

import (
	"context"

	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// HashService hashes and verifies passwords with bcrypt. At most
// `concurrency` bcrypt operations run at once; waiting callers give up
// when their context ends.
type HashService struct {
	cost int
	sem  *semaphore.Weighted
}

// NewHashService creates a new HashService
func NewHashService(cost, concurrency int) *HashService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &HashService{
		cost: cost,
		sem:  semaphore.NewWeighted(int64(concurrency)),
	}
}

// Hash returns the bcrypt digest of password
func (h *HashService) Hash(ctx context.Context, password string) (string, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", oops.Code("HASH_CANCELLED").Wrap(err)
	}
	defer h.sem.Release(1)

	digest, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", oops.Code("HASH_FAILED").Wrap(err)
	}
	return string(digest), nil
}

// Verify reports whether password matches digest. A malformed digest is a
// mismatch; an error is returned only when ctx ends before a slot frees up.
func (h *HashService) Verify(ctx context.Context, password, digest string) (bool, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, oops.Code("HASH_CANCELLED").Wrap(err)
	}
	defer h.sem.Release(1)

	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil, nil
}
