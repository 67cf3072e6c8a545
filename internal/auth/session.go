package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"storyboard/internal/metrics"
	"storyboard/internal/models"
	"storyboard/internal/repository"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// TokenPair is the result of a login or refresh
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
	TokenType    string
}

// SessionManager issues, rotates, lists and revokes refresh tokens
type SessionManager struct {
	store   repository.Store
	codec   *TokenCodec
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewSessionManager creates a new SessionManager
func NewSessionManager(store repository.Store, codec *TokenCodec, refreshTTL time.Duration, opts ...Option) *SessionManager {
	o := buildOptions(opts)
	return &SessionManager{
		store:   store,
		codec:   codec,
		ttl:     refreshTTL,
		now:     o.now,
		logger:  o.logger,
		metrics: o.metrics,
	}
}

// Issue creates a refresh token for user and returns its secret
func (m *SessionManager) Issue(ctx context.Context, user *models.User, ip, userAgent string) (string, *models.RefreshToken, error) {
	secret, hash, err := GenerateOpaqueToken()
	if err != nil {
		return "", nil, err
	}

	now := m.now()
	token := &models.RefreshToken{
		UserID:    user.ID,
		TokenHash: hash,
		ExpiresAt: now.Add(m.ttl),
		IPAddress: ip,
		UserAgent: userAgent,
		CreatedAt: now,
	}
	if err := m.store.RefreshTokens.Create(ctx, token); err != nil {
		return "", nil, storageErr("SESSION_CREATE_FAILED", err)
	}
	return secret, token, nil
}

// Rotate exchanges a usable refresh token for a new pair. The presented token
// is revoked by a conditional update, so of several concurrent callers with
// the same token exactly one succeeds.
func (m *SessionManager) Rotate(ctx context.Context, presented, ip, userAgent string) (*TokenPair, error) {
	pair, err := m.rotate(ctx, presented, ip, userAgent)
	switch {
	case err == nil:
		m.metrics.Rotation("success")
	case errors.Is(err, ErrInvalidOrExpiredToken):
		m.metrics.Rotation("rejected")
	default:
		m.metrics.Rotation("error")
	}
	return pair, err
}

func (m *SessionManager) rotate(ctx context.Context, presented, ip, userAgent string) (*TokenPair, error) {
	if presented == "" {
		return nil, oops.Code("REFRESH_TOKEN_EMPTY").Wrap(ErrInvalidToken)
	}
	now := m.now()

	current, err := m.store.RefreshTokens.GetByTokenHash(ctx, HashToken(presented))
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return nil, oops.Code("REFRESH_TOKEN_UNKNOWN").Wrap(ErrInvalidToken)
		}
		return nil, storageErr("REFRESH_LOOKUP_FAILED", err)
	}

	if current.RevokedAt != nil {
		if current.ReplacedBy != nil {
			m.logger.WarnContext(ctx, "rotated refresh token presented again",
				"user_id", current.UserID,
				"session_id", current.ID,
				"ip", ip,
			)
		}
		return nil, oops.Code("REFRESH_TOKEN_REVOKED").With("session_id", current.ID.String()).Wrap(ErrTokenRevoked)
	}
	if !now.Before(current.ExpiresAt) {
		return nil, oops.Code("REFRESH_TOKEN_EXPIRED").With("session_id", current.ID.String()).Wrap(ErrTokenExpired)
	}

	user, err := m.store.Users.GetActiveByID(ctx, current.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, oops.Code("REFRESH_USER_GONE").With("user_id", current.UserID.String()).Wrap(ErrInvalidToken)
		}
		return nil, storageErr("REFRESH_LOOKUP_FAILED", err)
	}
	if !user.IsActive {
		return nil, oops.Code("REFRESH_USER_DEACTIVATED").With("user_id", user.ID.String()).Wrap(ErrInvalidToken)
	}

	secret, hash, err := GenerateOpaqueToken()
	if err != nil {
		return nil, err
	}
	next := &models.RefreshToken{
		UserID:    user.ID,
		TokenHash: hash,
		ExpiresAt: now.Add(m.ttl),
		IPAddress: ip,
		UserAgent: userAgent,
		CreatedAt: now,
	}
	if err := m.store.RefreshTokens.Rotate(ctx, current.ID, next, now); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, oops.Code("REFRESH_TOKEN_RACE").With("session_id", current.ID.String()).Wrap(ErrTokenRevoked)
		}
		return nil, storageErr("REFRESH_ROTATE_FAILED", err)
	}

	access, err := m.codec.Encode(user)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: secret,
		ExpiresIn:    int(m.codec.TTL().Seconds()),
		TokenType:    TokenTypeBearer,
	}, nil
}

// List returns the user's usable sessions, newest first
func (m *SessionManager) List(ctx context.Context, userID uuid.UUID) ([]models.Session, error) {
	tokens, err := m.store.RefreshTokens.ListActiveByUser(ctx, userID, m.now())
	if err != nil {
		return nil, storageErr("SESSION_LIST_FAILED", err)
	}

	sessions := make([]models.Session, len(tokens))
	for i := range tokens {
		sessions[i] = models.SessionFromToken(&tokens[i])
	}
	return sessions, nil
}

// Revoke ends one session. Missing, foreign and already revoked sessions are all ErrNotFound.
func (m *SessionManager) Revoke(ctx context.Context, userID, sessionID uuid.UUID) error {
	err := m.store.RefreshTokens.Revoke(ctx, sessionID, userID, m.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return oops.Code("SESSION_NOT_FOUND").
				With("user_id", userID.String()).
				With("session_id", sessionID.String()).
				Wrap(ErrNotFound)
		}
		return storageErr("SESSION_REVOKE_FAILED", err)
	}
	return nil
}

// RevokeAll ends every session of the user and returns how many rows it revoked
func (m *SessionManager) RevokeAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := m.store.RefreshTokens.RevokeAllForUser(ctx, userID, m.now())
	if err != nil {
		return 0, storageErr("SESSION_REVOKE_ALL_FAILED", err)
	}
	return n, nil
}

// storageErr classifies a repository failure as ErrStorageUnavailable, keeping the cause in the chain
func storageErr(code string, err error) error {
	return oops.Code(code).Wrap(fmt.Errorf("%w: %w", ErrStorageUnavailable, err))
}
