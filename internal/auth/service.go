// Package auth implements credential login, registration, verification and
// reset flows, and refresh-token sessions.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"storyboard/internal/config"
	"storyboard/internal/email"
	"storyboard/internal/logging"
	"storyboard/internal/metrics"
	"storyboard/internal/models"
	"storyboard/internal/repository"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/samber/oops"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// dummyPassword is hashed once and compared against when the email is
// unknown, so both login failure paths pay for one bcrypt comparison.
const dummyPassword = "storyboard-timing-equaliser"

// RegisterInput is the input of Register
type RegisterInput struct {
	Email     string
	Password  string
	Name      string
	IPAddress string
	UserAgent string
}

// LoginInput is the input of Login
type LoginInput struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

// LoginResult carries the token pair and the logged in user
type LoginResult struct {
	TokenPair
	User *models.User
}

// Service orchestrates the account and credential flows
type Service struct {
	store     repository.Store
	hasher    *HashService
	codec     *TokenCodec
	sessions  *SessionManager
	policy    PasswordPolicy
	lockout   LockoutPolicy
	notifier  email.Notifier
	sanitizer *bluemonday.Policy

	requireVerification bool
	verificationTTL     time.Duration
	resetTTL            time.Duration
	sendTimeout         time.Duration

	now        func() time.Time
	logger     *slog.Logger
	metrics    *metrics.Metrics
	syncNotify bool
	pending    sync.WaitGroup

	dummyDigest string
}

// NewService creates a new authentication service
func NewService(cfg *config.Config, store repository.Store, notifier email.Notifier, opts ...Option) *Service {
	o := buildOptions(opts)
	codec := NewTokenCodec(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.AccessTokenTTL, o.now)

	s := &Service{
		store:     store,
		hasher:    NewHashService(cfg.Auth.BcryptCost, cfg.Auth.HashConcurrency),
		codec:     codec,
		sessions:  NewSessionManager(store, codec, cfg.Auth.RefreshTokenTTL, opts...),
		policy:    NewPasswordPolicy(cfg.Password),
		lockout:   LockoutPolicy{Threshold: cfg.Auth.LockoutThreshold, Duration: cfg.Auth.LockoutDuration},
		notifier:  notifier,
		sanitizer: bluemonday.StrictPolicy(),

		requireVerification: cfg.Auth.RequireEmailVerification,
		verificationTTL:     cfg.Auth.VerificationTokenTTL,
		resetTTL:            cfg.Auth.ResetTokenTTL,
		sendTimeout:         cfg.Email.SendTimeout,

		now:        o.now,
		logger:     o.logger,
		metrics:    o.metrics,
		syncNotify: o.syncNotify,
	}

	// Prepared up front so the first unknown-email login costs the same as the rest.
	digest, err := s.hasher.Hash(context.Background(), dummyPassword)
	if err != nil {
		logging.LogError(context.Background(), s.logger, "failed to prepare dummy digest", err)
	}
	s.dummyDigest = digest
	return s
}

// Sessions returns the session manager used by the service
func (s *Service) Sessions() *SessionManager {
	return s.sessions
}

// PasswordPolicy returns the active strength rules
func (s *Service) PasswordPolicy() PasswordPolicy {
	return s.policy
}

// Wait blocks until in-flight notifications have finished
func (s *Service) Wait() {
	s.pending.Wait()
}

// Register creates an account. When verification is required a token is
// mailed; delivery problems are logged and never reported to the caller.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	addr := NormalizeEmail(in.Email)
	if !IsValidEmail(addr) {
		return nil, oops.Code("AUTH_INVALID_EMAIL").Wrap(ErrInvalidEmail)
	}
	if err := s.checkStrength(in.Password); err != nil {
		return nil, err
	}

	if _, err := s.store.Users.GetActiveByEmail(ctx, addr); err == nil {
		return nil, oops.Code("AUTH_DUPLICATE_EMAIL").Wrap(ErrDuplicateEmail)
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, storageErr("AUTH_REGISTER_FAILED", err)
	}

	digest, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &models.User{
		Email:          addr,
		Name:           s.displayName(in.Name, addr),
		PasswordDigest: digest,
		EmailVerified:  !s.requireVerification,
		IsActive:       true,
		Role:           models.RoleMember,
		CreatedAt:      now,
	}
	if err := s.store.Users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, oops.Code("AUTH_DUPLICATE_EMAIL").Wrap(ErrDuplicateEmail)
		}
		return nil, storageErr("AUTH_REGISTER_FAILED", err)
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID, "ip", in.IPAddress)

	if s.requireVerification {
		s.issueVerification(ctx, user)
	}
	return user, nil
}

// Login checks credentials and, on success, opens a session
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	res, outcome, err := s.login(ctx, in)
	s.metrics.LoginAttempt(outcome)
	return res, err
}

func (s *Service) login(ctx context.Context, in LoginInput) (*LoginResult, string, error) {
	now := s.now()
	addr := NormalizeEmail(in.Email)

	user, err := s.store.Users.GetActiveByEmail(ctx, addr)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			return nil, "error", storageErr("AUTH_LOGIN_FAILED", err)
		}
		if _, err := s.hasher.Verify(ctx, in.Password, s.dummyDigest); err != nil {
			return nil, "error", err
		}
		s.recordAttempt(ctx, nil, addr, in, models.FailureUnknownEmail)
		return nil, "invalid_credentials", oops.Code("AUTH_INVALID_CREDENTIALS").
			With("reason", models.FailureUnknownEmail).
			Wrap(ErrInvalidCredentials)
	}

	if s.lockout.IsLocked(user, now) {
		return s.locked(ctx, user, addr, in, now)
	}

	if !user.IsActive {
		s.recordAttempt(ctx, &user.ID, addr, in, models.FailureDeactivated)
		return nil, "deactivated", oops.Code("AUTH_ACCOUNT_DEACTIVATED").
			With("user_id", user.ID.String()).
			Wrap(ErrAccountDeactivated)
	}

	ok, err := s.hasher.Verify(ctx, in.Password, user.PasswordDigest)
	if err != nil {
		return nil, "error", err
	}
	if !ok {
		state, err := s.store.Users.RecordFailedLogin(ctx, user.ID, now, s.lockout)
		if err != nil {
			return nil, "error", storageErr("AUTH_LOGIN_FAILED", err)
		}
		s.recordAttempt(ctx, &user.ID, addr, in, models.FailureBadPassword)
		if state.FailedCount == s.lockout.Threshold {
			s.logger.WarnContext(ctx, "account locked after repeated failures",
				"user_id", user.ID,
				"failed_count", state.FailedCount,
				"locked_until", state.LockedUntil,
			)
		}
		return nil, "invalid_credentials", oops.Code("AUTH_INVALID_CREDENTIALS").
			With("reason", models.FailureBadPassword).
			With("user_id", user.ID.String()).
			Wrap(ErrInvalidCredentials)
	}

	if s.requireVerification && !user.EmailVerified {
		s.recordAttempt(ctx, &user.ID, addr, in, models.FailureUnverified)
		return nil, "unverified", oops.Code("AUTH_EMAIL_NOT_VERIFIED").
			With("user_id", user.ID.String()).
			Wrap(ErrEmailNotVerified)
	}

	var refresh string
	err = s.store.Tx.Transaction(ctx, func(ctx context.Context) error {
		if err := s.store.Users.RecordSuccessfulLogin(ctx, user.ID, now); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return err
			}
			return storageErr("AUTH_LOGIN_FAILED", err)
		}
		var err error
		refresh, _, err = s.sessions.Issue(ctx, user, in.IPAddress, in.UserAgent)
		return err
	})
	if errors.Is(err, repository.ErrConflict) {
		// The account was locked while the password was being checked.
		return s.lockedSinceRead(ctx, user.ID, addr, in, now)
	}
	if err != nil {
		return nil, "error", classify("AUTH_LOGIN_FAILED", err)
	}
	s.recordAttempt(ctx, &user.ID, addr, in, "")

	state := s.lockout.OnSuccess()
	user.FailedLoginCount = state.FailedCount
	user.LockedUntil = state.LockedUntil
	user.LastLoginAt = &now
	user.LoginCount++

	access, err := s.codec.Encode(user)
	if err != nil {
		return nil, "error", err
	}

	return &LoginResult{
		TokenPair: TokenPair{
			AccessToken:  access,
			RefreshToken: refresh,
			ExpiresIn:    int(s.codec.TTL().Seconds()),
			TokenType:    TokenTypeBearer,
		},
		User: user,
	}, "success", nil
}

func (s *Service) locked(ctx context.Context, user *models.User, addr string, in LoginInput, now time.Time) (*LoginResult, string, error) {
	s.recordAttempt(ctx, &user.ID, addr, in, models.FailureLocked)
	return nil, "locked", oops.Code("AUTH_ACCOUNT_LOCKED").
		With("user_id", user.ID.String()).
		Wrap(&LockedError{Until: *user.LockedUntil, RetryAfter: user.LockedUntil.Sub(now)})
}

// lockedSinceRead re-reads a user whose successful login lost to a lock.
func (s *Service) lockedSinceRead(ctx context.Context, id uuid.UUID, addr string, in LoginInput, now time.Time) (*LoginResult, string, error) {
	user, err := s.store.Users.GetActiveByID(ctx, id)
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		s.recordAttempt(ctx, nil, addr, in, models.FailureUnknownEmail)
		return nil, "invalid_credentials", oops.Code("AUTH_INVALID_CREDENTIALS").
			With("reason", models.FailureUnknownEmail).
			Wrap(ErrInvalidCredentials)
	case err != nil:
		return nil, "error", storageErr("AUTH_LOGIN_FAILED", err)
	case !s.lockout.IsLocked(user, now):
		return nil, "error", storageErr("AUTH_LOGIN_FAILED", repository.ErrConflict)
	}
	return s.locked(ctx, user, addr, in, now)
}

// Refresh rotates a refresh token
func (s *Service) Refresh(ctx context.Context, refreshToken, ip, userAgent string) (*TokenPair, error) {
	return s.sessions.Rotate(ctx, refreshToken, ip, userAgent)
}

// Authenticate verifies an access token
func (s *Service) Authenticate(_ context.Context, accessToken string) (*Claims, error) {
	claims, err := s.codec.Decode(accessToken)
	if err != nil {
		return nil, oops.Code("AUTH_UNAUTHENTICATED").With("reason", err.Error()).Wrap(ErrUnauthorized)
	}
	return claims, nil
}

// Logout authenticates the caller and revokes the given refresh token when it
// is one of theirs. Unknown or foreign refresh tokens are ignored so the
// endpoint cannot be used to probe token validity.
func (s *Service) Logout(ctx context.Context, accessToken, refreshToken string) error {
	claims, err := s.Authenticate(ctx, accessToken)
	if err != nil {
		return err
	}
	if refreshToken == "" {
		return nil
	}
	userID, err := claims.UserID()
	if err != nil {
		return oops.Code("AUTH_UNAUTHENTICATED").With("reason", err.Error()).Wrap(ErrUnauthorized)
	}

	token, err := s.store.RefreshTokens.GetByTokenHash(ctx, HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return nil
		}
		return storageErr("AUTH_LOGOUT_FAILED", err)
	}
	if token.UserID != userID {
		s.logger.WarnContext(ctx, "logout presented another user's refresh token", "user_id", userID)
		return nil
	}

	if err := s.store.RefreshTokens.Revoke(ctx, token.ID, userID, s.now()); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return storageErr("AUTH_LOGOUT_FAILED", err)
	}
	return nil
}

// LogoutAll revokes every session of the user
func (s *Service) LogoutAll(ctx context.Context, userID uuid.UUID) error {
	n, err := s.sessions.RevokeAll(ctx, userID)
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "all sessions revoked", "user_id", userID, "count", n)
	return nil
}

// VerifyEmail consumes a verification token and marks its owner verified.
// Unknown, used and expired tokens fail alike.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	if token == "" {
		return oops.Code("AUTH_VERIFY_TOKEN_INVALID").Wrap(ErrInvalidOrExpiredToken)
	}
	now := s.now()

	err := s.store.Tx.Transaction(ctx, func(ctx context.Context) error {
		userID, err := s.store.EmailVerifications.Consume(ctx, HashToken(token), now)
		if err != nil {
			if errors.Is(err, repository.ErrTokenNotFound) {
				return oops.Code("AUTH_VERIFY_TOKEN_INVALID").Wrap(ErrInvalidOrExpiredToken)
			}
			return storageErr("AUTH_VERIFY_FAILED", err)
		}
		if err := s.store.Users.MarkEmailVerified(ctx, userID, now); err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return oops.Code("AUTH_VERIFY_TOKEN_INVALID").With("user_id", userID.String()).Wrap(ErrInvalidOrExpiredToken)
			}
			return storageErr("AUTH_VERIFY_FAILED", err)
		}
		s.logger.InfoContext(ctx, "email verified", "user_id", userID)
		return nil
	})
	return classify("AUTH_VERIFY_FAILED", err)
}

// ResendVerification mails a fresh verification token to an unverified
// account. The result does not reveal whether the address is registered.
func (s *Service) ResendVerification(ctx context.Context, addr string) error {
	addr = NormalizeEmail(addr)
	if !IsValidEmail(addr) {
		return oops.Code("AUTH_INVALID_EMAIL").Wrap(ErrInvalidEmail)
	}

	user, err := s.store.Users.GetActiveByEmail(ctx, addr)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil
		}
		return storageErr("AUTH_RESEND_FAILED", err)
	}
	if user.EmailVerified || !user.IsActive {
		return nil
	}

	s.issueVerification(ctx, user)
	return nil
}

// ForgotPassword mails a reset token to an active account. The result does
// not reveal whether the address is registered.
func (s *Service) ForgotPassword(ctx context.Context, addr string) error {
	addr = NormalizeEmail(addr)
	if !IsValidEmail(addr) {
		return oops.Code("AUTH_INVALID_EMAIL").Wrap(ErrInvalidEmail)
	}

	user, err := s.store.Users.GetActiveByEmail(ctx, addr)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil
		}
		return storageErr("AUTH_FORGOT_FAILED", err)
	}
	if !user.IsActive {
		return nil
	}

	token, hash, err := GenerateOpaqueToken()
	if err != nil {
		logging.LogError(ctx, s.logger, "failed to generate reset token", err)
		return nil
	}
	now := s.now()
	reset := &models.PasswordReset{
		UserID:    user.ID,
		TokenHash: hash,
		ExpiresAt: now.Add(s.resetTTL),
		CreatedAt: now,
	}
	if err := s.store.PasswordResets.Create(ctx, reset); err != nil {
		logging.LogError(ctx, s.logger, "failed to store reset token", err)
		return nil
	}

	s.notify(ctx, user.Email, email.TemplatePasswordReset, map[string]string{
		email.KeyName:  user.Name,
		email.KeyToken: token,
	})
	return nil
}

// ResetPassword sets a new password using a reset token, clears any lockout
// and revokes every session of the account.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := s.checkStrength(newPassword); err != nil {
		return err
	}
	if token == "" {
		return oops.Code("AUTH_RESET_TOKEN_INVALID").Wrap(ErrInvalidOrExpiredToken)
	}

	digest, err := s.hasher.Hash(ctx, newPassword)
	if err != nil {
		return err
	}
	now := s.now()

	err = s.store.Tx.Transaction(ctx, func(ctx context.Context) error {
		userID, err := s.store.PasswordResets.Consume(ctx, HashToken(token), now)
		if err != nil {
			if errors.Is(err, repository.ErrTokenNotFound) {
				return oops.Code("AUTH_RESET_TOKEN_INVALID").Wrap(ErrInvalidOrExpiredToken)
			}
			return storageErr("AUTH_RESET_FAILED", err)
		}
		if err := s.store.Users.UpdatePassword(ctx, userID, digest, now); err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return oops.Code("AUTH_RESET_TOKEN_INVALID").With("user_id", userID.String()).Wrap(ErrInvalidOrExpiredToken)
			}
			return storageErr("AUTH_RESET_FAILED", err)
		}
		n, err := s.store.RefreshTokens.RevokeAllForUser(ctx, userID, now)
		if err != nil {
			return storageErr("AUTH_RESET_FAILED", err)
		}
		s.logger.InfoContext(ctx, "password reset", "user_id", userID, "sessions_revoked", n)
		return nil
	})
	return classify("AUTH_RESET_FAILED", err)
}

// ChangePassword replaces the password of a logged in user. Existing sessions stay valid.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error {
	user, err := s.store.Users.GetActiveByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return oops.Code("AUTH_CHANGE_PASSWORD_DENIED").With("user_id", userID.String()).Wrap(ErrUnauthorized)
		}
		return storageErr("AUTH_CHANGE_PASSWORD_FAILED", err)
	}

	ok, err := s.hasher.Verify(ctx, current, user.PasswordDigest)
	if err != nil {
		return err
	}
	if !ok {
		return oops.Code("AUTH_CHANGE_PASSWORD_DENIED").With("user_id", userID.String()).Wrap(ErrUnauthorized)
	}

	if err := s.checkStrength(next); err != nil {
		return err
	}

	same, err := s.hasher.Verify(ctx, next, user.PasswordDigest)
	if err != nil {
		return err
	}
	if same {
		return oops.Code("AUTH_SAME_PASSWORD").With("user_id", userID.String()).Wrap(ErrSamePassword)
	}

	digest, err := s.hasher.Hash(ctx, next)
	if err != nil {
		return err
	}
	if err := s.store.Users.UpdatePassword(ctx, userID, digest, s.now()); err != nil {
		return storageErr("AUTH_CHANGE_PASSWORD_FAILED", err)
	}

	s.logger.InfoContext(ctx, "password changed", "user_id", userID)
	return nil
}

// LoginHistory returns the user's recent login attempts, newest first
func (s *Service) LoginHistory(ctx context.Context, userID uuid.UUID, limit int) ([]models.LoginAttempt, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)

	attempts, err := s.store.LoginAttempts.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, storageErr("AUTH_HISTORY_FAILED", err)
	}
	return attempts, nil
}

func (s *Service) checkStrength(password string) error {
	res := s.policy.Validate(password)
	if res.Valid {
		return nil
	}
	return oops.Code("AUTH_WEAK_PASSWORD").Wrap(&WeakPasswordError{Violations: res.Violations})
}

// displayName strips markup from a display name, falling back to the address's local part
func (s *Service) displayName(name, addr string) string {
	name = strings.TrimSpace(s.sanitizer.Sanitize(name))
	if name != "" {
		return name
	}
	local, _, _ := strings.Cut(addr, "@")
	return local
}

// recordAttempt appends to the login audit log. Failures are logged only.
func (s *Service) recordAttempt(ctx context.Context, userID *uuid.UUID, addr string, in LoginInput, failure string) {
	attempt := &models.LoginAttempt{
		UserID:        userID,
		Email:         addr,
		IPAddress:     in.IPAddress,
		UserAgent:     in.UserAgent,
		Successful:    failure == "",
		FailureReason: failure,
		CreatedAt:     s.now(),
	}
	if err := s.store.LoginAttempts.Create(ctx, attempt); err != nil {
		logging.LogError(ctx, s.logger, "failed to record login attempt", err)
	}
}

func (s *Service) issueVerification(ctx context.Context, user *models.User) {
	token, hash, err := GenerateOpaqueToken()
	if err != nil {
		logging.LogError(ctx, s.logger, "failed to generate verification token", err)
		return
	}
	now := s.now()
	verification := &models.EmailVerification{
		UserID:    user.ID,
		TokenHash: hash,
		ExpiresAt: now.Add(s.verificationTTL),
		CreatedAt: now,
	}
	if err := s.store.EmailVerifications.Create(ctx, verification); err != nil {
		logging.LogError(ctx, s.logger, "failed to store verification token", err)
		return
	}

	s.notify(ctx, user.Email, email.TemplateVerifyEmail, map[string]string{
		email.KeyName:  user.Name,
		email.KeyToken: token,
	})
}

// notify hands the message to the notifier in the background. The send
// outlives the request but is bounded by the configured send timeout.
func (s *Service) notify(ctx context.Context, to, templateID string, payload map[string]string) {
	send := func() {
		sendCtx := context.WithoutCancel(ctx)
		if s.sendTimeout > 0 {
			var cancel context.CancelFunc
			sendCtx, cancel = context.WithTimeout(sendCtx, s.sendTimeout)
			defer cancel()
		}
		if err := s.notifier.Send(sendCtx, to, templateID, payload); err != nil {
			logging.LogError(sendCtx, s.logger, "failed to send email", err)
		}
	}

	if s.syncNotify {
		send()
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		send()
	}()
}

// classify passes through errors already carrying a kind and marks the rest as storage failures
func classify(code string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := oops.AsOops(err); ok {
		return err
	}
	return storageErr(code, err)
}
