package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"storyboard/internal/api/middleware"
	"storyboard/internal/auth"
	"storyboard/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuthHandler handles HTTP requests for authentication and sessions
type AuthHandler struct {
	service *auth.Service
	logger  *slog.Logger
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(service *auth.Service, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		logger:  logger,
	}
}

func (h *AuthHandler) fail(c *gin.Context, err error) {
	respondError(c, h.logger, h.service.PasswordPolicy(), err)
}

func tokenResponse(pair auth.TokenPair) models.TokenResponse {
	return models.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
		TokenType:    pair.TokenType,
	}
}

// Register godoc
// @Summary Register a new account
// @Description Create an account and send a verification email
// @Tags auth
// @Accept json
// @Produce json
// @Param request body models.RegisterRequest true "Registration details"
// @Success 201 {object} models.User "Account created"
// @Failure 400 {object} models.ErrorResponse "Invalid email or weak password"
// @Failure 409 {object} models.ErrorResponse "Email already registered"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	user, err := h.service.Register(c.Request.Context(), auth.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		Name:      req.Name,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, user)
}

// Login godoc
// @Summary User login
// @Description Authenticate with email and password and return access and refresh tokens
// @Tags auth
// @Accept json
// @Produce json
// @Param request body models.LoginRequest true "Login credentials"
// @Success 200 {object} models.LoginResponse "Login successful"
// @Failure 400 {object} models.ErrorResponse "Invalid request format"
// @Failure 401 {object} models.ErrorResponse "Invalid credentials"
// @Failure 403 {object} models.ErrorResponse "Account locked, deactivated or email not verified"
// @Failure 429 {object} models.ErrorResponse "Rate limit exceeded"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	result, err := h.service.Login(c.Request.Context(), auth.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, models.LoginResponse{
		TokenResponse: tokenResponse(result.TokenPair),
		User:          result.User,
	})
}

// Refresh godoc
// @Summary Refresh tokens
// @Description Exchange a refresh token for a new token pair. The presented token is revoked.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body models.TokenRefreshRequest true "Refresh token"
// @Success 200 {object} models.TokenResponse
// @Failure 400 {object} models.ErrorResponse "Invalid request format"
// @Failure 401 {object} models.ErrorResponse "Invalid, revoked or expired refresh token"
// @Failure 403 {object} models.ErrorResponse "Account deactivated"
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req models.TokenRefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	pair, err := h.service.Refresh(c.Request.Context(), req.RefreshToken, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		respondTokenError(c, h.logger, h.service.PasswordPolicy(), err)
		return
	}

	c.JSON(http.StatusOK, tokenResponse(*pair))
}

// Logout godoc
// @Summary Log out
// @Description Revoke the given refresh token of the caller
// @Tags auth
// @Accept json
// @Security BearerAuth
// @Param request body models.LogoutRequest false "Refresh token to revoke"
// @Success 204 "Logged out"
// @Failure 401 {object} models.ErrorResponse "Unauthorized"
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	var req models.LogoutRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
			return
		}
	}

	if err := h.service.Logout(c.Request.Context(), c.GetString(middleware.AccessTokenKey), req.RefreshToken); err != nil {
		h.fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// LogoutAll godoc
// @Summary Log out everywhere
// @Description Revoke every session of the caller
// @Tags auth
// @Security BearerAuth
// @Success 204 "All sessions revoked"
// @Failure 401 {object} models.ErrorResponse "Unauthorized"
// @Router /auth/logout-all [post]
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	if err := h.service.LogoutAll(c.Request.Context(), userID); err != nil {
		h.fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// VerifyEmail godoc
// @Summary Verify email
// @Description Consume an email verification token from the query string or the body
// @Tags auth
// @Accept json
// @Produce json
// @Param token query string false "Verification token"
// @Param request body models.EmailVerificationRequest false "Verification token"
// @Success 200 {object} models.SuccessResponse
// @Failure 400 {object} models.ErrorResponse "Invalid or expired token"
// @Router /auth/verify-email [get]
// @Router /auth/verify-email [post]
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	token := c.Query("token")
	if c.Request.Method == http.MethodPost {
		var req models.EmailVerificationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
			return
		}
		token = req.Token
	}

	if err := h.service.VerifyEmail(c.Request.Context(), token); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{Message: "email verified"})
}

// ResendVerification godoc
// @Summary Resend verification email
// @Description Send a new verification email. The response does not reveal whether the account exists.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body models.ResendVerificationRequest true "Email address"
// @Success 200 {object} models.SuccessResponse
// @Failure 400 {object} models.ErrorResponse "Invalid email"
// @Router /auth/resend-verification [post]
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var req models.ResendVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	if err := h.service.ResendVerification(c.Request.Context(), req.Email); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{
		Message: "if the account exists and is unverified, a verification email has been sent",
	})
}

// ForgotPassword godoc
// @Summary Request a password reset
// @Description Email a reset link. The response does not reveal whether the account exists.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body models.PasswordResetRequest true "Email address"
// @Success 200 {object} models.SuccessResponse
// @Failure 400 {object} models.ErrorResponse "Invalid email"
// @Router /auth/forgot-password [post]
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req models.PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	if err := h.service.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{
		Message: "if the account exists, a password reset email has been sent",
	})
}

// ResetPassword godoc
// @Summary Complete a password reset
// @Description Set a new password with a reset token. All sessions are revoked.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body models.CompleteResetRequest true "Reset token and new password"
// @Success 200 {object} models.SuccessResponse
// @Failure 400 {object} models.ErrorResponse "Invalid or expired token, or weak password"
// @Router /auth/reset-password [post]
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req models.CompleteResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	if err := h.service.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{Message: "password has been reset"})
}

// ChangePassword godoc
// @Summary Change password
// @Description Change the caller's password. Existing sessions are kept.
// @Tags auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.ChangePasswordRequest true "Current and new password"
// @Success 200 {object} models.SuccessResponse
// @Failure 400 {object} models.ErrorResponse "Weak or unchanged password"
// @Failure 401 {object} models.ErrorResponse "Current password is wrong"
// @Router /auth/password [put]
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req models.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	userID, _ := middleware.GetUserID(c)
	if err := h.service.ChangePassword(c.Request.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{Message: "password updated"})
}

// ListSessions godoc
// @Summary List sessions
// @Description List the caller's active sessions, newest first
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.SessionsResponse
// @Failure 401 {object} models.ErrorResponse "Unauthorized"
// @Router /auth/sessions [get]
func (h *AuthHandler) ListSessions(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	sessions, err := h.service.Sessions().List(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SessionsResponse{Sessions: sessions})
}

// RevokeSession godoc
// @Summary Revoke a session
// @Description Revoke one of the caller's sessions
// @Tags auth
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 204 "Session revoked"
// @Failure 401 {object} models.ErrorResponse "Unauthorized"
// @Failure 404 {object} models.ErrorResponse "Session not found"
// @Router /auth/sessions/{id} [delete]
func (h *AuthHandler) RevokeSession(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.fail(c, auth.ErrNotFound)
		return
	}

	userID, _ := middleware.GetUserID(c)
	if err := h.service.Sessions().Revoke(c.Request.Context(), userID, sessionID); err != nil {
		h.fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// LoginHistory godoc
// @Summary Login history
// @Description Recent login attempts against the caller's account, newest first
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum entries (default 20, max 100)"
// @Success 200 {object} models.LoginHistoryResponse
// @Failure 401 {object} models.ErrorResponse "Unauthorized"
// @Router /auth/login-history [get]
func (h *AuthHandler) LoginHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	userID, _ := middleware.GetUserID(c)
	attempts, err := h.service.LoginHistory(c.Request.Context(), userID, limit)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, models.LoginHistoryResponse{Attempts: attempts})
}
