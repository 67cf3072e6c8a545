package handlers_test

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"storyboard/internal/auth"
	"storyboard/internal/email"
	"storyboard/internal/models"
	"storyboard/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

const (
	registerPath = "/api/v1/auth/register"
	loginPath    = "/api/v1/auth/login"
	refreshPath  = "/api/v1/auth/refresh"
)

func TestAuthHandler_Register(t *testing.T) {
	tests := []struct {
		name        string
		setupFunc   func(*testutil.TestContext)
		input       any
		wantStatus  int
		wantErr     string
		wantDetails int
	}{
		{
			name: "Success",
			input: models.RegisterRequest{
				Email:    "New.User@Example.com",
				Password: testutil.StrongPassword,
				Name:     "New User",
			},
			wantStatus: http.StatusCreated,
		},
		{
			name: "Duplicate Email",
			setupFunc: func(tc *testutil.TestContext) {
				tc.CreateUser("taken@example.com")
			},
			input: models.RegisterRequest{
				Email:    "TAKEN@example.com",
				Password: testutil.StrongPassword,
				Name:     "Someone",
			},
			wantStatus: http.StatusConflict,
			wantErr:    auth.ErrDuplicateEmail.Error(),
		},
		{
			name: "Weak Password",
			input: models.RegisterRequest{
				Email:    "weak@example.com",
				Password: "short",
				Name:     "Weak",
			},
			wantStatus:  http.StatusBadRequest,
			wantErr:     auth.ErrWeakPassword.Error(),
			wantDetails: 4,
		},
		{
			name: "Invalid Email",
			input: models.RegisterRequest{
				Email:    "not-an-email",
				Password: testutil.StrongPassword,
				Name:     "Nobody",
			},
			wantStatus: http.StatusBadRequest,
			wantErr:    auth.ErrInvalidEmail.Error(),
		},
		{
			name: "Blank Name",
			input: models.RegisterRequest{
				Email:    "blank@example.com",
				Password: testutil.StrongPassword,
				Name:     "   ",
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Missing Fields",
			input:      map[string]string{"email": "x@example.com"},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := testutil.NewTestContext(t)
			if tt.setupFunc != nil {
				tt.setupFunc(tc)
			}

			w := tc.Do(http.MethodPost, registerPath, "", tt.input)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			if tt.wantStatus == http.StatusCreated {
				user := testutil.Decode[map[string]any](t, w)
				assert.Equal(t, "new.user@example.com", user["email"])
				assert.Equal(t, false, user["email_verified"])
				assert.Equal(t, models.RoleMember, user["role"])
				assert.NotContains(t, user, "password_digest")
				assert.NotEmpty(t, tc.Notifier.LastToken("new.user@example.com", email.TemplateVerifyEmail))
				return
			}

			resp := testutil.Decode[models.ErrorResponse](t, w)
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, resp.Error)
			}
			assert.Len(t, resp.Details, tt.wantDetails)
		})
	}
}

func TestAuthHandler_Login(t *testing.T) {
	tests := []struct {
		name       string
		setupFunc  func(*testutil.TestContext)
		input      models.LoginRequest
		wantStatus int
		wantErr    string
	}{
		{
			name: "Success",
			setupFunc: func(tc *testutil.TestContext) {
				tc.CreateUser("user@example.com")
			},
			input:      models.LoginRequest{Email: "User@Example.com", Password: testutil.StrongPassword},
			wantStatus: http.StatusOK,
		},
		{
			name: "Wrong Password",
			setupFunc: func(tc *testutil.TestContext) {
				tc.CreateUser("user@example.com")
			},
			input:      models.LoginRequest{Email: "user@example.com", Password: "Wrong-Horse-1"},
			wantStatus: http.StatusUnauthorized,
			wantErr:    auth.ErrInvalidCredentials.Error(),
		},
		{
			name:       "Unknown Email",
			input:      models.LoginRequest{Email: "ghost@example.com", Password: testutil.StrongPassword},
			wantStatus: http.StatusUnauthorized,
			wantErr:    auth.ErrInvalidCredentials.Error(),
		},
		{
			name: "Unverified",
			setupFunc: func(tc *testutil.TestContext) {
				_, err := tc.Service.Register(context.Background(), auth.RegisterInput{
					Email: "pending@example.com", Password: testutil.StrongPassword, Name: "Pending",
				})
				require.NoError(t, err)
			},
			input:      models.LoginRequest{Email: "pending@example.com", Password: testutil.StrongPassword},
			wantStatus: http.StatusForbidden,
			wantErr:    auth.ErrEmailNotVerified.Error(),
		},
		{
			name: "Deactivated",
			setupFunc: func(tc *testutil.TestContext) {
				user := tc.CreateUser("gone@example.com")
				require.NoError(t, tc.Store.Users.SetActive(context.Background(), user.ID, false, tc.Clock.Now()))
			},
			input:      models.LoginRequest{Email: "gone@example.com", Password: testutil.StrongPassword},
			wantStatus: http.StatusForbidden,
			wantErr:    auth.ErrAccountDeactivated.Error(),
		},
		{
			name: "Soft Deleted",
			setupFunc: func(tc *testutil.TestContext) {
				user := tc.CreateUser("deleted@example.com")
				require.NoError(t, tc.Store.Users.SoftDelete(context.Background(), user.ID, tc.Clock.Now()))
			},
			input:      models.LoginRequest{Email: "deleted@example.com", Password: testutil.StrongPassword},
			wantStatus: http.StatusUnauthorized,
			wantErr:    auth.ErrInvalidCredentials.Error(),
		},
		{
			name:       "Missing Password",
			input:      models.LoginRequest{Email: "user@example.com"},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := testutil.NewTestContext(t)
			if tt.setupFunc != nil {
				tt.setupFunc(tc)
			}

			w := tc.Do(http.MethodPost, loginPath, "", tt.input)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			if tt.wantStatus == http.StatusOK {
				resp := testutil.Decode[models.LoginResponse](t, w)
				assert.NotEmpty(t, resp.AccessToken)
				assert.NotEmpty(t, resp.RefreshToken)
				assert.Equal(t, 900, resp.ExpiresIn)
				assert.Equal(t, "Bearer", resp.TokenType)
				require.NotNil(t, resp.User)
				assert.Equal(t, "user@example.com", resp.User.Email)
				assert.Equal(t, 1, resp.User.LoginCount)
				return
			}
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, testutil.Decode[models.ErrorResponse](t, w).Error)
			}
		})
	}
}

func TestAuthHandler_LoginLockout(t *testing.T) {
	tc := testutil.NewTestContext(t)
	tc.CreateUser("locked@example.com")

	wrong := models.LoginRequest{Email: "locked@example.com", Password: "Wrong-Horse-1"}
	for i := 0; i < tc.Config.Auth.LockoutThreshold; i++ {
		w := tc.Do(http.MethodPost, loginPath, "", wrong)
		require.Equal(t, http.StatusUnauthorized, w.Code, "attempt %d", i+1)
	}

	w := tc.Do(http.MethodPost, loginPath, "", models.LoginRequest{Email: "locked@example.com", Password: testutil.StrongPassword})
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, auth.ErrAccountLocked.Error(), testutil.Decode[models.ErrorResponse](t, w).Error)
	assert.Equal(t, "900", w.Header().Get("Retry-After"))

	tc.Clock.Advance(tc.Config.Auth.LockoutDuration + time.Second)
	w = tc.Do(http.MethodPost, loginPath, "", models.LoginRequest{Email: "locked@example.com", Password: testutil.StrongPassword})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthHandler_Refresh(t *testing.T) {
	tc := testutil.NewTestContext(t)
	tc.CreateUser("refresh@example.com")
	login := tc.Login("refresh@example.com")

	w := tc.Do(http.MethodPost, refreshPath, "", models.TokenRefreshRequest{RefreshToken: login.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	pair := testutil.Decode[models.TokenResponse](t, w)
	assert.NotEqual(t, login.RefreshToken, pair.RefreshToken)
	assert.Equal(t, 900, pair.ExpiresIn)
	assert.Equal(t, "Bearer", pair.TokenType)

	tests := []struct {
		name       string
		body       any
		wantStatus int
	}{
		{"Reused Token", models.TokenRefreshRequest{RefreshToken: login.RefreshToken}, http.StatusUnauthorized},
		{"Unknown Token", models.TokenRefreshRequest{RefreshToken: "bogus"}, http.StatusUnauthorized},
		{"Missing Token", map[string]string{}, http.StatusBadRequest},
		{"Rotated Token", models.TokenRefreshRequest{RefreshToken: pair.RefreshToken}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := tc.Do(http.MethodPost, refreshPath, "", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Equal(t, auth.ErrInvalidOrExpiredToken.Error(), testutil.Decode[models.ErrorResponse](t, w).Error)
			}
		})
	}
}

func TestAuthHandler_RefreshDeactivatedAccount(t *testing.T) {
	tc := testutil.NewTestContext(t)
	user := tc.CreateUser("paused@example.com")
	login := tc.Login("paused@example.com")
	require.NoError(t, tc.Store.Users.SetActive(context.Background(), user.ID, false, tc.Clock.Now()))

	w := tc.Do(http.MethodPost, refreshPath, "", models.TokenRefreshRequest{RefreshToken: login.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code, w.Body.String())
	assert.Equal(t, auth.ErrInvalidOrExpiredToken.Error(), testutil.Decode[models.ErrorResponse](t, w).Error)
}

func TestAuthHandler_Logout(t *testing.T) {
	tc := testutil.NewTestContext(t)
	tc.CreateUser("logout@example.com")
	login := tc.Login("logout@example.com")

	w := tc.Do(http.MethodPost, "/api/v1/auth/logout", "", models.LogoutRequest{RefreshToken: login.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = tc.Do(http.MethodPost, "/api/v1/auth/logout", login.AccessToken, models.LogoutRequest{RefreshToken: login.RefreshToken})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = tc.Do(http.MethodPost, refreshPath, "", models.TokenRefreshRequest{RefreshToken: login.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// no body and unknown tokens are accepted silently
	assert.Equal(t, http.StatusNoContent, tc.Do(http.MethodPost, "/api/v1/auth/logout", login.AccessToken, nil).Code)
	assert.Equal(t, http.StatusNoContent,
		tc.Do(http.MethodPost, "/api/v1/auth/logout", login.AccessToken, models.LogoutRequest{RefreshToken: "unknown"}).Code)
}

func TestAuthHandler_LogoutAll(t *testing.T) {
	tc := testutil.NewTestContext(t)
	tc.CreateUser("all@example.com")
	first := tc.Login("all@example.com")
	second := tc.Login("all@example.com")

	w := tc.Do(http.MethodPost, "/api/v1/auth/logout-all", second.AccessToken, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	for _, token := range []string{first.RefreshToken, second.RefreshToken} {
		w := tc.Do(http.MethodPost, refreshPath, "", models.TokenRefreshRequest{RefreshToken: token})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}
}

func TestAuthHandler_VerifyEmail(t *testing.T) {
	tests := []struct {
		name   string
		method string
	}{
		{"Query", http.MethodGet},
		{"Body", http.MethodPost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := testutil.NewTestContext(t)
			w := tc.Do(http.MethodPost, registerPath, "", models.RegisterRequest{
				Email: "verify@example.com", Password: testutil.StrongPassword, Name: "Verify",
			})
			require.Equal(t, http.StatusCreated, w.Code)
			token := tc.Notifier.LastToken("verify@example.com", email.TemplateVerifyEmail)
			require.NotEmpty(t, token)

			send := func() int {
				if tt.method == http.MethodGet {
					return tc.Do(http.MethodGet, "/api/v1/auth/verify-email?token="+token, "", nil).Code
				}
				return tc.Do(http.MethodPost, "/api/v1/auth/verify-email", "", models.EmailVerificationRequest{Token: token}).Code
			}

			assert.Equal(t, http.StatusOK, send())
			assert.Equal(t, http.StatusBadRequest, send(), "token is single use")

			w = tc.Do(http.MethodPost, loginPath, "", models.LoginRequest{Email: "verify@example.com", Password: testutil.StrongPassword})
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}

func TestAuthHandler_AntiEnumeration(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		message string
	}{
		{"Resend Verification", "/api/v1/auth/resend-verification", "if the account exists and is unverified, a verification email has been sent"},
		{"Forgot Password", "/api/v1/auth/forgot-password", "if the account exists, a password reset email has been sent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := testutil.NewTestContext(t)
			_, err := tc.Service.Register(context.Background(), auth.RegisterInput{
				Email: "known@example.com", Password: testutil.StrongPassword, Name: "Known",
			})
			require.NoError(t, err)

			known := tc.Do(http.MethodPost, tt.path, "", map[string]string{"email": "known@example.com"})
			unknown := tc.Do(http.MethodPost, tt.path, "", map[string]string{"email": "unknown@example.com"})

			require.Equal(t, http.StatusOK, known.Code)
			require.Equal(t, http.StatusOK, unknown.Code)
			assert.Equal(t, known.Body.String(), unknown.Body.String())
			assert.Equal(t, tt.message, testutil.Decode[models.SuccessResponse](t, known).Message)

			bad := tc.Do(http.MethodPost, tt.path, "", map[string]string{"email": "nope"})
			assert.Equal(t, http.StatusBadRequest, bad.Code)
		})
	}
}

func TestAuthHandler_ResetPassword(t *testing.T) {
	tc := testutil.NewTestContext(t)
	tc.CreateUser("reset@example.com")
	login := tc.Login("reset@example.com")

	w := tc.Do(http.MethodPost, "/api/v1/auth/forgot-password", "", models.PasswordResetRequest{Email: "reset@example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	token := tc.Notifier.LastToken("reset@example.com", email.TemplatePasswordReset)
	require.NotEmpty(t, token)

	w = tc.Do(http.MethodPost, "/api/v1/auth/reset-password", "", models.CompleteResetRequest{Token: token, NewPassword: "weak"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, auth.ErrWeakPassword.Error(), testutil.Decode[models.ErrorResponse](t, w).Error)

	const next = "Battery-Staple-7"
	w = tc.Do(http.MethodPost, "/api/v1/auth/reset-password", "", models.CompleteResetRequest{Token: token, NewPassword: next})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = tc.Do(http.MethodPost, "/api/v1/auth/reset-password", "", models.CompleteResetRequest{Token: token, NewPassword: next})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, auth.ErrInvalidOrExpiredToken.Error(), testutil.Decode[models.ErrorResponse](t, w).Error)

	w = tc.Do(http.MethodPost, refreshPath, "", models.TokenRefreshRequest{RefreshToken: login.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "reset revokes sessions")

	w = tc.Do(http.MethodPost, loginPath, "", models.LoginRequest{Email: "reset@example.com", Password: next})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthHandler_ChangePassword(t *testing.T) {
	tests := []struct {
		name       string
		input      models.ChangePasswordRequest
		wantStatus int
		wantErr    string
	}{
		{
			name:       "Success",
			input:      models.ChangePasswordRequest{CurrentPassword: testutil.StrongPassword, NewPassword: "Battery-Staple-7"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "Wrong Current Password",
			input:      models.ChangePasswordRequest{CurrentPassword: "Wrong-Horse-1", NewPassword: "Battery-Staple-7"},
			wantStatus: http.StatusUnauthorized,
			wantErr:    auth.ErrUnauthorized.Error(),
		},
		{
			name:       "Same Password",
			input:      models.ChangePasswordRequest{CurrentPassword: testutil.StrongPassword, NewPassword: testutil.StrongPassword},
			wantStatus: http.StatusBadRequest,
			wantErr:    auth.ErrSamePassword.Error(),
		},
		{
			name:       "Weak Password",
			input:      models.ChangePasswordRequest{CurrentPassword: testutil.StrongPassword, NewPassword: "alllowercase"},
			wantStatus: http.StatusBadRequest,
			wantErr:    auth.ErrWeakPassword.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := testutil.NewTestContext(t)
			tc.CreateUser("change@example.com")
			login := tc.Login("change@example.com")

			w := tc.Do(http.MethodPut, "/api/v1/auth/password", login.AccessToken, tt.input)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, testutil.Decode[models.ErrorResponse](t, w).Error)
				return
			}

			// sessions survive a password change
			w = tc.Do(http.MethodPost, refreshPath, "", models.TokenRefreshRequest{RefreshToken: login.RefreshToken})
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}

func TestAuthHandler_Sessions(t *testing.T) {
	tc := testutil.NewTestContext(t)
	tc.CreateUser("owner@example.com")
	tc.CreateUser("other@example.com")
	first := tc.Login("owner@example.com")
	tc.Clock.Advance(time.Minute)
	second := tc.Login("owner@example.com")
	other := tc.Login("other@example.com")

	w := tc.Do(http.MethodGet, "/api/v1/auth/sessions", second.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	sessions := testutil.Decode[models.SessionsResponse](t, w).Sessions
	require.Len(t, sessions, 2)
	assert.True(t, sessions[0].CreatedAt.After(sessions[1].CreatedAt), "newest first")

	otherSessions := testutil.Decode[models.SessionsResponse](t,
		tc.Do(http.MethodGet, "/api/v1/auth/sessions", other.AccessToken, nil)).Sessions
	require.Len(t, otherSessions, 1)

	tests := []struct {
		name       string
		id         string
		wantStatus int
	}{
		{"Invalid ID", "not-a-uuid", http.StatusNotFound},
		{"Foreign Session", otherSessions[0].ID.String(), http.StatusNotFound},
		{"Own Session", sessions[1].ID.String(), http.StatusNoContent},
		{"Already Revoked", sessions[1].ID.String(), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := tc.Do(http.MethodDelete, "/api/v1/auth/sessions/"+tt.id, second.AccessToken, nil)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}

	w = tc.Do(http.MethodPost, refreshPath, "", models.TokenRefreshRequest{RefreshToken: first.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = tc.Do(http.MethodPost, refreshPath, "", models.TokenRefreshRequest{RefreshToken: other.RefreshToken})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthHandler_LoginHistory(t *testing.T) {
	tc := testutil.NewTestContext(t)
	tc.CreateUser("history@example.com")

	w := tc.Do(http.MethodPost, loginPath, "", models.LoginRequest{Email: "history@example.com", Password: "Wrong-Horse-1"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	tc.Clock.Advance(time.Second)
	login := tc.Login("history@example.com")

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantLen    int
	}{
		{"Default Limit", "", http.StatusOK, 2},
		{"Limit One", "?limit=1", http.StatusOK, 1},
		{"Negative Limit", "?limit=-1", http.StatusBadRequest, 0},
		{"Not A Number", "?limit=abc", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := tc.Do(http.MethodGet, "/api/v1/auth/login-history"+tt.query, login.AccessToken, nil)
			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}
			attempts := testutil.Decode[models.LoginHistoryResponse](t, w).Attempts
			require.Len(t, attempts, tt.wantLen)
			assert.True(t, attempts[0].Successful, "newest first")
		})
	}
}

func TestAuthHandler_NotifierFailure(t *testing.T) {
	tc := testutil.NewTestContext(t)
	tc.CreateUser("fail@example.com")
	tc.Notifier.Err = context.DeadlineExceeded

	// notifier failures never reach the client
	w := tc.Do(http.MethodPost, "/api/v1/auth/forgot-password", "", models.PasswordResetRequest{Email: "fail@example.com"})
	assert.Equal(t, http.StatusOK, w.Code)
}
