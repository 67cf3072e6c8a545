package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storyboard/internal/api/middleware"
	"storyboard/internal/auth"
	"storyboard/internal/models"
	"storyboard/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(tc *testutil.TestContext, extra ...gin.HandlerFunc) *gin.Engine {
	m := middleware.NewAuthMiddleware(tc.Service)

	router := gin.New()
	handlers := append([]gin.HandlerFunc{m.AuthRequired()}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		userID, ok := middleware.GetUserID(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"user_id": userID.String(),
			"role":    middleware.GetClaims(c).Role,
			"token":   c.GetString(middleware.AccessTokenKey),
		})
	})
	router.GET("/test", handlers...)
	return router
}

func codec(tc *testutil.TestContext, secret string) *auth.TokenCodec {
	return auth.NewTokenCodec(secret, tc.Config.Auth.JWTIssuer, tc.Config.Auth.AccessTokenTTL, tc.Clock.Now)
}

func TestAuthMiddleware_AuthRequired(t *testing.T) {
	tests := []struct {
		name       string
		header     func(*testutil.TestContext) string
		wantStatus int
	}{
		{
			name: "Valid Token",
			header: func(tc *testutil.TestContext) string {
				tc.CreateUser("valid@example.com")
				return "Bearer " + tc.Login("valid@example.com").AccessToken
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "Lower-case scheme",
			header: func(tc *testutil.TestContext) string {
				tc.CreateUser("lower@example.com")
				return "bearer " + tc.Login("lower@example.com").AccessToken
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "Missing Authorization Header",
			header:     func(*testutil.TestContext) string { return "" },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "Invalid Authorization Header Format",
			header:     func(*testutil.TestContext) string { return "InvalidFormat Token" },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "Empty Bearer",
			header:     func(*testutil.TestContext) string { return "Bearer   " },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "Wrong Secret",
			header: func(tc *testutil.TestContext) string {
				token, err := codec(tc, "wrong-secret").Encode(&models.User{ID: uuid.New(), Role: models.RoleMember})
				require.NoError(tc.T, err)
				return "Bearer " + token
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "Expired Token",
			header: func(tc *testutil.TestContext) string {
				tc.CreateUser("expired@example.com")
				token := tc.Login("expired@example.com").AccessToken
				tc.Clock.Advance(tc.Config.Auth.AccessTokenTTL + time.Second)
				return "Bearer " + token
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "Unsigned Token",
			header: func(tc *testutil.TestContext) string {
				token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
					"sub":  uuid.NewString(),
					"role": models.RoleAdmin,
					"iss":  tc.Config.Auth.JWTIssuer,
					"iat":  tc.Clock.Now().Unix(),
					"exp":  tc.Clock.Now().Add(time.Hour).Unix(),
				})
				s, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
				require.NoError(tc.T, err)
				return "Bearer " + s
			},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := testutil.NewTestContext(t)
			router := newRouter(tc)

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if h := tt.header(tc); h != "" {
				req.Header.Set("Authorization", h)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.JSONEq(t, `{"error":"unauthorized"}`, w.Body.String())
				return
			}

			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.NotEmpty(t, body["user_id"])
			assert.Equal(t, models.RoleMember, body["role"])
			assert.NotEmpty(t, body["token"])
		})
	}
}

func TestAuthMiddleware_AdminRequired(t *testing.T) {
	tests := []struct {
		name       string
		role       string
		wantStatus int
	}{
		{"Admin", models.RoleAdmin, http.StatusOK},
		{"Member", models.RoleMember, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := testutil.NewTestContext(t)
			router := newRouter(tc, middleware.NewAuthMiddleware(tc.Service).AdminRequired())

			token, err := codec(tc, tc.Config.Auth.JWTSecret).Encode(&models.User{ID: uuid.New(), Role: tt.role})
			require.NoError(t, err)

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}
