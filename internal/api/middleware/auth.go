package middleware

import (
	"context"
	"net/http"
	"strings"

	"storyboard/internal/auth"
	"storyboard/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Context keys set by AuthRequired
const (
	ClaimsKey      = "claims"
	UserIDKey      = "user_id"
	AccessTokenKey = "access_token"
)

// Authenticator verifies access tokens
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*auth.Claims, error)
}

// AuthMiddleware guards routes behind a Bearer access token
type AuthMiddleware struct {
	authenticator Authenticator
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(authenticator Authenticator) *AuthMiddleware {
	return &AuthMiddleware{authenticator: authenticator}
}

// AuthRequired rejects requests without a valid access token. Every failure
// gets the same body so callers cannot tell a malformed header from an
// expired token.
func (m *AuthMiddleware) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			unauthorized(c)
			return
		}

		claims, err := m.authenticator.Authenticate(c.Request.Context(), token)
		if err != nil {
			unauthorized(c)
			return
		}

		userID, err := claims.UserID()
		if err != nil {
			unauthorized(c)
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(UserIDKey, userID)
		c.Set(AccessTokenKey, token)
		c.Next()
	}
}

// AdminRequired must run after AuthRequired
func (m *AuthMiddleware) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil || claims.Role != models.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, models.ErrorResponse{Error: "admin access required"})
			return
		}
		c.Next()
	}
}

// GetClaims returns the verified claims of the request, or nil
func GetClaims(c *gin.Context) *auth.Claims {
	v, exists := c.Get(ClaimsKey)
	if !exists {
		return nil
	}
	claims, _ := v.(*auth.Claims)
	return claims
}

// GetUserID returns the authenticated user's id
func GetUserID(c *gin.Context) (uuid.UUID, bool) {
	v, exists := c.Get(UserIDKey)
	if !exists {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: auth.ErrUnauthorized.Error()})
}
