package auth_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"storyboard/internal/auth"
	"storyboard/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestTokenCodec_RoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	codec := auth.NewTokenCodec(testSecret, "storyboard", 15*time.Minute, fixedNow(now))
	user := &models.User{ID: uuid.New(), Role: models.RoleAdmin}

	token, err := codec.Encode(user)
	require.NoError(t, err)

	claims, err := codec.Decode(token)
	require.NoError(t, err)

	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, user.ID, id)
	assert.Equal(t, models.RoleAdmin, claims.Role)
	assert.Equal(t, "storyboard", claims.Issuer)
	assert.True(t, now.Equal(claims.IssuedAt.Time))
	assert.True(t, now.Add(15*time.Minute).Equal(claims.ExpiresAt.Time))
	assert.Equal(t, 15*time.Minute, codec.TTL())
}

func TestTokenCodec_Decode(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	user := &models.User{ID: uuid.New(), Role: models.RoleMember}
	codec := auth.NewTokenCodec(testSecret, "storyboard", 15*time.Minute, fixedNow(now))

	valid, err := codec.Encode(user)
	require.NoError(t, err)

	sign := func(method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	baseClaims := func() jwt.MapClaims {
		return jwt.MapClaims{
			"sub":  user.ID.String(),
			"role": models.RoleMember,
			"iss":  "storyboard",
			"iat":  now.Unix(),
			"exp":  now.Add(time.Minute).Unix(),
		}
	}

	tests := []struct {
		name    string
		token   func() string
		decoder *auth.TokenCodec
		wantErr error
	}{
		{
			name:    "valid",
			token:   func() string { return valid },
			decoder: codec,
		},
		{
			name:    "expired",
			token:   func() string { return valid },
			decoder: auth.NewTokenCodec(testSecret, "storyboard", 15*time.Minute, fixedNow(now.Add(16*time.Minute))),
			wantErr: auth.ErrTokenExpired,
		},
		{
			name:    "wrong secret",
			token:   func() string { return valid },
			decoder: auth.NewTokenCodec("other-secret", "storyboard", 15*time.Minute, fixedNow(now)),
			wantErr: auth.ErrInvalidToken,
		},
		{
			name:    "wrong issuer",
			token:   func() string { return valid },
			decoder: auth.NewTokenCodec(testSecret, "someone-else", 15*time.Minute, fixedNow(now)),
			wantErr: auth.ErrInvalidToken,
		},
		{
			name: "HS512 rejected",
			token: func() string {
				return sign(jwt.SigningMethodHS512, []byte(testSecret), baseClaims())
			},
			decoder: codec,
			wantErr: auth.ErrInvalidToken,
		},
		{
			name: "none rejected",
			token: func() string {
				return sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, baseClaims())
			},
			decoder: codec,
			wantErr: auth.ErrInvalidToken,
		},
		{
			name: "missing exp",
			token: func() string {
				c := baseClaims()
				delete(c, "exp")
				return sign(jwt.SigningMethodHS256, []byte(testSecret), c)
			},
			decoder: codec,
			wantErr: auth.ErrInvalidToken,
		},
		{
			name: "subject not a uuid",
			token: func() string {
				c := baseClaims()
				c["sub"] = "42"
				return sign(jwt.SigningMethodHS256, []byte(testSecret), c)
			},
			decoder: codec,
			wantErr: auth.ErrInvalidToken,
		},
		{
			name:    "tampered payload",
			token:   func() string { parts := strings.Split(valid, "."); return parts[0] + ".e30." + parts[2] },
			decoder: codec,
			wantErr: auth.ErrInvalidToken,
		},
		{
			name:    "garbage",
			token:   func() string { return "not.a.jwt" },
			decoder: codec,
			wantErr: auth.ErrInvalidToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := tt.decoder.Decode(tt.token())
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, user.ID.String(), claims.Subject)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.True(t, errors.Is(err, auth.ErrInvalidOrExpiredToken))
		})
	}
}

func TestOpaqueTokens(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		token, hash, err := auth.GenerateOpaqueToken()
		require.NoError(t, err)
		assert.Len(t, token, 43)
		assert.Len(t, hash, 64)
		assert.Equal(t, auth.HashToken(token), hash)
		assert.False(t, seen[token])
		seen[token] = true
	}
}

func TestEmailValidation(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"user@example.com", true},
		{"first.last+tag@sub.example.org", true},
		{"not-an-email", false},
		{"", false},
		{"User <user@example.com>", false},
		{"user@", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, auth.IsValidEmail(tt.input))
		})
	}

	assert.Equal(t, "user@example.com", auth.NormalizeEmail("  User@Example.COM "))
}
