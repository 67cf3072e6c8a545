package auth

import (
	"errors"
	"time"

	"storyboard/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/samber/oops"
)

// TokenTypeBearer is the token_type reported alongside access tokens
const TokenTypeBearer = "Bearer"

// Claims are the access token claims: sub, role, iat, exp and jti
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim
func (c *Claims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// TokenCodec signs and verifies HS256 access tokens
type TokenCodec struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenCodec creates a new TokenCodec. An empty issuer disables the iss claim.
func NewTokenCodec(secret, issuer string, ttl time.Duration, now func() time.Time) *TokenCodec {
	if now == nil {
		now = time.Now
	}
	return &TokenCodec{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    now,
	}
}

// TTL returns the access token lifetime
func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

// Encode mints an access token for user
func (c *TokenCodec) Encode(user *models.User) (string, error) {
	now := c.now()
	claims := Claims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", oops.Code("TOKEN_SIGN_FAILED").With("user_id", user.ID.String()).Wrap(err)
	}
	return signed, nil
}

// Decode verifies signature, algorithm, expiry and issuer and returns the claims.
// Expired tokens yield ErrTokenExpired, anything else ErrInvalidToken.
func (c *TokenCodec) Decode(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, oops.Code("TOKEN_EXPIRED").Wrap(ErrTokenExpired)
		}
		return nil, oops.Code("TOKEN_INVALID").With("reason", err.Error()).Wrap(ErrInvalidToken)
	}
	if !token.Valid {
		return nil, oops.Code("TOKEN_INVALID").Wrap(ErrInvalidToken)
	}
	if _, err := claims.UserID(); err != nil {
		return nil, oops.Code("TOKEN_INVALID").With("reason", "subject is not a uuid").Wrap(ErrInvalidToken)
	}
	return claims, nil
}
