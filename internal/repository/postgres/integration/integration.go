// Package integration provides utilities for postgres integration testing
package integration

import (
	"context"
	"testing"
	"time"

	"storyboard/internal/auth"
	"storyboard/internal/models"
	"storyboard/internal/repository"
	"storyboard/internal/repository/postgres"
	"storyboard/internal/testutil/db"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

// TestContext wraps a clean database and the postgres store
type TestContext struct {
	T     *testing.T
	DB    *sqlx.DB
	Store repository.Store
	Now   time.Time
}

// NewTestContext truncates all tables and wires a fresh store over sqlxDB
func NewTestContext(t *testing.T, sqlxDB *sqlx.DB) *TestContext {
	t.Helper()
	db.Truncate(t, sqlxDB)
	return &TestContext{
		T:     t,
		DB:    sqlxDB,
		Store: postgres.NewStore(sqlxDB),
		Now:   time.Now().UTC().Truncate(time.Microsecond),
	}
}

// CreateTestUser inserts a verified active member
func (tc *TestContext) CreateTestUser(email string) *models.User {
	tc.T.Helper()
	user := &models.User{
		Email:          email,
		Name:           "Test User",
		PasswordDigest: "$2a$04$notarealdigestnotarealdigestnotarealdigestnotareal",
		EmailVerified:  true,
		IsActive:       true,
		CreatedAt:      tc.Now,
	}
	require.NoError(tc.T, tc.Store.Users.Create(context.Background(), user))
	return user
}

// CreateTestRefreshToken stores a token for userID expiring after ttl and returns its secret
func (tc *TestContext) CreateTestRefreshToken(userID uuid.UUID, ttl time.Duration) (string, *models.RefreshToken) {
	tc.T.Helper()
	secret, hash, err := auth.GenerateOpaqueToken()
	require.NoError(tc.T, err)

	token := &models.RefreshToken{
		UserID:    userID,
		TokenHash: hash,
		ExpiresAt: tc.Now.Add(ttl),
		IPAddress: "127.0.0.1",
		UserAgent: "test-agent",
		CreatedAt: tc.Now,
	}
	require.NoError(tc.T, tc.Store.RefreshTokens.Create(context.Background(), token))
	return secret, token
}

// NextRefreshToken builds an unsaved successor token for userID
func (tc *TestContext) NextRefreshToken(userID uuid.UUID) *models.RefreshToken {
	tc.T.Helper()
	_, hash, err := auth.GenerateOpaqueToken()
	require.NoError(tc.T, err)
	return &models.RefreshToken{
		UserID:    userID,
		TokenHash: hash,
		ExpiresAt: tc.Now.Add(7 * 24 * time.Hour),
		CreatedAt: tc.Now,
	}
}

// ExecuteSQL executes a raw SQL query for testing
func (tc *TestContext) ExecuteSQL(query string, args ...any) {
	tc.T.Helper()
	_, err := tc.DB.ExecContext(context.Background(), query, args...)
	require.NoError(tc.T, err)
}
