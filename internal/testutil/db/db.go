// Package db starts a throwaway postgres for integration tests
package db

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"storyboard/internal/database"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Tables lists every application table in foreign key order, children first
var Tables = []string{
	"login_attempts",
	"email_verifications",
	"password_resets",
	"refresh_tokens",
	"users",
}

// Container is a migrated postgres instance
type Container struct {
	DB  *sqlx.DB
	URL string

	container *postgres.PostgresContainer
}

// MigrationsPath returns the absolute path of the repository's migrations directory
func MigrationsPath() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "..", "migrations")
}

// Start runs a postgres container and applies all migrations
func Start(ctx context.Context) (*Container, error) {
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("storyboard_test"),
		postgres.WithUsername("storyboard"),
		postgres.WithPassword("storyboard"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	if err := database.MigrateUp(MigrationsPath(), url); err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", url)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	return &Container{DB: db, URL: url, container: container}, nil
}

// Terminate closes the pool and removes the container
func (c *Container) Terminate(ctx context.Context) error {
	c.DB.Close()
	return c.container.Terminate(ctx)
}

// Truncate empties every application table
func Truncate(t *testing.T, db *sqlx.DB) {
	t.Helper()
	for _, table := range Tables {
		_, err := db.Exec("TRUNCATE TABLE " + table + " CASCADE")
		require.NoError(t, err, "Failed to truncate %s", table)
	}
}
