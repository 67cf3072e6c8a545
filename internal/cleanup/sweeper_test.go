package cleanup_test

import (
	"context"
	"testing"
	"time"

	"storyboard/internal/cleanup"
	"storyboard/internal/config"
	"storyboard/internal/models"
	"storyboard/internal/repository/memory"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestRunOnce(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store := memory.New().Repositories()
	userID := uuid.New()

	tokens := []*models.RefreshToken{
		{UserID: userID, TokenHash: "expired-long-ago", ExpiresAt: now.Add(-48 * time.Hour)},
		{UserID: userID, TokenHash: "expired-recently", ExpiresAt: now.Add(-time.Hour)},
		{UserID: userID, TokenHash: "active", ExpiresAt: now.Add(time.Hour)},
	}
	for _, tok := range tokens {
		require.NoError(t, store.RefreshTokens.Create(ctx, tok))
	}
	require.NoError(t, store.EmailVerifications.Create(ctx, &models.EmailVerification{
		UserID: userID, TokenHash: "v-expired", ExpiresAt: now.Add(-time.Minute),
	}))
	require.NoError(t, store.EmailVerifications.Create(ctx, &models.EmailVerification{
		UserID: userID, TokenHash: "v-live", ExpiresAt: now.Add(time.Minute),
	}))
	require.NoError(t, store.PasswordResets.Create(ctx, &models.PasswordReset{
		UserID: userID, TokenHash: "r-expired", ExpiresAt: now.Add(-time.Minute),
	}))

	sweeper := cleanup.NewSweeper(store, config.CleanupConfig{Schedule: "@hourly", Retention: 24 * time.Hour},
		cleanup.WithClock(func() time.Time { return now }))

	res, err := sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, cleanup.Result{RefreshTokens: 1, EmailVerifications: 1, PasswordResets: 1}, res)

	_, err = store.RefreshTokens.GetByTokenHash(ctx, "expired-recently")
	assert.NoError(t, err, "rows inside the retention window are kept")
}

func TestStart(t *testing.T) {
	defer goleak.VerifyNone(t)

	tests := []struct {
		name     string
		schedule string
		wantErr  bool
	}{
		{name: "Descriptor", schedule: "@hourly"},
		{name: "Five Fields", schedule: "*/5 * * * *"},
		{name: "Invalid", schedule: "not a schedule", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sweeper := cleanup.NewSweeper(memory.New().Repositories(), config.CleanupConfig{Schedule: tt.schedule})
			ctx, cancel := context.WithCancel(context.Background())

			done := make(chan error, 1)
			go func() { done <- sweeper.Start(ctx) }()
			cancel()

			select {
			case err := <-done:
				if tt.wantErr {
					assert.Error(t, err)
				} else {
					assert.NoError(t, err)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("sweeper did not stop")
			}
		})
	}
}
