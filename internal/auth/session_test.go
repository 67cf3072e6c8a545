package auth_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"storyboard/internal/auth"
	"storyboard/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"
)

func TestSessionManager_RotateIsSingleUse(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	tc := testutil.NewTestContext(t)
	tc.CreateUser("rotate@example.com")
	login := tc.Login("rotate@example.com")

	const callers = 16
	var wins, rejected atomic.Int32
	winner := make(chan *auth.TokenPair, callers)

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			pair, err := tc.Service.Sessions().Rotate(ctx, login.RefreshToken, "203.0.113.9", "race")
			switch {
			case err == nil:
				wins.Add(1)
				winner <- pair
			case errors.Is(err, auth.ErrInvalidOrExpiredToken):
				rejected.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	close(winner)

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(callers-1), rejected.Load())

	pair := <-winner
	require.NotNil(t, pair)
	_, err := tc.Service.Refresh(context.Background(), pair.RefreshToken, "", "")
	assert.NoError(t, err, "the winning successor is usable")
}

func TestSessionManager_ListAndRevoke(t *testing.T) {
	ctx := context.Background()
	tc := testutil.NewTestContext(t)
	user := tc.CreateUser("list@example.com")
	first := tc.Login("list@example.com")
	tc.Login("list@example.com")

	sessions, err := tc.Service.Sessions().List(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	_, err = tc.Service.Refresh(ctx, first.RefreshToken, "10.1.1.1", "rotated")
	require.NoError(t, err)

	sessions, err = tc.Service.Sessions().List(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 2, "a rotated session is replaced, not added")

	for _, s := range sessions {
		require.NoError(t, tc.Service.Sessions().Revoke(ctx, user.ID, s.ID))
	}
	err = tc.Service.Sessions().Revoke(ctx, user.ID, sessions[0].ID)
	assert.True(t, errors.Is(err, auth.ErrNotFound))

	n, err := tc.Service.Sessions().RevokeAll(ctx, user.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSessionManager_RotateEmpty(t *testing.T) {
	tc := testutil.NewTestContext(t)
	_, err := tc.Service.Sessions().Rotate(context.Background(), "", "", "")
	assert.True(t, errors.Is(err, auth.ErrInvalidToken))
}
