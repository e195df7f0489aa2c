package services

import (
	"context"
	"testing"
	"time"

	"github.com/lexivault/lexivault/internal/common"
	"github.com/lexivault/lexivault/internal/server/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthService_AliceScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "alice", "pw")

	p1, err := f.svc.Login(ctx, "alice", "pw")
	require.NoError(t, err)

	p2, err := f.svc.Refresh(ctx, p1.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, p1.RefreshToken, p2.RefreshToken)

	_, err = f.svc.Refresh(ctx, p1.RefreshToken)
	assert.ErrorIs(t, err, common.ErrRefreshTokenReused)

	ok, err := f.svc.HasActiveRefreshToken(ctx, p2.RefreshToken)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthService_ErrorMapping(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "alice", "pw")

	_, err := f.svc.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	_, err = f.svc.Refresh(ctx, "garbage")
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	p, err := f.svc.Login(ctx, "alice", "pw")
	require.NoError(t, err)
	ok, err := f.svc.Logout(ctx, p.RefreshToken)
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = f.svc.Refresh(ctx, p.RefreshToken)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestAuthService_VerifyAccessToken(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice", "pw")
	p, err := f.svc.Login(context.Background(), "alice", "pw")
	require.NoError(t, err)

	userID, ok := f.svc.VerifyAccessToken(p.AccessToken)
	assert.True(t, ok)
	assert.Equal(t, alice.ID, userID)

	_, ok = f.svc.VerifyAccessToken("not.a.jwt")
	assert.False(t, ok)

	other, err := auth.NewCodec("another-secret", time.Minute)
	require.NoError(t, err)
	forged, _, err := other.CreateAccessToken(alice.ID, nil)
	require.NoError(t, err)
	_, ok = f.svc.VerifyAccessToken(forged)
	assert.False(t, ok)
}

func TestAuthService_EvaluateAuthStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.register(t, "alice", "pw")
	p, err := f.svc.Login(ctx, "alice", "pw")
	require.NoError(t, err)

	expiredCodec, err := auth.NewCodec("test-secret", time.Minute, auth.WithClock(func() time.Time {
		return time.Now().Add(-time.Hour)
	}))
	require.NoError(t, err)
	expired, _, err := expiredCodec.CreateAccessToken(alice.ID, nil)
	require.NoError(t, err)

	tests := []struct {
		name            string
		access, refresh string
		want            AuthStatus
	}{
		{"fully valid", p.AccessToken, p.RefreshToken, AuthStatus{Authenticated: true, CanRefresh: true, UserID: alice.ID}},
		{"garbage access, valid refresh", "garbage", p.RefreshToken, AuthStatus{CanRefresh: true}},
		{"expired access, valid refresh", expired, p.RefreshToken, AuthStatus{CanRefresh: true}},
		{"valid access, no refresh", p.AccessToken, "", AuthStatus{Authenticated: true, UserID: alice.ID}},
		{"nothing", "", "", AuthStatus{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.EvaluateAuthStatus(ctx, tt.access, tt.refresh)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	// The status check must not consume the refresh token.
	_, err = f.svc.Refresh(ctx, p.RefreshToken)
	assert.NoError(t, err)
}

func TestAuthService_CurrentUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.register(t, "alice", "pw")

	u, err := f.svc.CurrentUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)

	_, err = f.svc.CurrentUser(ctx, "ghost")
	assert.ErrorIs(t, err, common.ErrUserDisabled)

	require.NoError(t, f.users.SetDisabled(ctx, alice.ID, true))
	_, err = f.svc.CurrentUser(ctx, alice.ID)
	assert.ErrorIs(t, err, common.ErrUserDisabled)
}

func TestAuthService_NilIsNotInitialized(t *testing.T) {
	ctx := context.Background()
	var s *AuthService

	_, err := s.Login(ctx, "a", "b")
	assert.ErrorIs(t, err, common.ErrServiceNotInitialized)
	_, err = s.Refresh(ctx, "r")
	assert.ErrorIs(t, err, common.ErrServiceNotInitialized)
	_, err = s.Logout(ctx, "r")
	assert.ErrorIs(t, err, common.ErrServiceNotInitialized)
	_, err = s.EvaluateAuthStatus(ctx, "", "")
	assert.ErrorIs(t, err, common.ErrServiceNotInitialized)
	_, ok := s.VerifyAccessToken("x")
	assert.False(t, ok)
}

func TestAuthService_IsStateless(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "alice", "pw")

	p, err := f.svc.Login(ctx, "alice", "pw")
	require.NoError(t, err)

	again := NewAuthService(f.engine, f.codec, f.users)
	_, err = again.Refresh(ctx, p.RefreshToken)
	require.NoError(t, err)
	_, err = f.svc.Refresh(ctx, p.RefreshToken)
	assert.ErrorIs(t, err, common.ErrRefreshTokenReused)
}
