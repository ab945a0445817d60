package service

import (
	"context"
	"testing"

	"github.com/sibylline/sibyl/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newAuthService(t *testing.T, env *testEnv) *AuthService {
	t.Helper()
	conf := &config.Config{}
	conf.JWT.Secret = "test-secret"
	return NewAuthService(zap.NewNop(), env.db, conf, env.creditService)
}

func TestAuthService_RegisterGrantsSignupBonus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := newAuthService(t, env)

	user, err := svc.Register(ctx, RegisterRequest{
		Username: "alice",
		Password: "secret123",
		Nickname: "Alice",
	})
	require.NoError(t, err)
	require.NotEmpty(t, user.ID)

	// 注册默认赠送10积分
	assert.Equal(t, int64(10), env.credits(t, user.ID))

	// 用户名唯一
	_, err = svc.Register(ctx, RegisterRequest{Username: "alice", Password: "other"})
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestAuthService_LoginAndValidateToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := newAuthService(t, env)

	user, err := svc.Register(ctx, RegisterRequest{Username: "alice", Password: "secret123"})
	require.NoError(t, err)

	resp, err := svc.Login(ctx, LoginRequest{Username: "alice", Password: "secret123"}, "127.0.0.1")
	require.NoError(t, err)
	require.NotEmpty(t, resp.Token)

	claims, err := svc.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "alice", claims.Username)

	_, err = svc.Login(ctx, LoginRequest{Username: "alice", Password: "wrong"}, "127.0.0.1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, LoginRequest{Username: "nobody", Password: "secret123"}, "127.0.0.1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.ValidateToken("not-a-token")
	assert.Error(t, err)
}

func TestAuthService_ChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := newAuthService(t, env)

	user, err := svc.Register(ctx, RegisterRequest{Username: "alice", Password: "secret123"})
	require.NoError(t, err)

	require.Error(t, svc.ChangePassword(ctx, user.ID, "wrong", "newpass123"))
	require.NoError(t, svc.ChangePassword(ctx, user.ID, "secret123", "newpass123"))

	_, err = svc.Login(ctx, LoginRequest{Username: "alice", Password: "newpass123"}, "127.0.0.1")
	assert.NoError(t, err)
}
