package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sibylline/sibyl/internal/ai"
	"github.com/sibylline/sibyl/internal/ai/mock"
	"github.com/sibylline/sibyl/internal/models"
	"github.com/sibylline/sibyl/internal/xe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type failingDispatcher struct{}

func (failingDispatcher) Dispatch(context.Context, *models.PredictionSession) error {
	return errors.New("queue unavailable")
}

func newSessionService(t *testing.T, env *testEnv, dispatcher Dispatcher, knownModels ...string) *SessionService {
	t.Helper()
	registry := ai.NewRegistry(mock.NewGenerator(knownModels...))
	return NewSessionService(env.db, zap.NewNop(), env.conf, registry,
		env.creditService, dispatcher, env.sessionRepo, env.predictionRepo)
}

func (env *testEnv) newDispatcher(t *testing.T, generator PredictionGenerator) *TaskDispatcher {
	t.Helper()
	worker := env.newWorker(t, generator)
	return NewTaskDispatcher(env.db, zap.NewNop(), env.conf, worker, env.taskRepo)
}

func TestSessionService_StartSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedAccount(t, "user-1", 10)

	dispatcher := env.newDispatcher(t, mock.NewGenerator("m1", "m2"))
	svc := newSessionService(t, env, dispatcher, "m1", "m2")

	sessionId, err := svc.StartSession(ctx, "user-1", "BTCUSDT", []string{"m1", "m2"})
	require.NoError(t, err)
	require.NotEmpty(t, sessionId)

	// 扣费 = 模型数 * 单价
	assert.Equal(t, int64(8), env.credits(t, "user-1"))

	session, err := svc.GetSession(ctx, sessionId)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusQueued, session.Status)
	assert.Equal(t, []string{"m1", "m2"}, []string(session.SelectedModels))

	// 任务已入队且payload完整
	task, err := env.taskRepo.FindNextPending(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, sessionId, task.SessionID)
	assert.Equal(t, models.TaskStatusPending, task.Status)

	var message models.TaskMessage
	require.NoError(t, json.Unmarshal(task.Payload, &message))
	assert.True(t, message.Valid())
	assert.Equal(t, "user-1", message.UserID)
	assert.Equal(t, "BTCUSDT", message.MarketID)
}

func TestSessionService_StartSessionValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedAccount(t, "user-1", 100)

	dispatcher := env.newDispatcher(t, mock.NewGenerator("m1"))
	svc := newSessionService(t, env, dispatcher, "m1")

	_, err := svc.StartSession(ctx, "user-1", "", []string{"m1"})
	assert.ErrorIs(t, err, xe.ErrInvalidParams)

	_, err = svc.StartSession(ctx, "user-1", "BTCUSDT", nil)
	assert.ErrorIs(t, err, xe.ErrNoModelsSelected)

	tooMany := make([]string, MaxModelsPerSession+1)
	for i := range tooMany {
		tooMany[i] = "m1"
	}
	_, err = svc.StartSession(ctx, "user-1", "BTCUSDT", tooMany)
	assert.ErrorIs(t, err, xe.ErrTooManyModels)

	_, err = svc.StartSession(ctx, "user-1", "BTCUSDT", []string{"m1", "ghost"})
	assert.ErrorIs(t, err, xe.ErrUnknownModels)
	assert.Contains(t, err.Error(), "ghost")

	// 校验失败不扣费
	assert.Equal(t, int64(100), env.credits(t, "user-1"))
}

func TestSessionService_StartSessionInsufficientCredits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedAccount(t, "user-1", 1)

	dispatcher := env.newDispatcher(t, mock.NewGenerator("m1", "m2"))
	svc := newSessionService(t, env, dispatcher, "m1", "m2")

	_, err := svc.StartSession(ctx, "user-1", "BTCUSDT", []string{"m1", "m2"})
	assert.ErrorIs(t, err, xe.ErrInsufficientCredits)

	// 未扣费、未创建会话
	assert.Equal(t, int64(1), env.credits(t, "user-1"))
	sessions, err := svc.ListUserSessions(ctx, "user-1", 10)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestSessionService_DispatchFailureRefundsAndMarksError(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedAccount(t, "user-1", 10)

	svc := newSessionService(t, env, failingDispatcher{}, "m1")

	sessionId, err := svc.StartSession(ctx, "user-1", "BTCUSDT", []string{"m1"})
	require.NoError(t, err)
	require.NotEmpty(t, sessionId)

	session, err := svc.GetSession(ctx, sessionId)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusError, session.Status)
	assert.Contains(t, session.Error, "dispatch failed")

	// 投递失败时退款
	assert.Equal(t, int64(10), env.credits(t, "user-1"))
}

func TestSessionService_GetSessionDetail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedAccount(t, "user-1", 10)

	generator := mock.NewGenerator("m1")
	dispatcher := env.newDispatcher(t, generator)
	svc := newSessionService(t, env, dispatcher, "m1")

	sessionId, err := svc.StartSession(ctx, "user-1", "BTCUSDT", []string{"m1"})
	require.NoError(t, err)

	// 模拟worker执行
	worker := env.newWorker(t, generator)
	_, err = worker.Execute(ctx, sessionId)
	require.NoError(t, err)

	detail, err := svc.GetSessionDetail(ctx, sessionId)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusFinished, detail.Session.Status)
	require.Len(t, detail.Predictions, 1)
	assert.Equal(t, "m1", detail.Predictions[0].ModelName)

	_, err = svc.GetSessionDetail(ctx, "no-such-session")
	assert.ErrorIs(t, err, xe.ErrSessionNotFound)
}
