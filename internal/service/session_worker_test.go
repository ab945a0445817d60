package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sibylline/sibyl/internal/ai"
	"github.com/sibylline/sibyl/internal/ai/mock"
	"github.com/sibylline/sibyl/internal/models"
	"github.com/sibylline/sibyl/internal/xe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func createSession(t *testing.T, env *testEnv, userId string, selectedModels []string, status models.SessionStatus) string {
	t.Helper()
	session := models.PredictionSession{
		ID:             ulid.Make().String(),
		UserID:         userId,
		MarketID:       "BTCUSDT",
		SelectedModels: datatypes.NewJSONSlice(selectedModels),
		Status:         status,
		CreatedAt:      time.Now(),
	}
	require.NoError(t, env.sessionRepo.Create(context.Background(), &session))
	return session.ID
}

func TestSessionWorker_AllModelsSucceed(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "user-1", 10)

	var calls []string
	generator := &mock.Generator{
		Name_:   "mock",
		Models_: []string{"m1", "m2", "m3"},
		GenerateFunc: func(_ context.Context, _ string, model string) (*ai.Result, error) {
			calls = append(calls, model)
			return mock.DefaultResult(), nil
		},
	}
	worker := env.newWorker(t, generator)

	sessionId := createSession(t, env, "user-1", []string{"m1", "m2", "m3"}, models.SessionStatusQueued)

	result, err := worker.Execute(context.Background(), sessionId)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Success)
	assert.Equal(t, 0, result.Failure)

	// 模型按选择顺序串行执行
	assert.Equal(t, []string{"m1", "m2", "m3"}, calls)

	session, err := env.sessionRepo.FindById(context.Background(), sessionId)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusFinished, session.Status)
	assert.Equal(t, 3, session.SuccessCount)
	assert.Equal(t, 0, session.FailureCount)
	require.NotNil(t, session.CompletedAt)

	predictions, err := env.predictionRepo.FindBySessionId(context.Background(), sessionId)
	require.NoError(t, err)
	assert.Len(t, predictions, 3)
}

func TestSessionWorker_PartialFailureStillFinishes(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "user-1", 10)

	generator := &mock.Generator{
		Name_:   "mock",
		Models_: []string{"good", "bad"},
		GenerateFunc: func(_ context.Context, _ string, model string) (*ai.Result, error) {
			if model == "bad" {
				return nil, errors.New("provider unavailable")
			}
			return mock.DefaultResult(), nil
		},
	}
	worker := env.newWorker(t, generator)

	sessionId := createSession(t, env, "user-1", []string{"bad", "good"}, models.SessionStatusQueued)

	result, err := worker.Execute(context.Background(), sessionId)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Success)
	assert.Equal(t, 1, result.Failure)

	session, err := env.sessionRepo.FindById(context.Background(), sessionId)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusFinished, session.Status)

	// 部分失败不退款
	assert.Equal(t, int64(10), env.credits(t, "user-1"))

	// 失败的模型没有留下预测
	predictions, err := env.predictionRepo.FindBySessionId(context.Background(), sessionId)
	require.NoError(t, err)
	require.Len(t, predictions, 1)
	assert.Equal(t, "good", predictions[0].ModelName)
}

func TestSessionWorker_TotalFailureRefunds(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "user-1", 10)

	// 模拟会话创建时已扣费
	debited, err := env.creditService.Debit(context.Background(), "user-1", 2, "prediction session")
	require.NoError(t, err)
	require.True(t, debited)
	require.Equal(t, int64(8), env.credits(t, "user-1"))

	generator := mock.NewFailingGenerator(errors.New("provider down"), "m1", "m2")
	worker := env.newWorker(t, generator)

	sessionId := createSession(t, env, "user-1", []string{"m1", "m2"}, models.SessionStatusQueued)

	result, err := worker.Execute(context.Background(), sessionId)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Success)
	assert.Equal(t, 2, result.Failure)

	session, err := env.sessionRepo.FindById(context.Background(), sessionId)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusError, session.Status)
	assert.NotEmpty(t, session.Error)
	assert.Nil(t, session.CompletedAt)

	// 全部失败退回整笔费用
	assert.Equal(t, int64(10), env.credits(t, "user-1"))

	entries, err := env.creditService.Entries(context.Background(), "user-1", 10)
	require.NoError(t, err)
	var refunds int
	for _, entry := range entries {
		if entry.Kind == models.CreditEntryRefund {
			refunds++
			assert.Equal(t, int64(2), entry.Amount)
		}
	}
	assert.Equal(t, 1, refunds)
}

func TestSessionWorker_RejectsNonProcessableSession(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "user-1", 10)

	worker := env.newWorker(t, mock.NewGenerator("m1"))

	for _, status := range []models.SessionStatus{
		models.SessionStatusGenerating,
		models.SessionStatusFinished,
		models.SessionStatusError,
	} {
		sessionId := createSession(t, env, "user-1", []string{"m1"}, status)
		_, err := worker.Execute(context.Background(), sessionId)
		assert.ErrorIs(t, err, xe.ErrSessionNotProcessable, "status %s", status)
	}
}

func TestSessionWorker_StartGenerationGuard(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// QUEUED->GENERATING是条件更新，同一会话只能被认领一次
	sessionId := createSession(t, env, "user-1", []string{"m1"}, models.SessionStatusQueued)

	claimed, err := env.sessionRepo.TryStartGenerating(ctx, sessionId)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = env.sessionRepo.TryStartGenerating(ctx, sessionId)
	require.NoError(t, err)
	assert.False(t, claimed)

	session, err := env.sessionRepo.FindById(ctx, sessionId)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusGenerating, session.Status)
}

func TestSessionWorker_SecondExecutionIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "user-1", 10)

	worker := env.newWorker(t, mock.NewGenerator("m1"))
	sessionId := createSession(t, env, "user-1", []string{"m1"}, models.SessionStatusQueued)

	_, err := worker.Execute(context.Background(), sessionId)
	require.NoError(t, err)

	// 重复投递
	_, err = worker.Execute(context.Background(), sessionId)
	assert.ErrorIs(t, err, xe.ErrSessionNotProcessable)

	// 结果没有被第二次执行破坏
	predictions, err := env.predictionRepo.FindBySessionId(context.Background(), sessionId)
	require.NoError(t, err)
	assert.Len(t, predictions, 1)
}

func TestSessionWorker_SessionNotFound(t *testing.T) {
	env := newTestEnv(t)
	worker := env.newWorker(t, mock.NewGenerator("m1"))

	_, err := worker.Execute(context.Background(), "no-such-session")
	assert.ErrorIs(t, err, xe.ErrSessionNotFound)
}

func TestSessionWorker_ExecuteWithRetryStopsOnConclusiveError(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "user-1", 10)

	worker := env.newWorker(t, mock.NewGenerator("m1"))
	sessionId := createSession(t, env, "user-1", []string{"m1"}, models.SessionStatusFinished)

	start := time.Now()
	_, err := worker.ExecuteWithRetry(context.Background(), sessionId, 3)
	assert.ErrorIs(t, err, xe.ErrSessionNotProcessable)
	// 结论性失败不应触发退避等待
	assert.Less(t, time.Since(start), time.Second)
}

func TestSessionWorker_ExecuteWithRetrySucceedsFirstAttempt(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "user-1", 10)

	worker := env.newWorker(t, mock.NewGenerator("m1", "m2"))
	sessionId := createSession(t, env, "user-1", []string{"m1", "m2"}, models.SessionStatusQueued)

	result, err := worker.ExecuteWithRetry(context.Background(), sessionId, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Success)
}
