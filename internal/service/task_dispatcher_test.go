package service

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sibylline/sibyl/internal/ai/mock"
	"github.com/sibylline/sibyl/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestTaskDispatcher_DispatchAndProcess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedAccount(t, "user-1", 10)

	dispatcher := env.newDispatcher(t, mock.NewGenerator("m1"))
	sessionId := createSession(t, env, "user-1", []string{"m1"}, models.SessionStatusQueued)

	session, err := env.sessionRepo.FindById(ctx, sessionId)
	require.NoError(t, err)
	require.NoError(t, dispatcher.Dispatch(ctx, &session))

	processed, err := dispatcher.ProcessNext(ctx)
	require.NoError(t, err)
	assert.True(t, processed)

	// 会话已执行完成
	session, err = env.sessionRepo.FindById(ctx, sessionId)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusFinished, session.Status)

	// 任务落DONE
	var task models.SessionTask
	require.NoError(t, env.db.Where("session_id = ?", sessionId).First(&task).Error)
	assert.Equal(t, models.TaskStatusDone, task.Status)

	// 队列已空
	processed, err = dispatcher.ProcessNext(ctx)
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestTaskDispatcher_DispatchRejectsInvalidMessage(t *testing.T) {
	env := newTestEnv(t)
	dispatcher := env.newDispatcher(t, mock.NewGenerator("m1"))

	session := models.PredictionSession{
		ID:     ulid.Make().String(),
		UserID: "user-1",
		// MarketID缺失
		SelectedModels: datatypes.NewJSONSlice([]string{"m1"}),
	}
	err := dispatcher.Dispatch(context.Background(), &session)
	assert.Error(t, err)
}

func TestTaskDispatcher_DuplicateDeliveryIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedAccount(t, "user-1", 10)

	dispatcher := env.newDispatcher(t, mock.NewGenerator("m1"))
	sessionId := createSession(t, env, "user-1", []string{"m1"}, models.SessionStatusQueued)

	session, err := env.sessionRepo.FindById(ctx, sessionId)
	require.NoError(t, err)
	// 同一会话投递两次
	require.NoError(t, dispatcher.Dispatch(ctx, &session))
	require.NoError(t, dispatcher.Dispatch(ctx, &session))

	for i := 0; i < 2; i++ {
		processed, err := dispatcher.ProcessNext(ctx)
		require.NoError(t, err)
		require.True(t, processed)
	}

	// 两个任务都落DONE，会话只被执行一次
	var tasks []models.SessionTask
	require.NoError(t, env.db.Where("session_id = ?", sessionId).Find(&tasks).Error)
	require.Len(t, tasks, 2)
	for _, task := range tasks {
		assert.Equal(t, models.TaskStatusDone, task.Status)
	}

	predictions, err := env.predictionRepo.FindBySessionId(ctx, sessionId)
	require.NoError(t, err)
	assert.Len(t, predictions, 1)
}

func TestTaskDispatcher_InvalidPayloadFailsTask(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	dispatcher := env.newDispatcher(t, mock.NewGenerator("m1"))

	task := models.SessionTask{
		ID:          ulid.Make().String(),
		SessionID:   "orphan",
		Payload:     datatypes.JSON([]byte(`{"sessionId":""}`)),
		Status:      models.TaskStatusPending,
		AvailableAt: time.Now(),
	}
	require.NoError(t, env.taskRepo.Create(ctx, &task))

	processed, err := dispatcher.ProcessNext(ctx)
	require.NoError(t, err)
	assert.True(t, processed)

	got, err := env.taskRepo.FindById(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, got.Status)
}

func TestTaskDispatcher_ClaimIsExclusive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	task := models.SessionTask{
		ID:          ulid.Make().String(),
		SessionID:   "s1",
		Status:      models.TaskStatusPending,
		AvailableAt: time.Now(),
	}
	require.NoError(t, env.taskRepo.Create(ctx, &task))

	claimed, err := env.taskRepo.Claim(ctx, task.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = env.taskRepo.Claim(ctx, task.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestTaskDispatcher_RequeuedTaskRespectsAvailableAt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	task := models.SessionTask{
		ID:          ulid.Make().String(),
		SessionID:   "s1",
		Status:      models.TaskStatusPending,
		AvailableAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, env.taskRepo.Create(ctx, &task))

	// 未到可见时间的任务不会被认领
	_, err := env.taskRepo.FindNextPending(ctx, time.Now())
	assert.Error(t, err)

	got, err := env.taskRepo.FindNextPending(ctx, time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 10*time.Second, retryDelay(1))
	assert.Equal(t, 20*time.Second, retryDelay(2))
	assert.Equal(t, 40*time.Second, retryDelay(3))
	// 上限5分钟
	assert.Equal(t, 5*time.Minute, retryDelay(10))
}
