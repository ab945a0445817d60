package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/go-orz/orz"
	"github.com/oklog/ulid/v2"
	"github.com/sibylline/sibyl/internal/config"
	"github.com/sibylline/sibyl/internal/models"
	"github.com/sibylline/sibyl/internal/repo"
	"github.com/sibylline/sibyl/internal/xe"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// baseRetryDelay 任务重投的基础延迟
const baseRetryDelay = 10 * time.Second

// NewTaskDispatcher 创建任务投递器
func NewTaskDispatcher(db *gorm.DB, logger *zap.Logger, conf *config.Config,
	worker *SessionWorker, taskRepo *repo.TaskRepo) *TaskDispatcher {
	return &TaskDispatcher{
		Service:  orz.NewService(db),
		logger:   logger,
		conf:     conf,
		worker:   worker,
		taskRepo: taskRepo,
		stopChan: make(chan struct{}),
	}
}

// TaskDispatcher 持久化任务队列
// 任务先落库再由轮询循环认领执行，保证至少一次投递
type TaskDispatcher struct {
	*orz.Service
	logger *zap.Logger
	conf   *config.Config

	worker   *SessionWorker
	taskRepo *repo.TaskRepo

	stopChan chan struct{}
	stopOnce sync.Once
}

// Dispatch 为会话创建一条PENDING任务
// 消息先校验再落库，非法消息在入队前被拒绝
func (d *TaskDispatcher) Dispatch(ctx context.Context, session *models.PredictionSession) error {
	message := models.TaskMessage{
		SessionID:      session.ID,
		UserID:         session.UserID,
		MarketID:       session.MarketID,
		SelectedModels: session.SelectedModels,
	}
	if !message.Valid() {
		return xe.ErrInvalidTaskMessage
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}

	now := time.Now()
	task := models.SessionTask{
		ID:          ulid.Make().String(),
		SessionID:   session.ID,
		Payload:     datatypes.JSON(payload),
		Status:      models.TaskStatusPending,
		AvailableAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := d.taskRepo.Create(ctx, &task); err != nil {
		return err
	}

	d.logger.Debug("session task enqueued",
		zap.String("task_id", task.ID),
		zap.String("session_id", session.ID))
	return nil
}

// Start 启动轮询循环，阻塞直到Stop或ctx取消
func (d *TaskDispatcher) Start(ctx context.Context) {
	interval := time.Duration(d.conf.Sessions.PollInterval()) * time.Second
	d.logger.Info("task dispatcher started", zap.Duration("poll_interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("task dispatcher stopped", zap.Error(ctx.Err()))
			return
		case <-d.stopChan:
			d.logger.Info("task dispatcher stopped")
			return
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

// Stop 停止轮询循环
func (d *TaskDispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopChan)
	})
}

// drain 连续处理任务直到队列为空
func (d *TaskDispatcher) drain(ctx context.Context) {
	for {
		processed, err := d.ProcessNext(ctx)
		if err != nil {
			d.logger.Error("failed to process task", zap.Error(err))
			return
		}
		if !processed {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-d.stopChan:
			return
		default:
		}
	}
}

// ProcessNext 认领并执行下一条到期的PENDING任务
// 返回是否有任务被认领
func (d *TaskDispatcher) ProcessNext(ctx context.Context) (bool, error) {
	task, err := d.taskRepo.FindNextPending(ctx, time.Now())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}

	claimed, err := d.taskRepo.Claim(ctx, task.ID, time.Now())
	if err != nil {
		return false, err
	}
	if !claimed {
		// 已被其他实例认领
		return true, nil
	}

	d.runTask(ctx, &task)
	return true, nil
}

// runTask 执行已认领的任务并根据结果落终态或重投
func (d *TaskDispatcher) runTask(ctx context.Context, task *models.SessionTask) {
	var message models.TaskMessage
	if err := json.Unmarshal(task.Payload, &message); err != nil || !message.Valid() {
		d.logger.Error("invalid task payload",
			zap.String("task_id", task.ID),
			zap.Error(err))
		d.finishTask(ctx, task.ID, models.TaskStatusFailed)
		return
	}

	timeout := time.Duration(d.conf.Sessions.ProcessTimeoutMinutes()) * time.Minute
	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := d.worker.Execute(taskCtx, message.SessionID)
	if err == nil {
		d.logger.Info("task completed",
			zap.String("task_id", task.ID),
			zap.String("session_id", message.SessionID),
			zap.Int("success", result.Success),
			zap.Int("failure", result.Failure))
		d.finishTask(ctx, task.ID, models.TaskStatusDone)
		return
	}

	// 会话已被处理或不存在，属于重复投递，任务按成功收尾
	if errors.Is(err, xe.ErrSessionNotProcessable) || errors.Is(err, xe.ErrSessionNotFound) {
		d.logger.Info("task skipped, session not processable",
			zap.String("task_id", task.ID),
			zap.String("session_id", message.SessionID))
		d.finishTask(ctx, task.ID, models.TaskStatusDone)
		return
	}

	d.retryTask(ctx, task, err)
}

// retryTask 失败任务按指数延迟重投，超过上限后置FAILED交给恢复扫描
func (d *TaskDispatcher) retryTask(ctx context.Context, task *models.SessionTask, cause error) {
	retryCount := task.RetryCount + 1
	maxRetries := d.conf.Sessions.MaxRetries()

	if retryCount > maxRetries {
		d.logger.Error("task failed permanently",
			zap.String("task_id", task.ID),
			zap.String("session_id", task.SessionID),
			zap.Int("retry_count", task.RetryCount),
			zap.Error(cause))
		d.finishTask(ctx, task.ID, models.TaskStatusFailed)
		return
	}

	delay := retryDelay(retryCount)
	d.logger.Warn("task execution failed, requeueing",
		zap.String("task_id", task.ID),
		zap.String("session_id", task.SessionID),
		zap.Int("retry_count", retryCount),
		zap.Duration("delay", delay),
		zap.Error(cause))

	if err := d.taskRepo.Requeue(ctx, task.ID, retryCount, time.Now().Add(delay)); err != nil {
		d.logger.Error("failed to requeue task",
			zap.String("task_id", task.ID),
			zap.Error(err))
	}
}

func (d *TaskDispatcher) finishTask(ctx context.Context, taskId string, status models.TaskStatus) {
	if err := d.taskRepo.Finish(ctx, taskId, status); err != nil {
		d.logger.Error("failed to finish task",
			zap.String("task_id", taskId),
			zap.String("status", string(status)),
			zap.Error(err))
	}
}

// retryDelay 第n次重投的延迟: base * 2^(n-1)，上限5分钟
func retryDelay(retryCount int) time.Duration {
	delay := baseRetryDelay << (retryCount - 1)
	if delay > 5*time.Minute {
		delay = 5 * time.Minute
	}
	return delay
}
