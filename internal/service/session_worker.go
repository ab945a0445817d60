package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-orz/orz"
	"github.com/oklog/ulid/v2"
	"github.com/sibylline/sibyl/internal/ai"
	"github.com/sibylline/sibyl/internal/config"
	"github.com/sibylline/sibyl/internal/models"
	"github.com/sibylline/sibyl/internal/repo"
	"github.com/sibylline/sibyl/internal/telegram"
	"github.com/sibylline/sibyl/internal/xe"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PredictionGenerator 预测生成入口
type PredictionGenerator interface {
	Generate(ctx context.Context, marketId string, model string) (*ai.Result, error)
}

// ExecutionResult 单次会话执行的统计
type ExecutionResult struct {
	SessionID string `json:"session_id"`
	Total     int    `json:"total"`
	Success   int    `json:"success"`
	Failure   int    `json:"failure"`
}

// NewSessionWorker 创建会话执行器
func NewSessionWorker(db *gorm.DB, logger *zap.Logger, conf *config.Config,
	generator PredictionGenerator, creditService *CreditService, notifier *telegram.Telegram,
	sessionRepo *repo.SessionRepo, predictionRepo *repo.PredictionRepo) *SessionWorker {
	return &SessionWorker{
		Service:        orz.NewService(db),
		logger:         logger,
		conf:           conf,
		generator:      generator,
		creditService:  creditService,
		notifier:       notifier,
		sessionRepo:    sessionRepo,
		predictionRepo: predictionRepo,
	}
}

// SessionWorker 串行执行会话中选定的模型
// 单个模型失败不影响其余模型，全部失败时整笔退款
type SessionWorker struct {
	*orz.Service
	logger *zap.Logger
	conf   *config.Config

	generator     PredictionGenerator
	creditService *CreditService
	notifier      *telegram.Telegram

	sessionRepo    *repo.SessionRepo
	predictionRepo *repo.PredictionRepo
}

// Execute 执行一个会话
// 只接受QUEUED或INITIALIZING状态的会话，重复投递在此被识别为不可处理
func (w *SessionWorker) Execute(ctx context.Context, sessionId string) (*ExecutionResult, error) {
	session, err := w.sessionRepo.FindById(ctx, sessionId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xe.ErrSessionNotFound
		}
		return nil, err
	}
	if !session.Status.Processable() {
		return nil, xe.ErrSessionNotProcessable
	}

	// 条件更新认领会话，两个执行方同时观察到QUEUED时只有一个能继续
	claimed, err := w.sessionRepo.TryStartGenerating(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, xe.ErrSessionNotProcessable
	}

	total := len(session.SelectedModels)
	result := &ExecutionResult{SessionID: sessionId, Total: total}

	for i, model := range session.SelectedModels {
		step := fmt.Sprintf("processing model %d/%d: %s", i+1, total, model)
		if err := w.sessionRepo.UpdateStep(ctx, sessionId, step); err != nil {
			w.logger.Warn("failed to update session step",
				zap.String("session_id", sessionId),
				zap.Error(err))
		}

		w.runModel(ctx, &session, model, result)

		if delay := w.conf.Sessions.ModelDelaySeconds; delay > 0 && i < total-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(delay) * time.Second):
			}
		}
	}

	if result.Success == 0 {
		if err := w.failSession(ctx, &session, result); err != nil {
			return nil, err
		}
	} else {
		if err := w.finishSession(ctx, &session, result); err != nil {
			return nil, err
		}
	}

	w.logger.Info("session execution completed",
		zap.String("session_id", sessionId),
		zap.Int("total", result.Total),
		zap.Int("success", result.Success),
		zap.Int("failure", result.Failure))
	return result, nil
}

// runModel 调用单个模型并持久化结果，失败只计数不中断
func (w *SessionWorker) runModel(ctx context.Context, session *models.PredictionSession, model string, result *ExecutionResult) {
	aiResult, err := w.generator.Generate(ctx, session.MarketID, model)
	if err != nil {
		w.logger.Warn("model generation failed",
			zap.String("session_id", session.ID),
			zap.String("model", model),
			zap.Error(err))
		result.Failure++
		return
	}

	prediction := models.Prediction{
		ID:                    ulid.Make().String(),
		SessionID:             session.ID,
		ModelName:             model,
		Outcomes:              datatypes.NewJSONSlice(aiResult.Outcomes),
		OutcomesProbabilities: datatypes.NewJSONSlice(aiResult.Probabilities),
		AIResponse:            datatypes.JSON(aiResult.Raw),
		CreatedAt:             time.Now(),
	}
	if err := w.predictionRepo.Create(ctx, &prediction); err != nil {
		w.logger.Error("failed to persist prediction",
			zap.String("session_id", session.ID),
			zap.String("model", model),
			zap.Error(err))
		result.Failure++
		return
	}

	result.Success++
}

// failSession 全部模型失败: 退款与ERROR落库在同一事务内完成
func (w *SessionWorker) failSession(ctx context.Context, session *models.PredictionSession, result *ExecutionResult) error {
	cost := w.conf.Sessions.CostFor(result.Total)
	err := w.Transaction(ctx, func(ctx context.Context) error {
		if err := w.creditService.Refund(ctx, session.UserID, cost,
			fmt.Sprintf("all models failed for session %s", session.ID)); err != nil {
			return err
		}
		return w.sessionRepo.UpdateStatus(ctx, session.ID, map[string]any{
			"status":        models.SessionStatusError,
			"error":         fmt.Sprintf("all %d models failed", result.Total),
			"step":          fmt.Sprintf("refunded %d credits", cost),
			"success_count": result.Success,
			"failure_count": result.Failure,
			"updated_at":    time.Now(),
		})
	})
	if err != nil {
		return err
	}

	session.Status = models.SessionStatusError
	session.Error = fmt.Sprintf("all %d models failed", result.Total)
	session.SuccessCount = result.Success
	session.FailureCount = result.Failure
	w.notifier.NotifySessionResult(session)
	return nil
}

// finishSession 至少一个模型成功: 置为FINISHED并记录完成时间
func (w *SessionWorker) finishSession(ctx context.Context, session *models.PredictionSession, result *ExecutionResult) error {
	now := time.Now()
	if err := w.sessionRepo.UpdateStatus(ctx, session.ID, map[string]any{
		"status":        models.SessionStatusFinished,
		"step":          fmt.Sprintf("%d/%d models completed", result.Success, result.Total),
		"success_count": result.Success,
		"failure_count": result.Failure,
		"completed_at":  now,
		"updated_at":    now,
	}); err != nil {
		// 终态写入失败时保持GENERATING，由恢复扫描兜底
		return err
	}

	session.Status = models.SessionStatusFinished
	session.SuccessCount = result.Success
	session.FailureCount = result.Failure
	w.notifier.NotifySessionResult(session)
	return nil
}

// ExecuteWithRetry 带指数退避的执行
// 不可处理与不存在属于结论性失败，不再重试
func (w *SessionWorker) ExecuteWithRetry(ctx context.Context, sessionId string, maxAttempts uint64) (*ExecutionResult, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 2 * time.Second
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0

	var result *ExecutionResult
	operation := func() error {
		res, err := w.Execute(ctx, sessionId)
		if err != nil {
			if errors.Is(err, xe.ErrSessionNotProcessable) || errors.Is(err, xe.ErrSessionNotFound) {
				return backoff.Permanent(err)
			}
			w.logger.Warn("session execution attempt failed",
				zap.String("session_id", sessionId),
				zap.Error(err))
			return err
		}
		result = res
		return nil
	}

	var wrapped backoff.BackOff = policy
	if maxAttempts > 0 {
		wrapped = backoff.WithMaxRetries(policy, maxAttempts-1)
	}
	if err := backoff.Retry(operation, backoff.WithContext(wrapped, ctx)); err != nil {
		return nil, err
	}
	return result, nil
}
