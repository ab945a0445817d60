package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-orz/orz"
	"github.com/robfig/cron/v3"
	"github.com/sibylline/sibyl/internal/config"
	"github.com/sibylline/sibyl/internal/models"
	"github.com/sibylline/sibyl/internal/repo"
	"github.com/sibylline/sibyl/internal/xe"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// recoveryBatchSize 单轮扫描最多处理的会话数
const recoveryBatchSize = 20

// recoveryPause 相邻恢复之间的间隔，避免对下游API形成突发
const recoveryPause = 2 * time.Second

// RecoveryStats 一轮恢复扫描的统计
type RecoveryStats struct {
	Processed int `json:"processed"`
	Recovered int `json:"recovered"`
	Failed    int `json:"failed"`
}

// NewRecoveryScanner 创建恢复扫描器
func NewRecoveryScanner(db *gorm.DB, logger *zap.Logger, conf *config.Config,
	worker *SessionWorker, sessionRepo *repo.SessionRepo,
	predictionRepo *repo.PredictionRepo, taskRepo *repo.TaskRepo) *RecoveryScanner {
	return &RecoveryScanner{
		Service:        orz.NewService(db),
		logger:         logger,
		conf:           conf,
		worker:         worker,
		sessionRepo:    sessionRepo,
		predictionRepo: predictionRepo,
		taskRepo:       taskRepo,
		stopChan:       make(chan struct{}),
	}
}

// RecoveryScanner 定时兜底
// 把卡住的会话拉回执行，并清理过期的ERROR会话
type RecoveryScanner struct {
	*orz.Service
	logger *zap.Logger
	conf   *config.Config

	worker *SessionWorker

	sessionRepo    *repo.SessionRepo
	predictionRepo *repo.PredictionRepo
	taskRepo       *repo.TaskRepo

	cron     *cron.Cron
	stopChan chan struct{}
}

// Start 注册定时任务并阻塞直到Stop
func (s *RecoveryScanner) Start(ctx context.Context) error {
	s.cron = cron.New()

	// 整点: 重置卡死任务 + 恢复超时会话
	_, err := s.cron.AddFunc("0 * * * *", func() {
		if n, err := s.RequeueStalledTasks(ctx); err != nil {
			s.logger.Error("failed to requeue stalled tasks", zap.Error(err))
		} else if n > 0 {
			s.logger.Info("stalled tasks requeued", zap.Int64("count", n))
		}

		timeout := time.Duration(s.conf.Sessions.RecoveryTimeoutMinutes()) * time.Minute
		s.runRecovery(ctx, timeout)
	})
	if err != nil {
		return fmt.Errorf("failed to register hourly recovery job: %w", err)
	}

	// 每15分钟: 用更短的阈值做一轮快速恢复
	_, err = s.cron.AddFunc("*/15 * * * *", func() {
		timeout := time.Duration(s.conf.Sessions.QuickTimeoutMinutes()) * time.Minute
		s.runRecovery(ctx, timeout)
	})
	if err != nil {
		return fmt.Errorf("failed to register quick recovery job: %w", err)
	}

	// 每小时30分: 清理过期的ERROR会话
	_, err = s.cron.AddFunc("30 * * * *", func() {
		olderThan := time.Duration(s.conf.Sessions.CleanupHours()) * time.Hour
		if n, err := s.CleanupOldSessions(ctx, olderThan); err != nil {
			s.logger.Error("failed to cleanup old sessions", zap.Error(err))
		} else if n > 0 {
			s.logger.Info("old error sessions cleaned up", zap.Int64("count", n))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to register cleanup job: %w", err)
	}

	s.cron.Start()
	s.logger.Info("recovery scanner started")

	select {
	case <-ctx.Done():
	case <-s.stopChan:
	}
	s.cron.Stop()
	s.logger.Info("recovery scanner stopped")
	return nil
}

// Stop 停止扫描器
func (s *RecoveryScanner) Stop() {
	close(s.stopChan)
}

func (s *RecoveryScanner) runRecovery(ctx context.Context, timeout time.Duration) {
	stats, err := s.RecoverStuckSessions(ctx, timeout)
	if err != nil {
		s.logger.Error("recovery scan failed", zap.Error(err))
		return
	}
	if stats.Processed > 0 {
		s.logger.Info("recovery scan completed",
			zap.Duration("timeout", timeout),
			zap.Int("processed", stats.Processed),
			zap.Int("recovered", stats.Recovered),
			zap.Int("failed", stats.Failed))
	}
}

// RecoverStuckSessions 扫描并恢复超时的非终态会话
// GENERATING先通过条件更新重置回QUEUED，避免覆盖刚好完成的worker
func (s *RecoveryScanner) RecoverStuckSessions(ctx context.Context, timeout time.Duration) (RecoveryStats, error) {
	var stats RecoveryStats

	cutoff := time.Now().Add(-timeout)
	sessions, err := s.sessionRepo.FindStaleSessions(ctx, cutoff, recoveryBatchSize)
	if err != nil {
		return stats, err
	}

	for i, session := range sessions {
		stats.Processed++

		if session.Status == models.SessionStatusGenerating {
			reset, err := s.sessionRepo.ResetToQueued(ctx, session.ID)
			if err != nil {
				s.logger.Error("failed to reset session",
					zap.String("session_id", session.ID),
					zap.Error(err))
				stats.Failed++
				continue
			}
			if !reset {
				// 会话在扫描间隙已进入终态
				continue
			}
		}

		s.recoverOne(ctx, session.ID, &stats)

		if i < len(sessions)-1 {
			select {
			case <-ctx.Done():
				return stats, ctx.Err()
			case <-time.After(recoveryPause):
			}
		}
	}

	return stats, nil
}

func (s *RecoveryScanner) recoverOne(ctx context.Context, sessionId string, stats *RecoveryStats) {
	result, err := s.worker.ExecuteWithRetry(ctx, sessionId, 2)
	if err != nil {
		// 会话在扫描与执行的间隙被并发执行方接手或已完成，跳过不做标记
		if errors.Is(err, xe.ErrSessionNotProcessable) || errors.Is(err, xe.ErrSessionNotFound) {
			s.logger.Info("session picked up elsewhere, skipping recovery",
				zap.String("session_id", sessionId))
			return
		}
		s.logger.Error("session recovery failed",
			zap.String("session_id", sessionId),
			zap.Error(err))
		s.markRecoveryFailed(ctx, sessionId)
		stats.Failed++
		return
	}

	if result.Success > 0 {
		s.logger.Info("session recovered",
			zap.String("session_id", sessionId),
			zap.Int("success", result.Success),
			zap.Int("failure", result.Failure))
		stats.Recovered++
	} else {
		// 全部模型失败，worker已退款并落ERROR
		stats.Failed++
	}
}

// markRecoveryFailed 把恢复失败的会话落ERROR
// 条件更新保证终态不被回退，返回是否真正写入
func (s *RecoveryScanner) markRecoveryFailed(ctx context.Context, sessionId string) bool {
	marked, err := s.sessionRepo.MarkError(ctx, sessionId, map[string]any{
		"status":     models.SessionStatusError,
		"error":      "recovery failed after timeout",
		"step":       "recovery failed",
		"updated_at": time.Now(),
	})
	if err != nil {
		s.logger.Error("failed to mark session as error",
			zap.String("session_id", sessionId),
			zap.Error(err))
		return false
	}
	return marked
}

// RecoverSession 手动恢复单个会话
func (s *RecoveryScanner) RecoverSession(ctx context.Context, sessionId string, reason string) (*ExecutionResult, error) {
	session, err := s.sessionRepo.FindById(ctx, sessionId)
	if err != nil {
		return nil, xe.ErrSessionNotFound
	}
	if session.Status.Terminal() {
		return nil, xe.ErrRecoveryNotEligible
	}

	s.logger.Info("manual session recovery requested",
		zap.String("session_id", sessionId),
		zap.String("reason", reason))

	if session.Status == models.SessionStatusGenerating {
		reset, err := s.sessionRepo.ResetToQueued(ctx, sessionId)
		if err != nil {
			return nil, err
		}
		if !reset {
			return nil, xe.ErrRecoveryNotEligible
		}
	}

	return s.worker.ExecuteWithRetry(ctx, sessionId, 2)
}

// RequeueStalledTasks 重置RUNNING超时的任务（worker崩溃场景）
func (s *RecoveryScanner) RequeueStalledTasks(ctx context.Context) (int64, error) {
	timeout := time.Duration(s.conf.Sessions.ProcessTimeoutMinutes()) * time.Minute
	return s.taskRepo.RequeueStalled(ctx, time.Now().Add(-timeout))
}

// CleanupOldSessions 删除超过保留期的ERROR会话及其预测与任务
// FINISHED会话永不删除
func (s *RecoveryScanner) CleanupOldSessions(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	ids, err := s.sessionRepo.FindErrorIdsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	err = s.Transaction(ctx, func(ctx context.Context) error {
		if err := s.predictionRepo.DeleteBySessionIds(ctx, ids); err != nil {
			return err
		}
		if err := s.taskRepo.DeleteBySessionIds(ctx, ids); err != nil {
			return err
		}
		return s.sessionRepo.DeleteByIds(ctx, ids)
	})
	if err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}
