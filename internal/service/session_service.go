package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-orz/orz"
	"github.com/oklog/ulid/v2"
	"github.com/sibylline/sibyl/internal/ai"
	"github.com/sibylline/sibyl/internal/config"
	"github.com/sibylline/sibyl/internal/models"
	"github.com/sibylline/sibyl/internal/repo"
	"github.com/sibylline/sibyl/internal/xe"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MaxModelsPerSession 单次会话允许选择的模型上限
const MaxModelsPerSession = 5

// Dispatcher 任务投递接口
type Dispatcher interface {
	Dispatch(ctx context.Context, session *models.PredictionSession) error
}

// NewSessionService 创建会话服务
func NewSessionService(db *gorm.DB, logger *zap.Logger, conf *config.Config,
	registry *ai.Registry, creditService *CreditService, dispatcher Dispatcher,
	sessionRepo *repo.SessionRepo, predictionRepo *repo.PredictionRepo) *SessionService {
	return &SessionService{
		Service:        orz.NewService(db),
		logger:         logger,
		conf:           conf,
		registry:       registry,
		creditService:  creditService,
		dispatcher:     dispatcher,
		sessionRepo:    sessionRepo,
		predictionRepo: predictionRepo,
	}
}

// SessionService 预测会话生命周期入口
type SessionService struct {
	*orz.Service
	logger *zap.Logger
	conf   *config.Config

	registry      *ai.Registry
	creditService *CreditService
	dispatcher    Dispatcher

	sessionRepo    *repo.SessionRepo
	predictionRepo *repo.PredictionRepo
}

// SessionDetail 会话详情（含预测结果）
type SessionDetail struct {
	Session     models.PredictionSession `json:"session"`
	Predictions []models.Prediction      `json:"predictions"`
}

// StartSession 创建预测会话
// 先校验模型、再扣积分、落库后投递任务；投递失败时退款并把会话置为ERROR
func (s *SessionService) StartSession(ctx context.Context, userId, marketId string, selectedModels []string) (string, error) {
	if marketId == "" {
		return "", xe.ErrInvalidParams
	}
	if len(selectedModels) == 0 {
		return "", xe.ErrNoModelsSelected
	}
	if len(selectedModels) > MaxModelsPerSession {
		return "", xe.ErrTooManyModels
	}
	if unknown := s.registry.Unknown(selectedModels); len(unknown) > 0 {
		return "", fmt.Errorf("%w: %s", xe.ErrUnknownModels, strings.Join(unknown, ", "))
	}

	cost := s.conf.Sessions.CostFor(len(selectedModels))
	sessionId := ulid.Make().String()

	debited, err := s.creditService.Debit(ctx, userId, cost,
		fmt.Sprintf("prediction session %s", sessionId))
	if err != nil {
		return "", err
	}
	if !debited {
		return "", xe.ErrInsufficientCredits
	}

	now := time.Now()
	session := models.PredictionSession{
		ID:             sessionId,
		UserID:         userId,
		MarketID:       marketId,
		SelectedModels: datatypes.NewJSONSlice(selectedModels),
		Status:         models.SessionStatusQueued,
		Step:           "queued",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.sessionRepo.Create(ctx, &session); err != nil {
		// 扣费已成功但会话未落库，退款后报错
		if refundErr := s.creditService.Refund(ctx, userId, cost,
			fmt.Sprintf("session %s creation failed", sessionId)); refundErr != nil {
			s.logger.Error("failed to refund after session create failure",
				zap.String("session_id", sessionId),
				zap.Error(refundErr))
		}
		return "", err
	}

	if err := s.dispatcher.Dispatch(ctx, &session); err != nil {
		s.logger.Error("failed to dispatch session task",
			zap.String("session_id", sessionId),
			zap.Error(err))
		s.failDispatch(ctx, &session, cost, err)
		return sessionId, nil
	}

	s.logger.Info("prediction session started",
		zap.String("session_id", sessionId),
		zap.String("user_id", userId),
		zap.String("market_id", marketId),
		zap.Int("model_count", len(selectedModels)),
		zap.Int64("cost", cost))
	return sessionId, nil
}

// failDispatch 投递失败时退款并置会话为ERROR
// 此时worker不可能运行，退款不会与完成路径竞争
func (s *SessionService) failDispatch(ctx context.Context, session *models.PredictionSession, cost int64, cause error) {
	err := s.Transaction(ctx, func(ctx context.Context) error {
		if err := s.creditService.Refund(ctx, session.UserID, cost,
			fmt.Sprintf("dispatch failed for session %s", session.ID)); err != nil {
			return err
		}
		return s.sessionRepo.UpdateStatus(ctx, session.ID, map[string]any{
			"status":     models.SessionStatusError,
			"error":      fmt.Sprintf("dispatch failed: %v", cause),
			"step":       "dispatch failed",
			"updated_at": time.Now(),
		})
	})
	if err != nil {
		s.logger.Error("failed to mark session as dispatch failed",
			zap.String("session_id", session.ID),
			zap.Error(err))
	}
}

// GetSession 查询单个会话
func (s *SessionService) GetSession(ctx context.Context, sessionId string) (models.PredictionSession, error) {
	session, err := s.sessionRepo.FindById(ctx, sessionId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return session, xe.ErrSessionNotFound
		}
		return session, err
	}
	return session, nil
}

// GetSessionDetail 查询会话及其预测结果
func (s *SessionService) GetSessionDetail(ctx context.Context, sessionId string) (*SessionDetail, error) {
	session, err := s.GetSession(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	predictions, err := s.predictionRepo.FindBySessionId(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	return &SessionDetail{
		Session:     session,
		Predictions: predictions,
	}, nil
}

// ListUserSessions 查询用户的会话列表
func (s *SessionService) ListUserSessions(ctx context.Context, userId string, limit int) ([]models.PredictionSession, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.sessionRepo.FindByUserId(ctx, userId, limit)
}
