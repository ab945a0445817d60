package service

import (
	"context"
	"time"

	"github.com/go-orz/orz"
	"github.com/oklog/ulid/v2"
	"github.com/sibylline/sibyl/internal/models"
	"github.com/sibylline/sibyl/internal/repo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NewCreditService 创建积分账本服务
func NewCreditService(db *gorm.DB, logger *zap.Logger,
	accountRepo *repo.CreditAccountRepo, entryRepo *repo.CreditEntryRepo) *CreditService {
	return &CreditService{
		Service:     orz.NewService(db),
		logger:      logger,
		accountRepo: accountRepo,
		entryRepo:   entryRepo,
	}
}

// CreditService 积分账本
// 所有余额变动都走带条件的单条UPDATE并留下流水，保证并发安全与可审计
type CreditService struct {
	*orz.Service
	logger *zap.Logger

	accountRepo *repo.CreditAccountRepo
	entryRepo   *repo.CreditEntryRepo
}

// EnsureAccount 确保账户存在，不存在时创建并发放初始积分
// 账户与赠送流水在同一事务内写入，保证发放必有审计记录
func (s *CreditService) EnsureAccount(ctx context.Context, userId string, initialCredits int64) error {
	_, err := s.accountRepo.FindByUserId(ctx, userId)
	if err == nil {
		return nil
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}

	now := time.Now()
	err = s.Transaction(ctx, func(ctx context.Context) error {
		account := models.CreditAccount{
			UserID:             userId,
			Credits:            initialCredits,
			TotalCreditsEarned: initialCredits,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := s.accountRepo.Create(ctx, &account); err != nil {
			return err
		}

		if initialCredits > 0 {
			entry := models.CreditEntry{
				ID:        ulid.Make().String(),
				UserID:    userId,
				Amount:    initialCredits,
				Kind:      models.CreditEntryCredit,
				Reason:    "signup bonus",
				CreatedAt: now,
			}
			return s.entryRepo.Create(ctx, &entry)
		}
		return nil
	})
	if err != nil {
		// 并发创建时主键冲突，账户已由另一个请求建好
		if _, findErr := s.accountRepo.FindByUserId(ctx, userId); findErr == nil {
			return nil
		}
		return err
	}

	s.logger.Info("credit account created",
		zap.String("user_id", userId),
		zap.Int64("initial_credits", initialCredits))
	return nil
}

// Debit 原子扣减积分
// 余额不足时返回false而不产生任何变动，扣减成功时同步写入流水
func (s *CreditService) Debit(ctx context.Context, userId string, amount int64, reason string) (bool, error) {
	var debited bool
	err := s.Transaction(ctx, func(ctx context.Context) error {
		ok, err := s.accountRepo.TryDebit(ctx, userId, amount)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		debited = true

		entry := models.CreditEntry{
			ID:        ulid.Make().String(),
			UserID:    userId,
			Amount:    -amount,
			Kind:      models.CreditEntryDebit,
			Reason:    reason,
			CreatedAt: time.Now(),
		}
		return s.entryRepo.Create(ctx, &entry)
	})
	if err != nil {
		return false, err
	}
	return debited, nil
}

// Credit 增加积分
func (s *CreditService) Credit(ctx context.Context, userId string, amount int64, reason string) error {
	return s.addCredits(ctx, userId, amount, models.CreditEntryCredit, reason)
}

// Refund 退还积分
// 与Credit同路径但流水类型不同，便于审计区分
func (s *CreditService) Refund(ctx context.Context, userId string, amount int64, reason string) error {
	return s.addCredits(ctx, userId, amount, models.CreditEntryRefund, reason)
}

func (s *CreditService) addCredits(ctx context.Context, userId string, amount int64, kind, reason string) error {
	return s.Transaction(ctx, func(ctx context.Context) error {
		if err := s.accountRepo.AddCredits(ctx, userId, amount); err != nil {
			return err
		}
		entry := models.CreditEntry{
			ID:        ulid.Make().String(),
			UserID:    userId,
			Amount:    amount,
			Kind:      kind,
			Reason:    reason,
			CreatedAt: time.Now(),
		}
		return s.entryRepo.Create(ctx, &entry)
	})
}

// GetAccount 查询账户
func (s *CreditService) GetAccount(ctx context.Context, userId string) (models.CreditAccount, error) {
	return s.accountRepo.FindByUserId(ctx, userId)
}

// Entries 查询积分流水
func (s *CreditService) Entries(ctx context.Context, userId string, limit int) ([]models.CreditEntry, error) {
	return s.entryRepo.FindByUserId(ctx, userId, limit)
}
