package repo

import (
	"context"

	"github.com/go-orz/orz"
	"github.com/sibylline/sibyl/internal/models"
	"gorm.io/gorm"
)

func NewCreditAccountRepo(db *gorm.DB) *CreditAccountRepo {
	return &CreditAccountRepo{
		Repository: orz.NewRepository[models.CreditAccount, string](db),
	}
}

type CreditAccountRepo struct {
	orz.Repository[models.CreditAccount, string]
}

// FindByUserId 按用户ID查找账户
// 账户表的主键列是user_id，不能走泛型仓库按id列的查询
func (r CreditAccountRepo) FindByUserId(ctx context.Context, userId string) (m models.CreditAccount, err error) {
	db := r.GetDB(ctx)
	err = db.Table(r.GetTableName()).
		Where("user_id = ?", userId).
		First(&m).Error
	return m, err
}

// TryDebit 余额充足时原子扣减，返回是否扣减成功
// 余额校验放在UPDATE的WHERE里，同一账户的并发扣减由行锁串行化，不会丢失更新
func (r CreditAccountRepo) TryDebit(ctx context.Context, userId string, amount int64) (bool, error) {
	db := r.GetDB(ctx)
	result := db.Table(r.GetTableName()).
		Where("user_id = ? AND credits >= ?", userId, amount).
		Updates(map[string]any{
			"credits":             gorm.Expr("credits - ?", amount),
			"total_credits_spent": gorm.Expr("total_credits_spent + ?", amount),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// AddCredits 原子增加余额，同时累加earned计数
func (r CreditAccountRepo) AddCredits(ctx context.Context, userId string, amount int64) error {
	db := r.GetDB(ctx)
	result := db.Table(r.GetTableName()).
		Where("user_id = ?", userId).
		Updates(map[string]any{
			"credits":              gorm.Expr("credits + ?", amount),
			"total_credits_earned": gorm.Expr("total_credits_earned + ?", amount),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func NewCreditEntryRepo(db *gorm.DB) *CreditEntryRepo {
	return &CreditEntryRepo{
		Repository: orz.NewRepository[models.CreditEntry, string](db),
	}
}

type CreditEntryRepo struct {
	orz.Repository[models.CreditEntry, string]
}

// FindByUserId 获取用户的积分流水（按时间倒序）
func (r CreditEntryRepo) FindByUserId(ctx context.Context, userId string, limit int) ([]models.CreditEntry, error) {
	var entries []models.CreditEntry
	db := r.GetDB(ctx)
	err := db.Table(r.GetTableName()).
		Where("user_id = ?", userId).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}
