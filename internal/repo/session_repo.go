package repo

import (
	"context"
	"time"

	"github.com/go-orz/orz"
	"github.com/sibylline/sibyl/internal/models"
	"gorm.io/gorm"
)

func NewSessionRepo(db *gorm.DB) *SessionRepo {
	return &SessionRepo{
		Repository: orz.NewRepository[models.PredictionSession, string](db),
	}
}

type SessionRepo struct {
	orz.Repository[models.PredictionSession, string]
}

// FindByUserId 获取用户的会话列表（按创建时间倒序）
func (r SessionRepo) FindByUserId(ctx context.Context, userId string, limit int) ([]models.PredictionSession, error) {
	var sessions []models.PredictionSession
	db := r.GetDB(ctx)
	err := db.Table(r.GetTableName()).
		Where("user_id = ?", userId).
		Order("created_at DESC").
		Limit(limit).
		Find(&sessions).Error
	return sessions, err
}

// FindStaleSessions 获取卡在非终态且超过截止时间的会话，限制批次大小
func (r SessionRepo) FindStaleSessions(ctx context.Context, cutoff time.Time, limit int) ([]models.PredictionSession, error) {
	var sessions []models.PredictionSession
	db := r.GetDB(ctx)
	err := db.Table(r.GetTableName()).
		Where("status IN ?", []models.SessionStatus{
			models.SessionStatusGenerating,
			models.SessionStatusQueued,
			models.SessionStatusInitializing,
		}).
		Where("created_at < ?", cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&sessions).Error
	return sessions, err
}

// TryStartGenerating 以条件更新完成QUEUED/INITIALIZING到GENERATING的转换
// RowsAffected==0 表示会话已被其他执行方认领或已处理，同一会话不会被并发执行
func (r SessionRepo) TryStartGenerating(ctx context.Context, id string) (bool, error) {
	db := r.GetDB(ctx)
	result := db.Table(r.GetTableName()).
		Where("id = ? AND status IN ?", id, []models.SessionStatus{
			models.SessionStatusQueued,
			models.SessionStatusInitializing,
		}).
		Updates(map[string]any{
			"status":     models.SessionStatusGenerating,
			"step":       "starting generation",
			"error":      "",
			"updated_at": time.Now(),
		})
	return result.RowsAffected > 0, result.Error
}

// MarkError 仅当会话仍处于非终态时写入ERROR
// 终态永不回退，避免覆盖刚好完成的worker
func (r SessionRepo) MarkError(ctx context.Context, id string, fields map[string]any) (bool, error) {
	db := r.GetDB(ctx)
	result := db.Table(r.GetTableName()).
		Where("id = ? AND status NOT IN ?", id, []models.SessionStatus{
			models.SessionStatusFinished,
			models.SessionStatusError,
		}).
		Updates(fields)
	return result.RowsAffected > 0, result.Error
}

// UpdateStatus 更新会话状态及相关字段
func (r SessionRepo) UpdateStatus(ctx context.Context, id string, fields map[string]any) error {
	db := r.GetDB(ctx)
	return db.Table(r.GetTableName()).
		Where("id = ?", id).
		Updates(fields).Error
}

// UpdateStep 只更新进度描述
func (r SessionRepo) UpdateStep(ctx context.Context, id string, step string) error {
	db := r.GetDB(ctx)
	return db.Table(r.GetTableName()).
		Where("id = ?", id).
		Update("step", step).Error
}

// ResetToQueued 恢复扫描专用: 仅当会话仍处于GENERATING时才重置回QUEUED
// 返回是否真正发生了重置，避免与刚好完成的worker互相覆盖
func (r SessionRepo) ResetToQueued(ctx context.Context, id string) (bool, error) {
	db := r.GetDB(ctx)
	result := db.Table(r.GetTableName()).
		Where("id = ? AND status = ?", id, models.SessionStatusGenerating).
		Updates(map[string]any{
			"status": models.SessionStatusQueued,
			"step":   "reset by recovery scanner",
			"error":  "",
		})
	return result.RowsAffected > 0, result.Error
}

// FindErrorIdsBefore 获取超过保留期的ERROR会话ID，FINISHED永不进入该查询
func (r SessionRepo) FindErrorIdsBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	var ids []string
	db := r.GetDB(ctx)
	err := db.Table(r.GetTableName()).
		Where("status = ? AND created_at < ?", models.SessionStatusError, cutoff).
		Pluck("id", &ids).Error
	return ids, err
}

// DeleteByIds 批量删除会话
func (r SessionRepo) DeleteByIds(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	db := r.GetDB(ctx)
	return db.Table(r.GetTableName()).
		Where("id IN ?", ids).
		Delete(&models.PredictionSession{}).Error
}
