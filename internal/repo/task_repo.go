package repo

import (
	"context"
	"time"

	"github.com/go-orz/orz"
	"github.com/sibylline/sibyl/internal/models"
	"gorm.io/gorm"
)

func NewTaskRepo(db *gorm.DB) *TaskRepo {
	return &TaskRepo{
		Repository: orz.NewRepository[models.SessionTask, string](db),
	}
}

type TaskRepo struct {
	orz.Repository[models.SessionTask, string]
}

// FindNextPending 获取最早一条已到可见时间的PENDING任务
func (r TaskRepo) FindNextPending(ctx context.Context, now time.Time) (m models.SessionTask, err error) {
	db := r.GetDB(ctx)
	err = db.Table(r.GetTableName()).
		Where("status = ? AND available_at <= ?", models.TaskStatusPending, now).
		Order("available_at ASC").
		First(&m).Error
	return m, err
}

// Claim 以PENDING->RUNNING的条件更新认领任务
// RowsAffected==0 表示已被其他worker抢走
func (r TaskRepo) Claim(ctx context.Context, id string, now time.Time) (bool, error) {
	db := r.GetDB(ctx)
	result := db.Table(r.GetTableName()).
		Where("id = ? AND status = ?", id, models.TaskStatusPending).
		Updates(map[string]any{
			"status":     models.TaskStatusRunning,
			"started_at": now,
		})
	return result.RowsAffected > 0, result.Error
}

// Finish 标记任务终态（DONE或FAILED）
func (r TaskRepo) Finish(ctx context.Context, id string, status models.TaskStatus) error {
	db := r.GetDB(ctx)
	return db.Table(r.GetTableName()).
		Where("id = ?", id).
		Update("status", status).Error
}

// Requeue 失败重投: 回到PENDING并推迟可见时间
func (r TaskRepo) Requeue(ctx context.Context, id string, retryCount int, availableAt time.Time) error {
	db := r.GetDB(ctx)
	return db.Table(r.GetTableName()).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       models.TaskStatusPending,
			"retry_count":  retryCount,
			"available_at": availableAt,
			"started_at":   nil,
		}).Error
}

// RequeueStalled 将RUNNING超过处理上限的任务重置回PENDING（worker崩溃场景）
func (r TaskRepo) RequeueStalled(ctx context.Context, cutoff time.Time) (int64, error) {
	db := r.GetDB(ctx)
	result := db.Table(r.GetTableName()).
		Where("status = ? AND started_at < ?", models.TaskStatusRunning, cutoff).
		Updates(map[string]any{
			"status":     models.TaskStatusPending,
			"started_at": nil,
		})
	return result.RowsAffected, result.Error
}

// DeleteBySessionIds 随会话一起清理
func (r TaskRepo) DeleteBySessionIds(ctx context.Context, sessionIds []string) error {
	if len(sessionIds) == 0 {
		return nil
	}
	db := r.GetDB(ctx)
	return db.Table(r.GetTableName()).
		Where("session_id IN ?", sessionIds).
		Delete(&models.SessionTask{}).Error
}
