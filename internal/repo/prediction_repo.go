package repo

import (
	"context"

	"github.com/go-orz/orz"
	"github.com/sibylline/sibyl/internal/models"
	"gorm.io/gorm"
)

func NewPredictionRepo(db *gorm.DB) *PredictionRepo {
	return &PredictionRepo{
		Repository: orz.NewRepository[models.Prediction, string](db),
	}
}

type PredictionRepo struct {
	orz.Repository[models.Prediction, string]
}

// FindBySessionId 获取会话关联的全部预测结果
func (r PredictionRepo) FindBySessionId(ctx context.Context, sessionId string) ([]models.Prediction, error) {
	var predictions []models.Prediction
	db := r.GetDB(ctx)
	err := db.Table(r.GetTableName()).
		Where("session_id = ?", sessionId).
		Order("created_at ASC").
		Find(&predictions).Error
	return predictions, err
}

// DeleteBySessionIds 随会话一起清理
func (r PredictionRepo) DeleteBySessionIds(ctx context.Context, sessionIds []string) error {
	if len(sessionIds) == 0 {
		return nil
	}
	db := r.GetDB(ctx)
	return db.Table(r.GetTableName()).
		Where("session_id IN ?", sessionIds).
		Delete(&models.Prediction{}).Error
}
