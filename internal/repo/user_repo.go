package repo

import (
	"context"
	"time"

	"github.com/go-orz/orz"
	"github.com/sibylline/sibyl/internal/models"
	"gorm.io/gorm"
)

func NewUserRepo(db *gorm.DB) *UserRepo {
	return &UserRepo{
		Repository: orz.NewRepository[models.User, string](db),
	}
}

type UserRepo struct {
	orz.Repository[models.User, string]
}

// FindByUsername 按用户名查找
func (r UserRepo) FindByUsername(ctx context.Context, username string) (m models.User, err error) {
	db := r.GetDB(ctx)
	err = db.Table(r.GetTableName()).
		Where("username = ?", username).
		First(&m).Error
	return m, err
}

// UpdatePassword 更新密码哈希
func (r UserRepo) UpdatePassword(ctx context.Context, id string, passwordHash string) error {
	db := r.GetDB(ctx)
	return db.Table(r.GetTableName()).
		Where("id = ?", id).
		Update("password_hash", passwordHash).Error
}

// UpdateLastLogin 更新最后登录信息
func (r UserRepo) UpdateLastLogin(ctx context.Context, id string, ip string) error {
	db := r.GetDB(ctx)
	now := time.Now()
	return db.Table(r.GetTableName()).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_login_at": now,
			"last_login_ip": ip,
		}).Error
}
