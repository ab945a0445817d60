package models

import (
	"time"

	"gorm.io/datatypes"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	TaskStatusPending TaskStatus = "PENDING" // 等待被worker认领
	TaskStatusRunning TaskStatus = "RUNNING" // 已认领，处理中
	TaskStatusDone    TaskStatus = "DONE"    // 处理完成（包括会话不可处理的no-op）
	TaskStatusFailed  TaskStatus = "FAILED"  // 重试耗尽
)

// SessionTask 会话处理任务（持久化投递，至少一次交付）
type SessionTask struct {
	ID          string         `gorm:"primaryKey;size:26" json:"id"`
	SessionID   string         `gorm:"size:26;not null;index" json:"session_id"`
	Payload     datatypes.JSON `gorm:"type:json" json:"payload"` // TaskMessage的JSON形式
	Status      TaskStatus     `gorm:"size:10;not null;index" json:"status"`
	RetryCount  int            `gorm:"not null;default:0" json:"retry_count"`
	AvailableAt time.Time      `gorm:"not null;index" json:"available_at"` // 重试退避后的可见时间
	StartedAt   *time.Time     `json:"started_at"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (SessionTask) TableName() string {
	return "session_tasks"
}

// TaskMessage 投递消息，字段在投递边界校验，worker内部不再做动态检查
type TaskMessage struct {
	SessionID      string   `json:"sessionId"`
	UserID         string   `json:"userId"`
	MarketID       string   `json:"marketId"`
	SelectedModels []string `json:"selectedModels"`
	RetryCount     int      `json:"retryCount,omitempty"`
}

// Valid 校验必填字段
func (m TaskMessage) Valid() bool {
	return m.SessionID != "" && m.UserID != "" && m.MarketID != "" && len(m.SelectedModels) > 0
}
