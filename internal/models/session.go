package models

import (
	"time"

	"gorm.io/datatypes"
)

// SessionStatus 会话状态
type SessionStatus string

const (
	SessionStatusQueued       SessionStatus = "QUEUED"       // 已入队，等待worker处理
	SessionStatusInitializing SessionStatus = "INITIALIZING" // 初始化中，等同于QUEUED
	SessionStatusGenerating   SessionStatus = "GENERATING"   // 正在逐个调用模型
	SessionStatusFinished     SessionStatus = "FINISHED"     // 至少一个模型成功，终态
	SessionStatusError        SessionStatus = "ERROR"        // 全部失败或基础设施错误，终态
)

// Processable 会话是否可以被worker处理
// GENERATING/FINISHED/ERROR 状态下重复投递的任务必须被拒绝
func (s SessionStatus) Processable() bool {
	return s == SessionStatusQueued || s == SessionStatusInitializing
}

// Terminal 是否终态
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusFinished || s == SessionStatusError
}

// PredictionSession AI预测会话
// 一次会话代表用户对某个市场发起的一组模型预测请求
type PredictionSession struct {
	ID             string                      `gorm:"primaryKey;size:26" json:"id"`
	UserID         string                      `gorm:"size:26;not null;index" json:"user_id"`
	MarketID       string                      `gorm:"size:64;not null;index" json:"market_id"`
	SelectedModels datatypes.JSONSlice[string] `gorm:"type:json" json:"selected_models"` // 创建后不可变，决定费用和处理顺序
	Status         SessionStatus               `gorm:"size:20;not null;index" json:"status"`
	Step           string                      `gorm:"size:255" json:"step"`  // 人类可读进度，不参与逻辑判断
	Error          string                      `gorm:"size:1024" json:"error"`
	SuccessCount   int                         `gorm:"not null;default:0" json:"success_count"`
	FailureCount   int                         `gorm:"not null;default:0" json:"failure_count"`
	CreatedAt      time.Time                   `gorm:"not null;index" json:"created_at"` // 恢复扫描的超时时钟
	CompletedAt    *time.Time                  `json:"completed_at"`
	UpdatedAt      time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (PredictionSession) TableName() string {
	return "prediction_sessions"
}
