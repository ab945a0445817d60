package models

import (
	"time"

	"gorm.io/datatypes"
)

// Prediction 单个模型的预测结果
// 只有生成成功的模型才会落库，失败只体现在会话的失败计数上
type Prediction struct {
	ID                    string                       `gorm:"primaryKey;size:26" json:"id"`
	SessionID             string                       `gorm:"size:26;not null;index" json:"session_id"`
	ModelName             string                       `gorm:"size:64;not null" json:"model_name"`
	Outcomes              datatypes.JSONSlice[string]  `gorm:"type:json" json:"outcomes"`
	OutcomesProbabilities datatypes.JSONSlice[float64] `gorm:"type:json" json:"outcomes_probabilities"`
	AIResponse            datatypes.JSON               `gorm:"type:json" json:"ai_response"` // 模型原始返回，不做解释
	CreatedAt             time.Time                    `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 指定表名
func (Prediction) TableName() string {
	return "predictions"
}
