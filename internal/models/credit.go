package models

import "time"

// CreditAccount 用户积分账户
// 不变式: credits == 初始值 + total_credits_earned - total_credits_spent
type CreditAccount struct {
	UserID             string    `gorm:"primaryKey;size:26" json:"user_id"`
	Credits            int64     `gorm:"not null;default:0" json:"credits"` // 永不为负
	TotalCreditsEarned int64     `gorm:"not null;default:0" json:"total_credits_earned"`
	TotalCreditsSpent  int64     `gorm:"not null;default:0" json:"total_credits_spent"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (CreditAccount) TableName() string {
	return "credit_accounts"
}

// 积分流水类型
const (
	CreditEntryDebit  = "debit"
	CreditEntryCredit = "credit"
	CreditEntryRefund = "refund" // 语义上等同于credit，单独标记便于审计
)

// CreditEntry 积分流水
type CreditEntry struct {
	ID        string    `gorm:"primaryKey;size:26" json:"id"`
	UserID    string    `gorm:"size:26;not null;index" json:"user_id"`
	Amount    int64     `gorm:"not null" json:"amount"` // 有符号，debit为负
	Kind      string    `gorm:"size:10;not null" json:"kind"`
	Reason    string    `gorm:"size:255" json:"reason"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// TableName 指定表名
func (CreditEntry) TableName() string {
	return "credit_entries"
}
