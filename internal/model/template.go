package model

import (
	"time"
)

// BankTemplate 沙盒种子账户模板（应用库，跨会话共享）
// 会话的账本首次被发现为空时，按模板批量创建账户。
// 模板属于受信输入：余额不做符号校验，状态为空时按 active 处理
type BankTemplate struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerName    string    `gorm:"type:varchar(128);not null" json:"owner_name"`
	BalanceCents int64     `gorm:"not null;default:0" json:"balance_cents"`
	Status       string    `gorm:"type:varchar(20);not null;default:active" json:"status"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (BankTemplate) TableName() string {
	return "bank_templates"
}
