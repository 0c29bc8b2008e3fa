package model

import (
	"time"
)

// ============================================================================
// 交易状态常量
// ============================================================================

const (
	TransactionStatusSuccess = "success"
	TransactionStatusFailed  = "failed"
)

// ============================================================================
// 交易流水实体
// ============================================================================

// Transaction 沙盒交易流水表
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除 —— 失败的转账同样落一行 failed 流水
// 2. 写入时冗余快照双方的户名与账号 —— 账户被软删除后历史仍然可读
// 3. from/to 账户 ID 允许指向已软删除甚至不存在的账户
type Transaction struct {
	ID                int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	FromAccount       int64     `gorm:"index" json:"from_account"`
	ToAccount         int64     `gorm:"index" json:"to_account"`
	FromAccountNumber *string   `gorm:"type:varchar(16)" json:"from_account_number"` // 交易时刻的快照，账户不可加载时为 NULL
	ToAccountNumber   *string   `gorm:"type:varchar(16)" json:"to_account_number"`
	FromOwnerName     *string   `gorm:"type:varchar(128)" json:"from_owner_name"`
	ToOwnerName       *string   `gorm:"type:varchar(128)" json:"to_owner_name"`
	AmountCents       int64     `gorm:"not null" json:"amount_cents"` // 请求金额，失败流水同样记录
	Status            string    `gorm:"type:varchar(20);not null" json:"status"`
	Note              *string   `gorm:"type:text" json:"note"` // 成功时为调用方备注；失败时为失败原因的可读描述
	CreatedAt         time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// TransactionView 交易列表展示行
// 户名与账号优先取当前 accounts 表（JOIN 不过滤软删除），
// 账户行不存在时回退到流水自身的快照字段
type TransactionView struct {
	ID                int64     `json:"id"`
	FromAccount       int64     `json:"from_account"`
	ToAccount         int64     `json:"to_account"`
	FromAccountNumber *string   `json:"from_account_number"`
	ToAccountNumber   *string   `json:"to_account_number"`
	FromOwnerName     *string   `json:"from_owner_name"`
	ToOwnerName       *string   `json:"to_owner_name"`
	AmountCents       int64     `json:"amount_cents"`
	Status            string    `json:"status"`
	Note              *string   `json:"note"`
	CreatedAt         time.Time `json:"created_at"`
}
