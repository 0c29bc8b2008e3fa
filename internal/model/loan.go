package model

import (
	"time"
)

const (
	LoanStatusApproved = "approved"
	LoanStatusRejected = "rejected"
	LoanStatusError    = "error"
)

// LoanApplication 快速贷款实验的申请记录
// 与银行沙盒同库但独立成表，贷款结果不会影响沙盒账户余额
type LoanApplication struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"type:varchar(128)" json:"name"`
	AmountCents int64     `gorm:"not null" json:"amount_cents"`
	IncomeCents int64     `gorm:"not null" json:"income_cents"`
	TermMonths  int       `gorm:"not null" json:"term_months"`
	Status      string    `gorm:"type:varchar(20);not null" json:"status"`
	Note        string    `gorm:"type:text" json:"note"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (LoanApplication) TableName() string {
	return "loan_applications"
}
