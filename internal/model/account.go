package model

import (
	"fmt"
	"strings"
	"time"
)

// ============================================================================
// 账户状态常量
// ============================================================================
//
// 【状态语义】状态是一个平面集合，任何状态都允许直接改为任何其他状态。
// 唯一起作用的规则在转账时刻执行（见 service.BankService.Transfer）：
//
//	状态           可被借记(出账)  可被贷记(入账)
//	active         是             是
//	dormant        否             否
//	inactive       否             否
//	total freeze   否             否
//	debit freeze   否             是
//	credit freeze  是             否
//
// credit freeze 只阻止资金进入账户，不阻止花掉已有余额；debit freeze 相反。
// ============================================================================

const (
	StatusActive       = "active"
	StatusDormant      = "dormant"
	StatusDebitFreeze  = "debit freeze"
	StatusCreditFreeze = "credit freeze"
	StatusTotalFreeze  = "total freeze"
	StatusInactive     = "inactive"
)

// AllowedStatuses 允许的账户状态全集（存储时统一小写）
var AllowedStatuses = []string{
	StatusActive,
	StatusDormant,
	StatusDebitFreeze,
	StatusCreditFreeze,
	StatusTotalFreeze,
	StatusInactive,
}

// InvalidStatusError 状态值不在允许集合内
type InvalidStatusError struct {
	Status string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("Invalid status '%s'. Allowed: %s", e.Status, strings.Join(AllowedStatuses, ", "))
}

// NormalizeStatus 归一化状态输入（大小写不敏感，空值视为 active）
// 非法状态返回 *InvalidStatusError
func NormalizeStatus(status string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(status))
	if s == "" {
		s = StatusActive
	}
	for _, allowed := range AllowedStatuses {
		if s == allowed {
			return s, nil
		}
	}
	return "", &InvalidStatusError{Status: s}
}

// CanDebit 判断账户当前状态是否允许出账
func CanDebit(status string) bool {
	s := strings.ToLower(status)
	return s == StatusActive || s == StatusCreditFreeze
}

// CanCredit 判断账户当前状态是否允许入账
func CanCredit(status string) bool {
	s := strings.ToLower(status)
	return s == StatusActive || s == StatusDebitFreeze
}

// Account 沙盒账户表（每个会话一个独立账本库）
// DeletedAt 非空表示账户已软删除：从活跃列表中消失，但历史交易仍然引用它
type Account struct {
	ID            int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerName     string     `gorm:"type:varchar(128)" json:"owner_name"`
	AccountNumber string     `gorm:"type:varchar(16);uniqueIndex" json:"account_number"` // 8位数字，创建时随机生成，全表唯一（含已删除账户）
	Status        string     `gorm:"type:varchar(20);not null;default:active" json:"status"`
	BalanceCents  int64      `gorm:"not null;default:0" json:"balance_cents"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (Account) TableName() string {
	return "accounts"
}
