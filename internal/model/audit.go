package model

import (
	"time"
)

// AuditLog 应用级审计日志（应用库）
// 记录邀请签发、登录、沙盒操作等动作，供管理端 CSV 导出
type AuditLog struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Actor     string    `gorm:"type:varchar(255)" json:"actor"`
	Action    string    `gorm:"type:varchar(64);index" json:"action"`
	Details   string    `gorm:"type:text" json:"details"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audits"
}
