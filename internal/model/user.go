package model

import (
	"time"
)

// User 通过魔法链接登录过的用户（应用库）
type User struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Email     string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (User) TableName() string {
	return "users"
}

// Invite 魔法链接邀请令牌，一次性使用
type Invite struct {
	Token     string    `gorm:"type:varchar(64);primaryKey" json:"token"`
	Email     string    `gorm:"type:varchar(255);not null" json:"email"`
	Used      int       `gorm:"not null;default:0" json:"used"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Invite) TableName() string {
	return "invites"
}

// Tester 管理员预建的测试人员名单
type Tester struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username  string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	Email     *string    `gorm:"type:varchar(255)" json:"email"`
	LastUsed  *time.Time `json:"last_used"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (Tester) TableName() string {
	return "testers"
}

// Attempt 用户在某个实验上的练习记录
type Attempt struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     int64     `gorm:"index;not null" json:"user_id"`
	LabID      int       `gorm:"not null" json:"lab_id"`
	Success    int       `gorm:"not null;default:0" json:"success"`
	Output     string    `gorm:"type:text" json:"output"`
	DurationMs int64     `gorm:"not null;default:0" json:"duration_ms"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (Attempt) TableName() string {
	return "attempts"
}
