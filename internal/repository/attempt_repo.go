package repository

import (
	"context"

	"labsandbox/internal/model"

	"gorm.io/gorm"
)

// AttemptRepository 实验练习记录数据访问（应用库）
type AttemptRepository struct {
	db *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

func (r *AttemptRepository) Create(ctx context.Context, attempt *model.Attempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

func (r *AttemptRepository) ListByUser(ctx context.Context, userID int64) ([]*model.Attempt, error) {
	var attempts []*model.Attempt
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&attempts).Error
	return attempts, err
}
