package repository

import (
	"context"

	"labsandbox/internal/model"

	"gorm.io/gorm"
)

// LoanRepository 贷款申请数据访问，针对单个会话账本构造
type LoanRepository struct {
	db *gorm.DB
}

func NewLoanRepository(db *gorm.DB) *LoanRepository {
	return &LoanRepository{db: db}
}

func (r *LoanRepository) Create(ctx context.Context, app *model.LoanApplication) error {
	return r.db.WithContext(ctx).Create(app).Error
}

func (r *LoanRepository) List(ctx context.Context) ([]*model.LoanApplication, error) {
	var apps []*model.LoanApplication
	err := r.db.WithContext(ctx).Order("created_at DESC").Find(&apps).Error
	return apps, err
}
