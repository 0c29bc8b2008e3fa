package repository

import (
	"context"

	"labsandbox/internal/model"

	"gorm.io/gorm"
)

// AuditRepository 审计日志数据访问（应用库）
type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Create(ctx context.Context, tx *gorm.DB, entry *model.AuditLog) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(entry).Error
}

func (r *AuditRepository) ListAll(ctx context.Context) ([]*model.AuditLog, error) {
	var entries []*model.AuditLog
	err := r.db.WithContext(ctx).Order("created_at DESC").Find(&entries).Error
	return entries, err
}
