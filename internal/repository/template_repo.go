package repository

import (
	"context"

	"labsandbox/internal/model"

	"gorm.io/gorm"
)

// TemplateRepository 沙盒种子账户模板数据访问（应用库）
type TemplateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) Create(ctx context.Context, tpl *model.BankTemplate) error {
	return r.db.WithContext(ctx).Create(tpl).Error
}

func (r *TemplateRepository) List(ctx context.Context) ([]*model.BankTemplate, error) {
	var templates []*model.BankTemplate
	err := r.db.WithContext(ctx).Order("id ASC").Find(&templates).Error
	return templates, err
}
