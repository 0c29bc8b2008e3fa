package repository

import (
	"context"
	"errors"
	"time"

	"labsandbox/internal/model"

	"gorm.io/gorm"
)

var (
	ErrAccountNotFound = errors.New("账户不存在")
)

// AccountRepository 沙盒账户数据访问，针对单个会话账本构造
type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// ListActive 按 id 升序返回所有未软删除的账户
func (r *AccountRepository) ListActive(ctx context.Context) ([]*model.Account, error) {
	var accounts []*model.Account
	err := r.db.WithContext(ctx).
		Where("deleted_at IS NULL").
		Order("id ASC").
		Find(&accounts).Error
	return accounts, err
}

// GetByID 按 id 加载账户。不过滤软删除：历史上软删除账户仍可被转账引用
func (r *AccountRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Account, error) {
	if tx == nil {
		tx = r.db
	}
	var account model.Account
	err := tx.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (r *AccountRepository) Create(ctx context.Context, account *model.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

// UpdateStatus 无条件覆盖状态字段（状态集合是平面的，任意状态可改任意状态）
func (r *AccountRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	return r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// AdjustBalance 在事务内调整余额（正数入账，负数出账）
func (r *AccountRepository) AdjustBalance(ctx context.Context, tx *gorm.DB, id int64, deltaCents int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ?", id).
		Update("balance_cents", gorm.Expr("balance_cents + ?", deltaCents))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// SoftDelete 软删除：写入 deleted_at，保留行与历史流水。
// 返回受影响行数，id 不存在时为 0，不视为错误
func (r *AccountRepository) SoftDelete(ctx context.Context, id int64) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ?", id).
		Update("deleted_at", time.Now())
	return result.RowsAffected, result.Error
}
