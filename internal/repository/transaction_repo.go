package repository

import (
	"context"

	"labsandbox/internal/model"

	"gorm.io/gorm"
)

// TransactionRepository 沙盒交易流水数据访问，针对单个会话账本构造
type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.Transaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(trans).Error
}

// ListEnriched 按创建时间倒序返回全部流水，户名与账号做双源解析：
// 账户行仍存在时取当前值（JOIN 故意不过滤 deleted_at，软删除后历史行仍可解析），
// 账户行不存在时回退到流水自身写入时的快照字段
func (r *TransactionRepository) ListEnriched(ctx context.Context) ([]*model.TransactionView, error) {
	var rows []*model.TransactionView
	err := r.db.WithContext(ctx).Raw(`
		SELECT t.id,
		       t.from_account,
		       t.to_account,
		       COALESCE(fa.account_number, t.from_account_number) AS from_account_number,
		       COALESCE(ta.account_number, t.to_account_number)   AS to_account_number,
		       COALESCE(fa.owner_name, t.from_owner_name)         AS from_owner_name,
		       COALESCE(ta.owner_name, t.to_owner_name)           AS to_owner_name,
		       t.amount_cents,
		       t.status,
		       t.note,
		       t.created_at
		FROM transactions t
		LEFT JOIN accounts fa ON t.from_account = fa.id
		LEFT JOIN accounts ta ON t.to_account = ta.id
		ORDER BY t.created_at DESC, t.id DESC`).
		Scan(&rows).Error
	return rows, err
}
