package repository

import (
	"context"
	"errors"
	"time"

	"labsandbox/internal/model"

	"gorm.io/gorm"
)

var (
	ErrTesterNotFound  = errors.New("测试人员不存在")
	ErrDuplicateTester = errors.New("测试人员用户名已存在")
)

// TesterRepository 测试人员名单数据访问（应用库）
type TesterRepository struct {
	db *gorm.DB
}

func NewTesterRepository(db *gorm.DB) *TesterRepository {
	return &TesterRepository{db: db}
}

func (r *TesterRepository) Create(ctx context.Context, tester *model.Tester) error {
	err := r.db.WithContext(ctx).Create(tester).Error
	if err != nil {
		// 唯一索引冲突时归一化为领域错误
		if existing, findErr := r.FindByUsername(ctx, tester.Username); findErr == nil && existing != nil {
			return ErrDuplicateTester
		}
		return err
	}
	return nil
}

func (r *TesterRepository) List(ctx context.Context) ([]*model.Tester, error) {
	var testers []*model.Tester
	err := r.db.WithContext(ctx).Order("id ASC").Find(&testers).Error
	return testers, err
}

func (r *TesterRepository) FindByUsername(ctx context.Context, username string) (*model.Tester, error) {
	var tester model.Tester
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&tester).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTesterNotFound
		}
		return nil, err
	}
	return &tester, nil
}

func (r *TesterRepository) FindByEmail(ctx context.Context, email string) (*model.Tester, error) {
	var tester model.Tester
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&tester).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTesterNotFound
		}
		return nil, err
	}
	return &tester, nil
}

func (r *TesterRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&model.Tester{}, id).Error
}

// TouchLastUsedByEmail 登录成功后记录最近使用时间（按邮箱或用户名匹配）
func (r *TesterRepository) TouchLastUsedByEmail(ctx context.Context, email string, when time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.Tester{}).
		Where("email = ? OR username = ?", email, email).
		Update("last_used", when).Error
}
