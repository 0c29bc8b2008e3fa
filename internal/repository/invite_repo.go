package repository

import (
	"context"
	"errors"

	"labsandbox/internal/model"

	"gorm.io/gorm"
)

var ErrInviteNotFound = errors.New("邀请不存在或已使用")

// InviteRepository 魔法链接邀请令牌数据访问（应用库）
type InviteRepository struct {
	db *gorm.DB
}

func NewInviteRepository(db *gorm.DB) *InviteRepository {
	return &InviteRepository{db: db}
}

func (r *InviteRepository) Create(ctx context.Context, invite *model.Invite) error {
	return r.db.WithContext(ctx).Create(invite).Error
}

// FindUsable 按令牌查找尚未使用的邀请
func (r *InviteRepository) FindUsable(ctx context.Context, token string) (*model.Invite, error) {
	var invite model.Invite
	err := r.db.WithContext(ctx).
		Where("token = ? AND used = 0", token).
		First(&invite).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInviteNotFound
		}
		return nil, err
	}
	return &invite, nil
}

// MarkUsed 将邀请标记为已使用（一次性令牌）
func (r *InviteRepository) MarkUsed(ctx context.Context, token string) error {
	return r.db.WithContext(ctx).
		Model(&model.Invite{}).
		Where("token = ?", token).
		Update("used", 1).Error
}

func (r *InviteRepository) List(ctx context.Context) ([]*model.Invite, error) {
	var invites []*model.Invite
	err := r.db.WithContext(ctx).Order("created_at DESC").Find(&invites).Error
	return invites, err
}
