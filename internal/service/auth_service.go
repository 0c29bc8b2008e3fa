package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"labsandbox/internal/config"
	"labsandbox/internal/infrastructure/mailer"
	"labsandbox/internal/model"
	"labsandbox/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuthService 邀请签发与魔法链接登录
type AuthService struct {
	userRepo   *repository.UserRepository
	inviteRepo *repository.InviteRepository
	testerRepo *repository.TesterRepository
	mailer     *mailer.Mailer
	audit      *AuditService
	cfg        *config.Config
}

func NewAuthService(db *gorm.DB, cfg *config.Config, m *mailer.Mailer, audit *AuditService) *AuthService {
	return &AuthService{
		userRepo:   repository.NewUserRepository(db),
		inviteRepo: repository.NewInviteRepository(db),
		testerRepo: repository.NewTesterRepository(db),
		mailer:     m,
		audit:      audit,
		cfg:        cfg,
	}
}

// InviteResult 邀请签发结果。邮件发送成功时 Link 为空（不在响应中泄漏链接）
type InviteResult struct {
	Email string `json:"email"`
	Link  string `json:"link,omitempty"`
	Sent  bool   `json:"sent"`
}

func (s *AuthService) magicLink(baseURL, token string) string {
	return fmt.Sprintf("%s/api/v1/auth/magic/%s", strings.TrimRight(baseURL, "/"), token)
}

// CreateInvite 管理员为邮箱签发一次性邀请；配置了 SMTP 则尝试发信
func (s *AuthService) CreateInvite(ctx context.Context, actor, email, baseURL string) (*InviteResult, error) {
	token := uuid.NewString()
	if err := s.inviteRepo.Create(ctx, &model.Invite{Token: token, Email: email}); err != nil {
		return nil, err
	}
	s.audit.Log(ctx, actor, "create_invite", fmt.Sprintf("email=%s", email))

	link := s.magicLink(baseURL, token)
	if s.mailer.SendMagicLink(email, link) {
		return &InviteResult{Email: email, Sent: true}, nil
	}
	return &InviteResult{Email: email, Link: link, Sent: false}, nil
}

// TesterLogin 测试人员自助登录：按用户名找到名单项后为其签发邀请。
// 用户名不在名单时返回 repository.ErrTesterNotFound
func (s *AuthService) TesterLogin(ctx context.Context, username, baseURL string) (*InviteResult, error) {
	tester, err := s.testerRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	// 名单项没有邮箱时用用户名兜底，保证链接仍可签发
	email := fmt.Sprintf("%s@example.com", tester.Username)
	if tester.Email != nil && *tester.Email != "" {
		email = *tester.Email
	}

	token := uuid.NewString()
	if err := s.inviteRepo.Create(ctx, &model.Invite{Token: token, Email: email}); err != nil {
		return nil, err
	}
	return &InviteResult{Email: email, Link: s.magicLink(baseURL, token), Sent: false}, nil
}

// ConsumeMagicLink 消费魔法链接：校验邀请、取或建用户、标记已用。
// 返回用户与名单用户名（若有）。令牌无效返回 repository.ErrInviteNotFound
func (s *AuthService) ConsumeMagicLink(ctx context.Context, token string) (*model.User, string, error) {
	invite, err := s.inviteRepo.FindUsable(ctx, token)
	if err != nil {
		return nil, "", err
	}

	user, err := s.userRepo.GetOrCreateByEmail(ctx, invite.Email)
	if err != nil {
		return nil, "", err
	}

	if err := s.inviteRepo.MarkUsed(ctx, token); err != nil {
		return nil, "", err
	}
	s.audit.Log(ctx, user.Email, "login_magic", fmt.Sprintf("invite=%s", token))

	// 预建名单里的测试人员：取用户名并记录最近使用时间
	username := ""
	if tester, err := s.testerRepo.FindByEmail(ctx, invite.Email); err == nil {
		username = tester.Username
		if err := s.testerRepo.TouchLastUsedByEmail(ctx, invite.Email, time.Now()); err != nil {
			// 非关键路径，忽略
			_ = err
		}
	}
	return user, username, nil
}

// ListInvites 管理端邀请列表
func (s *AuthService) ListInvites(ctx context.Context) ([]*model.Invite, error) {
	return s.inviteRepo.List(ctx)
}

// CreateTester 管理员预建测试人员
func (s *AuthService) CreateTester(ctx context.Context, actor, username string, email *string) (*model.Tester, error) {
	tester := &model.Tester{Username: username, Email: email}
	if err := s.testerRepo.Create(ctx, tester); err != nil {
		return nil, err
	}
	emailStr := ""
	if email != nil {
		emailStr = *email
	}
	s.audit.Log(ctx, actor, "create_tester", fmt.Sprintf("username=%s email=%s", username, emailStr))
	return tester, nil
}

// ListTesters 管理端测试人员列表
func (s *AuthService) ListTesters(ctx context.Context) ([]*model.Tester, error) {
	return s.testerRepo.List(ctx)
}

// DeleteTester 移除测试人员
func (s *AuthService) DeleteTester(ctx context.Context, actor string, id int64) error {
	if err := s.testerRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.audit.Log(ctx, actor, "delete_tester", fmt.Sprintf("id=%d", id))
	return nil
}

// ListUsers 管理端用户列表
func (s *AuthService) ListUsers(ctx context.Context) ([]*model.User, error) {
	return s.userRepo.List(ctx)
}
