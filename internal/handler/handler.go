package handler

import (
	"fmt"
	"strconv"

	"labsandbox/internal/config"
	"labsandbox/internal/infrastructure/mailer"
	"labsandbox/internal/repository"
	"labsandbox/internal/sandbox"
	"labsandbox/internal/service"
	"labsandbox/internal/session"
	"labsandbox/pkg/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	bankService  *service.BankService
	authService  *service.AuthService
	loanService  *service.LoanService
	auditService *service.AuditService

	templateRepo *repository.TemplateRepository
	attemptRepo  *repository.AttemptRepository

	sessions *session.Manager
	boxes    *sandbox.Manager
	cfg      *config.Config
}

// NewHandler 创建处理器实例。db 为应用库句柄，会话账本句柄按请求从 boxes 获取
func NewHandler(db *gorm.DB, cfg *config.Config, sessions *session.Manager, boxes *sandbox.Manager) *Handler {
	auditService := service.NewAuditService(db, cfg)
	return &Handler{
		bankService:  service.NewBankService(),
		authService:  service.NewAuthService(db, cfg, mailer.New(&cfg.SMTP), auditService),
		loanService:  service.NewLoanService(),
		auditService: auditService,
		templateRepo: repository.NewTemplateRepository(db),
		attemptRepo:  repository.NewAttemptRepository(db),
		sessions:     sessions,
		boxes:        boxes,
		cfg:          cfg,
	}
}

// ledger 取当前会话的账本句柄，并保证种子账户已就位。
// 账本以会话标识为命名空间：不同浏览器会话互不可见
func (h *Handler) ledger(c *gin.Context) (*sandbox.Ledger, error) {
	l, err := h.boxes.Acquire(session.ID(c))
	if err != nil {
		return nil, err
	}

	templates, err := h.templateRepo.List(c.Request.Context())
	if err != nil {
		return nil, err
	}
	if _, err := h.bankService.EnsureSeeded(c.Request.Context(), l, templates); err != nil {
		return nil, err
	}
	return l, nil
}

// baseURL 魔法链接的外部地址：优先配置，否则按请求 Host 推导
func (h *Handler) baseURL(c *gin.Context) string {
	if h.cfg.Server.BaseURL != "" {
		return h.cfg.Server.BaseURL
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, c.Request.Host)
}

// actor 审计用的操作者标识
func actor(c *gin.Context) string {
	data := session.Get(c)
	if data.IsAdmin {
		return "admin"
	}
	if data.LoggedIn() {
		return data.Email
	}
	return "anonymous"
}

// pathID 解析路径上的数字 id，非法时直接写参数错误响应
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, name+" 参数错误")
		return 0, false
	}
	return id, true
}
