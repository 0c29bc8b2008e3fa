package handler

import (
	"crypto/subtle"
	"encoding/csv"
	"errors"
	"strconv"
	"time"

	"labsandbox/internal/model"
	"labsandbox/internal/repository"
	"labsandbox/internal/session"
	"labsandbox/pkg/amount"
	"labsandbox/pkg/response"

	"github.com/gin-gonic/gin"
)

// ============================================================
// 管理端接口（口令登录，会话打 is_admin 标记）
// ============================================================

// AdminLoginRequest 管理端登录请求
type AdminLoginRequest struct {
	Password string `json:"password" binding:"required"`
}

// AdminLogin 管理端口令登录
// POST /api/v1/admin/login
func (h *Handler) AdminLogin(c *gin.Context) {
	var req AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if h.cfg.Admin.Password == "" ||
		subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.cfg.Admin.Password)) != 1 {
		h.auditService.Log(c.Request.Context(), "anonymous", "admin_login_failed", "")
		response.Unauthorized(c, "invalid password")
		return
	}

	session.Get(c).IsAdmin = true
	if err := h.sessions.Save(c); err != nil {
		response.ServerError(c, err.Error())
		return
	}

	h.auditService.Log(c.Request.Context(), "admin", "admin_login", "")
	response.Success(c, gin.H{
		"message": "admin session established",
	})
}

// CreateInviteRequest 签发邀请请求
type CreateInviteRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// CreateInvite 为邮箱签发一次性魔法链接邀请
// POST /api/v1/admin/invites
func (h *Handler) CreateInvite(c *gin.Context) {
	var req CreateInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.authService.CreateInvite(c.Request.Context(), actor(c), req.Email, h.baseURL(c))
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, result)
}

// ListInvites 邀请列表
// GET /api/v1/admin/invites
func (h *Handler) ListInvites(c *gin.Context) {
	invites, err := h.authService.ListInvites(c.Request.Context())
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, gin.H{
		"list":  invites,
		"total": len(invites),
	})
}

// CreateTesterRequest 预建测试人员请求
type CreateTesterRequest struct {
	Username string  `json:"username" binding:"required"`
	Email    *string `json:"email"`
}

// CreateTester 预建测试人员
// POST /api/v1/admin/testers
func (h *Handler) CreateTester(c *gin.Context) {
	var req CreateTesterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	tester, err := h.authService.CreateTester(c.Request.Context(), actor(c), req.Username, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateTester) {
			response.BusinessError(c, response.CodeDuplicateTester, "tester already exists")
			return
		}
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, tester)
}

// ListTesters 测试人员列表
// GET /api/v1/admin/testers
func (h *Handler) ListTesters(c *gin.Context) {
	testers, err := h.authService.ListTesters(c.Request.Context())
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, gin.H{
		"list":  testers,
		"total": len(testers),
	})
}

// DeleteTester 移除测试人员
// DELETE /api/v1/admin/testers/:id
func (h *Handler) DeleteTester(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.authService.DeleteTester(c.Request.Context(), actor(c), id); err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, gin.H{
		"message": "tester removed",
	})
}

// ListUsers 登录过的用户列表
// GET /api/v1/admin/users
func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.authService.ListUsers(c.Request.Context())
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, gin.H{
		"list":  users,
		"total": len(users),
	})
}

// CreateTemplateRequest 种子账户模板请求
type CreateTemplateRequest struct {
	OwnerName string `json:"owner_name" binding:"required"`
	Balance   string `json:"balance"`
	Status    string `json:"status"`
}

// CreateTemplate 新增种子账户模板，之后新建（或重置后）的沙盒按模板播种
// POST /api/v1/admin/templates
func (h *Handler) CreateTemplate(c *gin.Context) {
	var req CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	balanceCents := int64(0)
	if req.Balance != "" {
		cents, err := amount.ParseToCents(req.Balance)
		if err != nil {
			response.ParamError(c, "balance 金额无法解析")
			return
		}
		balanceCents = cents
	}

	status, err := model.NormalizeStatus(req.Status)
	if err != nil {
		var invalid *model.InvalidStatusError
		if errors.As(err, &invalid) {
			response.BusinessError(c, response.CodeInvalidStatus, invalid.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	tpl := &model.BankTemplate{
		OwnerName:    req.OwnerName,
		BalanceCents: balanceCents,
		Status:       status,
	}
	if err := h.templateRepo.Create(c.Request.Context(), tpl); err != nil {
		response.ServerError(c, err.Error())
		return
	}

	h.auditService.Log(c.Request.Context(), actor(c), "create_template", tpl.OwnerName)
	response.Success(c, tpl)
}

// ListTemplates 种子账户模板列表
// GET /api/v1/admin/templates
func (h *Handler) ListTemplates(c *gin.Context) {
	templates, err := h.templateRepo.List(c.Request.Context())
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, gin.H{
		"list":  templates,
		"total": len(templates),
	})
}

// ExportAudits 导出全部审计日志 CSV
// GET /api/v1/admin/audits/export
func (h *Handler) ExportAudits(c *gin.Context) {
	entries, err := h.auditService.ListAll(c.Request.Context())
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="audits.csv"`)

	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{"id", "actor", "action", "details", "created_at"})
	for _, e := range entries {
		_ = w.Write([]string{
			strconv.FormatInt(e.ID, 10),
			e.Actor,
			e.Action,
			e.Details,
			e.CreatedAt.Format(time.RFC3339),
		})
	}
	w.Flush()
}

// Debug 运行时状态
// GET /api/v1/admin/debug
func (h *Handler) Debug(c *gin.Context) {
	response.Success(c, gin.H{
		"open_ledgers":  h.boxes.Len(),
		"kafka_enabled": h.cfg.Kafka.Enabled,
		"session_store": h.cfg.Session.Store,
		"smtp_enabled":  h.cfg.SMTP.Host != "",
	})
}
