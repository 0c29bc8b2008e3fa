package handler

import (
	"errors"
	"fmt"

	"labsandbox/internal/repository"
	"labsandbox/internal/session"
	"labsandbox/pkg/response"

	"github.com/gin-gonic/gin"
)

// ============================================================
// 登录相关接口（魔法链接无密码登录）
// ============================================================

// TesterLoginRequest 测试人员自助登录请求
type TesterLoginRequest struct {
	Username string `json:"username" binding:"required"`
}

// TesterLogin 测试人员按用户名自助获取魔法链接
// POST /api/v1/auth/tester-login
func (h *Handler) TesterLogin(c *gin.Context) {
	var req TesterLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.authService.TesterLogin(c.Request.Context(), req.Username, h.baseURL(c))
	if err != nil {
		if errors.Is(err, repository.ErrTesterNotFound) {
			response.BusinessError(c, response.CodeUnknownTester, "unknown tester")
			return
		}
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, result)
}

// ConsumeMagicLink 消费魔法链接完成登录
// GET /api/v1/auth/magic/:token
//
// 【关键点】登录时更换会话标识（防会话固定），旧标识名下的沙盒账本一并销毁：
// 登录前后的沙盒互不串数据
func (h *Handler) ConsumeMagicLink(c *gin.Context) {
	token := c.Param("token")
	if token == "" {
		response.ParamError(c, "token 参数不能为空")
		return
	}

	user, username, err := h.authService.ConsumeMagicLink(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, repository.ErrInviteNotFound) {
			response.BusinessError(c, response.CodeInvalidInvite, "invalid or used invite")
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	data := session.Get(c)
	data.UserID = user.ID
	data.Email = user.Email
	data.Username = username

	oldID, err := h.sessions.Renew(c)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	if err := h.boxes.Destroy(oldID); err != nil {
		// 旧沙盒清理失败不阻断登录
		_ = err
	}

	response.Success(c, gin.H{
		"email":        data.Email,
		"display_name": data.DisplayName(),
	})
}

// Me 当前会话信息
// GET /api/v1/auth/me
func (h *Handler) Me(c *gin.Context) {
	data := session.Get(c)
	response.Success(c, gin.H{
		"logged_in":    data.LoggedIn(),
		"email":        data.Email,
		"display_name": data.DisplayName(),
		"is_admin":     data.IsAdmin,
	})
}

// Logout 登出：销毁会话与名下的沙盒账本
// POST /api/v1/auth/logout
func (h *Handler) Logout(c *gin.Context) {
	email := session.Get(c).Email

	id, err := h.sessions.Destroy(c)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	if err := h.boxes.Destroy(id); err != nil {
		response.ServerError(c, err.Error())
		return
	}

	h.auditService.Log(c.Request.Context(), email, "logout", fmt.Sprintf("session=%s", id))
	response.Success(c, gin.H{
		"message": "logged out",
	})
}
