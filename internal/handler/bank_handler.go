package handler

import (
	"encoding/csv"
	"errors"
	"fmt"
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
// 银行沙盒接口（登录后可用，数据按会话隔离）
// ============================================================

// ListAccounts 查询当前会话的账户列表
// GET /api/v1/bank/accounts
func (h *Handler) ListAccounts(c *gin.Context) {
	l, err := h.ledger(c)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	accounts, err := h.bankService.ListAccounts(c.Request.Context(), l)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, gin.H{
		"list":  accounts,
		"total": len(accounts),
	})
}

// CreateAccountRequest 开户请求。金额是展示单位的字符串，支持 5k/2.5m 简写
type CreateAccountRequest struct {
	OwnerName string `json:"owner_name" binding:"required"`
	Balance   string `json:"balance"`
	Status    string `json:"status"`
}

// CreateAccount 开户
// POST /api/v1/bank/accounts
func (h *Handler) CreateAccount(c *gin.Context) {
	var req CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	initialCents := int64(0)
	if req.Balance != "" {
		cents, err := amount.ParseToCents(req.Balance)
		if err != nil {
			response.ParamError(c, "balance 金额无法解析")
			return
		}
		initialCents = cents
	}

	l, err := h.ledger(c)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	account, err := h.bankService.CreateAccount(c.Request.Context(), l, req.OwnerName, initialCents, req.Status)
	if err != nil {
		var invalid *model.InvalidStatusError
		if errors.As(err, &invalid) {
			response.BusinessError(c, response.CodeInvalidStatus, invalid.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	h.auditService.Log(c.Request.Context(), actor(c), "create_account",
		fmt.Sprintf("session=%s account=%d", session.ID(c), account.ID))
	response.Success(c, account)
}

// UpdateAccountStatusRequest 改状态请求
type UpdateAccountStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateAccountStatus 修改账户状态
// PUT /api/v1/bank/accounts/:id/status
//
// 状态集合是平面的：任何状态都可以直接改为任何其他状态，
// 冻结语义只在转账时刻生效
func (h *Handler) UpdateAccountStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req UpdateAccountStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	l, err := h.ledger(c)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	account, err := h.bankService.UpdateAccountStatus(c.Request.Context(), l, id, req.Status)
	if err != nil {
		var invalid *model.InvalidStatusError
		switch {
		case errors.As(err, &invalid):
			response.BusinessError(c, response.CodeInvalidStatus, invalid.Error())
		case errors.Is(err, repository.ErrAccountNotFound):
			response.BusinessError(c, response.CodeAccountNotFound, "account not found")
		default:
			response.ServerError(c, err.Error())
		}
		return
	}

	h.auditService.Log(c.Request.Context(), actor(c), "update_account_status",
		fmt.Sprintf("session=%s account=%d status=%s", session.ID(c), id, account.Status))
	response.Success(c, account)
}

// DeleteAccount 软删除账户：从列表消失，历史流水保留
// DELETE /api/v1/bank/accounts/:id
func (h *Handler) DeleteAccount(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	l, err := h.ledger(c)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	deleted, err := h.bankService.DeleteAccount(c.Request.Context(), l, id)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	h.auditService.Log(c.Request.Context(), actor(c), "delete_account",
		fmt.Sprintf("session=%s account=%d deleted=%d", session.ID(c), id, deleted))
	response.Success(c, gin.H{
		"deleted": deleted,
	})
}

// TransferRequest 转账请求
type TransferRequest struct {
	FromID int64  `json:"from_id" binding:"required"`
	ToID   int64  `json:"to_id" binding:"required"`
	Amount string `json:"amount" binding:"required"`
	Note   string `json:"note"`
}

// Transfer 转账
// POST /api/v1/bank/transfer
//
// 【关键点】业务失败（冻结、余额不足、账户不存在等）不是错误：
// 余额回滚后落一行 status=failed 的流水并正常返回，调用方看流水行判断结果。
// 只有存储层意外错误才返回 500
func (h *Handler) Transfer(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	amountCents, err := amount.ParseToCents(req.Amount)
	if err != nil {
		response.ParamError(c, "amount 金额无法解析")
		return
	}

	l, err := h.ledger(c)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	start := time.Now()
	trans, err := h.bankService.Transfer(c.Request.Context(), l, req.FromID, req.ToID, amountCents, req.Note)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	h.recordAttempt(c, labBankTransfer, trans.Status == model.TransactionStatusSuccess,
		transferOutput(trans), time.Since(start))
	h.auditService.Log(c.Request.Context(), actor(c), "transfer",
		fmt.Sprintf("session=%s from=%d to=%d amount=%d status=%s",
			session.ID(c), req.FromID, req.ToID, amountCents, trans.Status))
	response.Success(c, trans)
}

func transferOutput(t *model.Transaction) string {
	if t.Note != nil {
		return fmt.Sprintf("%s: %s", t.Status, *t.Note)
	}
	return t.Status
}

// ListTransactions 查询当前会话的交易流水（含失败流水），按时间倒序
// GET /api/v1/bank/transactions
func (h *Handler) ListTransactions(c *gin.Context) {
	l, err := h.ledger(c)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	views, err := h.bankService.ListTransactions(c.Request.Context(), l)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, gin.H{
		"list":  views,
		"total": len(views),
	})
}

// ExportTransactions 导出当前会话的交易流水 CSV
// GET /api/v1/bank/transactions/export
func (h *Handler) ExportTransactions(c *gin.Context) {
	l, err := h.ledger(c)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	views, err := h.bankService.ListTransactions(c.Request.Context(), l)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="transactions.csv"`)

	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{"id", "from_account_number", "from_owner_name", "to_account_number", "to_owner_name", "amount_cents", "status", "note", "created_at"})
	for _, v := range views {
		_ = w.Write([]string{
			strconv.FormatInt(v.ID, 10),
			derefStr(v.FromAccountNumber),
			derefStr(v.FromOwnerName),
			derefStr(v.ToAccountNumber),
			derefStr(v.ToOwnerName),
			strconv.FormatInt(v.AmountCents, 10),
			v.Status,
			derefStr(v.Note),
			v.CreatedAt.Format(time.RFC3339),
		})
	}
	w.Flush()
}

// ResetSandbox 销毁当前会话的账本（文件整体删除），下次访问重新播种
// POST /api/v1/bank/reset
func (h *Handler) ResetSandbox(c *gin.Context) {
	id := session.ID(c)
	if err := h.boxes.Destroy(id); err != nil {
		response.ServerError(c, err.Error())
		return
	}

	h.auditService.Log(c.Request.Context(), actor(c), "reset_sandbox", fmt.Sprintf("session=%s", id))
	response.Success(c, gin.H{
		"message": "sandbox reset",
	})
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
