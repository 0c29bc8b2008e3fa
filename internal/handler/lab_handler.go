package handler

import (
	"log"
	"time"

	"labsandbox/internal/model"
	"labsandbox/internal/service"
	"labsandbox/internal/session"
	"labsandbox/pkg/amount"
	"labsandbox/pkg/response"

	"github.com/gin-gonic/gin"
)

// ============================================================
// 实验目录与快速贷款实验
// ============================================================

// 实验编号（练习记录按编号聚合）
const (
	labBankTransfer = 1
	labQuickLoan    = 2
)

// labInfo 实验目录项
type labInfo struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

var labCatalog = []labInfo{
	{ID: labBankTransfer, Name: "Bank Transfer", Description: "Move money between sandbox accounts; freezes and balances are enforced per transfer."},
	{ID: labQuickLoan, Name: "Quick Loan", Description: "Apply for a quick loan; approval depends on amount and income, nothing is credited."},
}

// ListLabs 实验目录，附当前用户在各实验上的练习统计
// GET /api/v1/labs
func (h *Handler) ListLabs(c *gin.Context) {
	type labEntry struct {
		labInfo
		Attempts  int `json:"attempts"`
		Successes int `json:"successes"`
	}

	entries := make([]labEntry, len(labCatalog))
	for i, info := range labCatalog {
		entries[i] = labEntry{labInfo: info}
	}

	if data := session.Get(c); data.LoggedIn() {
		attempts, err := h.attemptRepo.ListByUser(c.Request.Context(), data.UserID)
		if err != nil {
			response.ServerError(c, err.Error())
			return
		}
		for _, a := range attempts {
			for i := range entries {
				if entries[i].ID == a.LabID {
					entries[i].Attempts++
					if a.Success == 1 {
						entries[i].Successes++
					}
				}
			}
		}
	}

	response.Success(c, gin.H{
		"list": entries,
	})
}

// LoanApplyRequest 快速贷款申请请求，金额字段支持 5k/2.5m 简写
type LoanApplyRequest struct {
	Name       string `json:"name" binding:"required"`
	Amount     string `json:"amount" binding:"required"`
	Income     string `json:"income" binding:"required"`
	TermMonths int    `json:"term_months"`
}

// ApplyLoan 提交快速贷款申请，批准与拒绝都落库并返回该行
// POST /api/v1/labs/loan/apply
func (h *Handler) ApplyLoan(c *gin.Context) {
	var req LoanApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	amountCents, err := amount.ParseToCents(req.Amount)
	if err != nil {
		response.ParamError(c, "amount 金额无法解析")
		return
	}
	incomeCents, err := amount.ParseToCents(req.Income)
	if err != nil {
		response.ParamError(c, "income 金额无法解析")
		return
	}

	l, err := h.ledger(c)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	start := time.Now()
	app, err := h.loanService.Apply(c.Request.Context(), l, &service.LoanApplicationRequest{
		Name:        req.Name,
		AmountCents: amountCents,
		IncomeCents: incomeCents,
		TermMonths:  req.TermMonths,
	})
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	h.recordAttempt(c, labQuickLoan, app.Status == model.LoanStatusApproved, app.Note, time.Since(start))
	response.Success(c, app)
}

// ListLoanApplications 当前会话的贷款申请记录
// GET /api/v1/labs/loan/applications
func (h *Handler) ListLoanApplications(c *gin.Context) {
	l, err := h.ledger(c)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	apps, err := h.loanService.List(c.Request.Context(), l)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, gin.H{
		"list":  apps,
		"total": len(apps),
	})
}

// recordAttempt 记录一次实验练习。未登录会话不记（没有用户可归属），
// 写入失败只告警不影响主流程
func (h *Handler) recordAttempt(c *gin.Context, labID int, success bool, output string, took time.Duration) {
	data := session.Get(c)
	if !data.LoggedIn() {
		return
	}

	successFlag := 0
	if success {
		successFlag = 1
	}
	attempt := &model.Attempt{
		UserID:     data.UserID,
		LabID:      labID,
		Success:    successFlag,
		Output:     output,
		DurationMs: took.Milliseconds(),
	}
	if err := h.attemptRepo.Create(c.Request.Context(), attempt); err != nil {
		log.Printf("[Lab] 记录练习失败: user=%d lab=%d, err=%v", data.UserID, labID, err)
	}
}
