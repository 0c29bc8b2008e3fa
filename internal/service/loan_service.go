package service

import (
	"context"

	"labsandbox/internal/model"
	"labsandbox/internal/repository"
	"labsandbox/internal/sandbox"
)

// 快速贷款实验的资格规则：上限 ₦100,000，月收入不低于申请额的三分之一
const loanMaxAmountCents = 100000 * 100

// LoanApplicationRequest 一次贷款申请的输入
type LoanApplicationRequest struct {
	Name        string
	AmountCents int64
	IncomeCents int64
	TermMonths  int
}

// LoanService 快速贷款实验。申请结果写入会话账本的 loan_applications 表，
// 与银行沙盒账户完全隔离，批准不会入账
type LoanService struct{}

func NewLoanService() *LoanService {
	return &LoanService{}
}

// Apply 评估并记录一次贷款申请，批准与拒绝都落库并返回该行
func (s *LoanService) Apply(ctx context.Context, ledger *sandbox.Ledger, req *LoanApplicationRequest) (*model.LoanApplication, error) {
	ledger.Lock()
	defer ledger.Unlock()

	app := &model.LoanApplication{
		Name:        req.Name,
		AmountCents: req.AmountCents,
		IncomeCents: req.IncomeCents,
		TermMonths:  req.TermMonths,
	}

	switch {
	case req.AmountCents > loanMaxAmountCents:
		app.Status = model.LoanStatusRejected
		app.Note = "exceeds max quick-loan amount"
	case req.IncomeCents < (req.AmountCents+2)/3:
		app.Status = model.LoanStatusRejected
		app.Note = "insufficient income"
	default:
		app.Status = model.LoanStatusApproved
		app.Note = "Quick loan approved (not credited to bank sandbox accounts)"
	}

	if err := repository.NewLoanRepository(ledger.DB()).Create(ctx, app); err != nil {
		return nil, err
	}
	return app, nil
}

// List 返回当前会话的全部贷款申请，按时间倒序
func (s *LoanService) List(ctx context.Context, ledger *sandbox.Ledger) ([]*model.LoanApplication, error) {
	ledger.Lock()
	defer ledger.Unlock()
	return repository.NewLoanRepository(ledger.DB()).List(ctx)
}
