package service

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"labsandbox/internal/config"
	"labsandbox/internal/model"
	"labsandbox/internal/repository"
	"labsandbox/internal/sandbox"
)

func newTestLedger(t *testing.T) *sandbox.Ledger {
	t.Helper()
	m := sandbox.NewManager(&config.SandboxConfig{Dir: t.TempDir()})
	t.Cleanup(m.Close)

	l, err := m.Acquire("test-session")
	if err != nil {
		t.Fatalf("获取账本失败: %v", err)
	}
	return l
}

func mustCreate(t *testing.T, svc *BankService, l *sandbox.Ledger, owner string, cents int64, status string) *model.Account {
	t.Helper()
	account, err := svc.CreateAccount(context.Background(), l, owner, cents, status)
	if err != nil {
		t.Fatalf("开户失败 owner=%s: %v", owner, err)
	}
	return account
}

func TestCreateAccount(t *testing.T) {
	svc := NewBankService()
	l := newTestLedger(t)
	ctx := context.Background()

	numberPattern := regexp.MustCompile(`^[1-9][0-9]{7}$`)

	tests := []struct {
		name       string
		status     string
		wantStatus string
	}{
		{"默认状态", "", model.StatusActive},
		{"大小写归一化", "Active", model.StatusActive},
		{"带空白归一化", "  Debit Freeze ", model.StatusDebitFreeze},
		{"休眠状态", "dormant", model.StatusDormant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			account, err := svc.CreateAccount(ctx, l, "owner", 1000, tt.status)
			if err != nil {
				t.Fatalf("开户失败: %v", err)
			}
			if account.Status != tt.wantStatus {
				t.Errorf("状态期望 %q，实际 %q", tt.wantStatus, account.Status)
			}
			if !numberPattern.MatchString(account.AccountNumber) {
				t.Errorf("账号应为 8 位数字，实际 %q", account.AccountNumber)
			}
			if account.ID == 0 {
				t.Error("账户应拿到自增 id")
			}
		})
	}
}

func TestCreateAccountInvalidStatus(t *testing.T) {
	svc := NewBankService()
	l := newTestLedger(t)

	_, err := svc.CreateAccount(context.Background(), l, "owner", 0, "bogus")
	if err == nil {
		t.Fatal("非法状态应报错")
	}
	invalid, ok := err.(*model.InvalidStatusError)
	if !ok {
		t.Fatalf("期望 *model.InvalidStatusError，实际 %T", err)
	}
	if invalid.Status != "bogus" {
		t.Errorf("错误应携带非法值，实际 %q", invalid.Status)
	}
	want := "Invalid status 'bogus'. Allowed: active, dormant, debit freeze, credit freeze, total freeze, inactive"
	if invalid.Error() != want {
		t.Errorf("错误文案不符:\n期望 %q\n实际 %q", want, invalid.Error())
	}
}

// 把号段收窄到 1，强制第二次开户持续撞号并在重试耗尽后报错
func TestCreateAccountNumberCollision(t *testing.T) {
	svc := &BankService{numberMin: 10000000, numberSpan: 1, numberAttempts: 5}
	l := newTestLedger(t)
	ctx := context.Background()

	first, err := svc.CreateAccount(ctx, l, "alice", 0, "")
	if err != nil {
		t.Fatalf("首次开户失败: %v", err)
	}
	if first.AccountNumber != "10000000" {
		t.Fatalf("窄号段账号期望 10000000，实际 %s", first.AccountNumber)
	}

	if _, err := svc.CreateAccount(ctx, l, "bob", 0, ""); err == nil {
		t.Fatal("号段耗尽时开户应报错")
	}

	accounts, err := svc.ListAccounts(ctx, l)
	if err != nil {
		t.Fatalf("列账户失败: %v", err)
	}
	if len(accounts) != 1 {
		t.Fatalf("重试失败不应留下半成品账户，实际 %d 个", len(accounts))
	}
}

func TestUpdateAccountStatus(t *testing.T) {
	svc := NewBankService()
	l := newTestLedger(t)
	ctx := context.Background()

	account := mustCreate(t, svc, l, "alice", 0, "")

	updated, err := svc.UpdateAccountStatus(ctx, l, account.ID, "Total Freeze")
	if err != nil {
		t.Fatalf("改状态失败: %v", err)
	}
	if updated.Status != model.StatusTotalFreeze {
		t.Errorf("状态期望 total freeze，实际 %q", updated.Status)
	}

	// 状态集合是平面的：冻结可以直接改回任何状态
	updated, err = svc.UpdateAccountStatus(ctx, l, account.ID, "dormant")
	if err != nil {
		t.Fatalf("二次改状态失败: %v", err)
	}
	if updated.Status != model.StatusDormant {
		t.Errorf("状态期望 dormant，实际 %q", updated.Status)
	}

	if _, err := svc.UpdateAccountStatus(ctx, l, account.ID, "nonsense"); err == nil {
		t.Error("非法状态应报错")
	}
	if _, err := svc.UpdateAccountStatus(ctx, l, 9999, "active"); err != repository.ErrAccountNotFound {
		t.Errorf("不存在的账户期望 ErrAccountNotFound，实际 %v", err)
	}
}

func TestDeleteAccount(t *testing.T) {
	svc := NewBankService()
	l := newTestLedger(t)
	ctx := context.Background()

	account := mustCreate(t, svc, l, "alice", 0, "")

	deleted, err := svc.DeleteAccount(ctx, l, account.ID)
	if err != nil {
		t.Fatalf("删除失败: %v", err)
	}
	if deleted != 1 {
		t.Errorf("受影响行数期望 1，实际 %d", deleted)
	}

	accounts, err := svc.ListAccounts(ctx, l)
	if err != nil {
		t.Fatalf("列账户失败: %v", err)
	}
	if len(accounts) != 0 {
		t.Errorf("软删除后列表应为空，实际 %d 个", len(accounts))
	}

	// 软删除的行仍然存在：重复删除再次覆盖 deleted_at，仍按 1 行计
	if deleted, err = svc.DeleteAccount(ctx, l, account.ID); err != nil || deleted != 1 {
		t.Errorf("重复删除期望 (1, nil)，实际 (%d, %v)", deleted, err)
	}
	// 只有 id 根本不存在时才是 0 行，不报错
	if deleted, err = svc.DeleteAccount(ctx, l, 9999); err != nil || deleted != 0 {
		t.Errorf("删除不存在账户期望 (0, nil)，实际 (%d, %v)", deleted, err)
	}
}

func TestTransferSuccess(t *testing.T) {
	svc := NewBankService()
	l := newTestLedger(t)
	ctx := context.Background()

	alice := mustCreate(t, svc, l, "alice", 100000, "")
	bob := mustCreate(t, svc, l, "bob", 50000, "")

	trans, err := svc.Transfer(ctx, l, alice.ID, bob.ID, 20000, "t1")
	if err != nil {
		t.Fatalf("转账失败: %v", err)
	}
	if trans.Status != model.TransactionStatusSuccess {
		t.Fatalf("状态期望 success，实际 %q", trans.Status)
	}
	if trans.Note == nil || *trans.Note != "t1" {
		t.Errorf("备注期望 t1，实际 %v", trans.Note)
	}
	if trans.FromOwnerName == nil || *trans.FromOwnerName != "alice" {
		t.Errorf("出账户名快照不符: %v", trans.FromOwnerName)
	}
	if trans.ToAccountNumber == nil || *trans.ToAccountNumber != bob.AccountNumber {
		t.Errorf("入账账号快照不符: %v", trans.ToAccountNumber)
	}

	accounts, err := svc.ListAccounts(ctx, l)
	if err != nil {
		t.Fatalf("列账户失败: %v", err)
	}
	balances := map[int64]int64{}
	for _, a := range accounts {
		balances[a.ID] = a.BalanceCents
	}
	if balances[alice.ID] != 80000 {
		t.Errorf("alice 余额期望 80000，实际 %d", balances[alice.ID])
	}
	if balances[bob.ID] != 70000 {
		t.Errorf("bob 余额期望 70000 实际 %d", balances[bob.ID])
	}
}

func TestTransferEmptyNoteStoredAsNull(t *testing.T) {
	svc := NewBankService()
	l := newTestLedger(t)

	alice := mustCreate(t, svc, l, "alice", 1000, "")
	bob := mustCreate(t, svc, l, "bob", 0, "")

	trans, err := svc.Transfer(context.Background(), l, alice.ID, bob.ID, 100, "")
	if err != nil {
		t.Fatalf("转账失败: %v", err)
	}
	if trans.Note != nil {
		t.Errorf("空备注应存 NULL，实际 %q", *trans.Note)
	}
}

func TestTransferBusinessFaults(t *testing.T) {
	svc := NewBankService()
	ctx := context.Background()

	tests := []struct {
		name       string
		fromStatus string
		toStatus   string
		amount     int64
		missing    string // "from" | "to" | ""
		wantNote   func(fromID, toID int64) string
	}{
		{
			name:    "出账账户不存在",
			missing: "from",
			amount:  100,
			wantNote: func(_, _ int64) string {
				return "One or more accounts not found"
			},
		},
		{
			name:    "入账账户不存在",
			missing: "to",
			amount:  100,
			wantNote: func(_, _ int64) string {
				return "One or more accounts not found"
			},
		},
		{
			name:   "金额为零",
			amount: 0,
			wantNote: func(_, _ int64) string {
				return "Amount must be positive"
			},
		},
		{
			name:   "金额为负",
			amount: -500,
			wantNote: func(_, _ int64) string {
				return "Amount must be positive"
			},
		},
		{
			name:       "出账冻结",
			fromStatus: model.StatusDebitFreeze,
			amount:     100,
			wantNote: func(fromID, _ int64) string {
				return fmt.Sprintf("Account %d is on debit freeze and cannot be debited.", fromID)
			},
		},
		{
			name:     "入账冻结",
			toStatus: model.StatusCreditFreeze,
			amount:   100,
			wantNote: func(_, toID int64) string {
				return fmt.Sprintf("Account %d is on credit freeze and cannot be credited.", toID)
			},
		},
		{
			name:       "出账休眠",
			fromStatus: model.StatusDormant,
			amount:     100,
			wantNote: func(fromID, _ int64) string {
				return fmt.Sprintf("Account %d is currently 'dormant' and cannot be debited.", fromID)
			},
		},
		{
			name:     "入账全冻结",
			toStatus: model.StatusTotalFreeze,
			amount:   100,
			wantNote: func(_, toID int64) string {
				return fmt.Sprintf("Account %d is currently 'total freeze' and cannot be credited.", toID)
			},
		},
		{
			name:   "余额不足",
			amount: 99999999,
			wantNote: func(_, _ int64) string {
				return "Insufficient funds"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLedger(t)

			from := mustCreate(t, svc, l, "alice", 1000, tt.fromStatus)
			to := mustCreate(t, svc, l, "bob", 1000, tt.toStatus)

			fromID, toID := from.ID, to.ID
			switch tt.missing {
			case "from":
				fromID = 9999
			case "to":
				toID = 9999
			}

			trans, err := svc.Transfer(ctx, l, fromID, toID, tt.amount, "note")
			if err != nil {
				t.Fatalf("业务失败不应返回 error: %v", err)
			}
			if trans.Status != model.TransactionStatusFailed {
				t.Fatalf("状态期望 failed，实际 %q", trans.Status)
			}
			want := tt.wantNote(fromID, toID)
			if trans.Note == nil || *trans.Note != want {
				t.Errorf("失败说明不符:\n期望 %q\n实际 %v", want, trans.Note)
			}
			if trans.AmountCents != tt.amount {
				t.Errorf("失败流水应记录请求金额 %d，实际 %d", tt.amount, trans.AmountCents)
			}

			// 余额必须原封不动
			accounts, err := svc.ListAccounts(ctx, l)
			if err != nil {
				t.Fatalf("列账户失败: %v", err)
			}
			for _, a := range accounts {
				if a.BalanceCents != 1000 {
					t.Errorf("失败转账不应动余额: 账户 %d 余额 %d", a.ID, a.BalanceCents)
				}
			}
		})
	}
}

// 6x6 状态矩阵：出账侧只有 active/credit freeze 放行，入账侧只有 active/debit freeze 放行
func TestTransferStatusMatrix(t *testing.T) {
	svc := NewBankService()
	ctx := context.Background()

	canDebit := map[string]bool{model.StatusActive: true, model.StatusCreditFreeze: true}
	canCredit := map[string]bool{model.StatusActive: true, model.StatusDebitFreeze: true}

	for _, fromStatus := range model.AllowedStatuses {
		for _, toStatus := range model.AllowedStatuses {
			name := fmt.Sprintf("%s对%s", fromStatus, toStatus)
			t.Run(name, func(t *testing.T) {
				l := newTestLedger(t)
				from := mustCreate(t, svc, l, "alice", 1000, fromStatus)
				to := mustCreate(t, svc, l, "bob", 1000, toStatus)

				trans, err := svc.Transfer(ctx, l, from.ID, to.ID, 100, "")
				if err != nil {
					t.Fatalf("转账不应返回 error: %v", err)
				}

				wantSuccess := canDebit[fromStatus] && canCredit[toStatus]
				gotSuccess := trans.Status == model.TransactionStatusSuccess
				if gotSuccess != wantSuccess {
					t.Errorf("from=%s to=%s 期望 success=%v，实际流水 %q", fromStatus, toStatus, wantSuccess, trans.Status)
				}

				// 出账校验先于入账校验
				if !canDebit[fromStatus] && trans.Note != nil {
					var wantPrefix string
					if fromStatus == model.StatusDebitFreeze {
						wantPrefix = fmt.Sprintf("Account %d is on debit freeze", from.ID)
					} else {
						wantPrefix = fmt.Sprintf("Account %d is currently '%s'", from.ID, fromStatus)
					}
					if len(*trans.Note) < len(wantPrefix) || (*trans.Note)[:len(wantPrefix)] != wantPrefix {
						t.Errorf("失败说明应指向出账账户: %q", *trans.Note)
					}
				}
			})
		}
	}
}

func TestListTransactionsEnrichment(t *testing.T) {
	svc := NewBankService()
	l := newTestLedger(t)
	ctx := context.Background()

	alice := mustCreate(t, svc, l, "alice", 10000, "")
	bob := mustCreate(t, svc, l, "bob", 0, "")

	if _, err := svc.Transfer(ctx, l, alice.ID, bob.ID, 100, "first"); err != nil {
		t.Fatalf("转账失败: %v", err)
	}

	// 在世账户取当前值：改名后列表应显示新户名
	if err := l.DB().Model(&model.Account{}).Where("id = ?", alice.ID).
		Update("owner_name", "alice-renamed").Error; err != nil {
		t.Fatalf("改名失败: %v", err)
	}
	views, err := svc.ListTransactions(ctx, l)
	if err != nil {
		t.Fatalf("列流水失败: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("流水数期望 1，实际 %d", len(views))
	}
	if views[0].FromOwnerName == nil || *views[0].FromOwnerName != "alice-renamed" {
		t.Errorf("在世账户应取当前户名，实际 %v", views[0].FromOwnerName)
	}

	// 软删除不影响解析：JOIN 不过滤 deleted_at，删除后仍取账户行的值
	if _, err := svc.DeleteAccount(ctx, l, alice.ID); err != nil {
		t.Fatalf("删除失败: %v", err)
	}
	views, err = svc.ListTransactions(ctx, l)
	if err != nil {
		t.Fatalf("列流水失败: %v", err)
	}
	if views[0].FromOwnerName == nil || *views[0].FromOwnerName != "alice-renamed" {
		t.Errorf("软删除账户仍应可解析户名，实际 %v", views[0].FromOwnerName)
	}

	// 账户行彻底消失时回退流水快照
	if err := l.DB().Exec(`DELETE FROM accounts WHERE id = ?`, alice.ID).Error; err != nil {
		t.Fatalf("物理删除失败: %v", err)
	}
	views, err = svc.ListTransactions(ctx, l)
	if err != nil {
		t.Fatalf("列流水失败: %v", err)
	}
	if views[0].FromOwnerName == nil || *views[0].FromOwnerName != "alice" {
		t.Errorf("应回退到交易时刻的快照 alice，实际 %v", views[0].FromOwnerName)
	}
}

func TestListTransactionsOrder(t *testing.T) {
	svc := NewBankService()
	l := newTestLedger(t)
	ctx := context.Background()

	alice := mustCreate(t, svc, l, "alice", 10000, "")
	bob := mustCreate(t, svc, l, "bob", 0, "")

	for i := 0; i < 3; i++ {
		if _, err := svc.Transfer(ctx, l, alice.ID, bob.ID, 100, fmt.Sprintf("t%d", i)); err != nil {
			t.Fatalf("转账失败: %v", err)
		}
	}

	views, err := svc.ListTransactions(ctx, l)
	if err != nil {
		t.Fatalf("列流水失败: %v", err)
	}
	if len(views) != 3 {
		t.Fatalf("流水数期望 3，实际 %d", len(views))
	}
	// 倒序：最新的在前（同秒落库时按 id 倒序兜底）
	for i := 1; i < len(views); i++ {
		if views[i-1].ID < views[i].ID {
			t.Errorf("流水应按时间倒序: %d 在 %d 之前", views[i-1].ID, views[i].ID)
		}
	}
}

// 资金守恒：成功与失败混杂的一串转账后，总余额不变
func TestTransferConservation(t *testing.T) {
	svc := NewBankService()
	l := newTestLedger(t)
	ctx := context.Background()

	alice := mustCreate(t, svc, l, "alice", 5000, "")
	bob := mustCreate(t, svc, l, "bob", 3000, "")
	carol := mustCreate(t, svc, l, "carol", 0, model.StatusTotalFreeze)

	moves := []struct {
		from, to int64
		amount   int64
	}{
		{alice.ID, bob.ID, 1000},
		{bob.ID, alice.ID, 500},
		{alice.ID, carol.ID, 700}, // 入账全冻结，失败
		{bob.ID, alice.ID, 99999}, // 余额不足，失败
		{alice.ID, bob.ID, 250},
	}
	for _, mv := range moves {
		if _, err := svc.Transfer(ctx, l, mv.from, mv.to, mv.amount, ""); err != nil {
			t.Fatalf("转账不应返回 error: %v", err)
		}
	}

	accounts, err := svc.ListAccounts(ctx, l)
	if err != nil {
		t.Fatalf("列账户失败: %v", err)
	}
	var total int64
	for _, a := range accounts {
		if a.BalanceCents < 0 {
			t.Errorf("账户 %d 余额为负: %d", a.ID, a.BalanceCents)
		}
		total += a.BalanceCents
	}
	if total != 8000 {
		t.Errorf("总余额应守恒为 8000，实际 %d", total)
	}

	views, err := svc.ListTransactions(ctx, l)
	if err != nil {
		t.Fatalf("列流水失败: %v", err)
	}
	if len(views) != len(moves) {
		t.Errorf("每次转账都应留一行流水: 期望 %d，实际 %d", len(moves), len(views))
	}
}

// 引擎的读操作同样持有账本锁：句柄关闭（回收/销毁）不可能落在查询执行中途
func TestReadOpsHoldLedgerLock(t *testing.T) {
	svc := NewBankService()
	l := newTestLedger(t)
	ctx := context.Background()

	mustCreate(t, svc, l, "alice", 1000, "")

	ops := []struct {
		name string
		run  func() error
	}{
		{"ListAccounts", func() error {
			_, err := svc.ListAccounts(ctx, l)
			return err
		}},
		{"ListTransactions", func() error {
			_, err := svc.ListTransactions(ctx, l)
			return err
		}},
	}
	for _, op := range ops {
		t.Run(op.name, func(t *testing.T) {
			l.Lock()
			done := make(chan error, 1)
			go func() {
				done <- op.run()
			}()

			select {
			case <-done:
				t.Fatal("操作不应在账本锁持有期间完成")
			case <-time.After(50 * time.Millisecond):
			}

			l.Unlock()
			select {
			case err := <-done:
				if err != nil {
					t.Fatalf("操作失败: %v", err)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("操作超时")
			}
		})
	}
}

func TestEnsureSeeded(t *testing.T) {
	svc := NewBankService()
	l := newTestLedger(t)
	ctx := context.Background()

	templates := []*model.BankTemplate{
		{OwnerName: "Demo Alice", BalanceCents: 100000, Status: "active"},
		{OwnerName: "Demo Bob", BalanceCents: 50000, Status: "dormant"},
	}

	seeded, err := svc.EnsureSeeded(ctx, l, templates)
	if err != nil {
		t.Fatalf("播种失败: %v", err)
	}
	if !seeded {
		t.Error("空账本应发生播种")
	}

	accounts, err := svc.ListAccounts(ctx, l)
	if err != nil {
		t.Fatalf("列账户失败: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("种子账户数期望 2，实际 %d", len(accounts))
	}
	if accounts[1].Status != model.StatusDormant {
		t.Errorf("模板状态应生效，实际 %q", accounts[1].Status)
	}

	// 二次调用不重复播种
	seeded, err = svc.EnsureSeeded(ctx, l, templates)
	if err != nil {
		t.Fatalf("二次播种失败: %v", err)
	}
	if seeded {
		t.Error("非空账本不应再播种")
	}
}
