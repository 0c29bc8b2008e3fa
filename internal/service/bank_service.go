package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"

	"labsandbox/internal/model"
	"labsandbox/internal/repository"
	"labsandbox/internal/sandbox"

	"gorm.io/gorm"
)

// ============================================================================
// 银行沙盒核心：账户与转账业务规则
// ============================================================================
//
// 【关键点】转账是整个沙盒最核心的操作，需要保证：
// 1. 原子性：余额检查、双边余额变更、流水写入在同一数据库事务内完成
// 2. 串行化：同一账本上的转账通过账本互斥锁排队，余额检查永远基于最近一次已提交的转账
// 3. 业务失败不是异常：校验不通过时回滚余额变更，落一行 status=failed 的流水并正常返回；
//    只有存储层意外错误才作为 error 向上传播
// ============================================================================

// 账号生成参数：8 位数字号段 [10000000, 99999999]，唯一冲突时换号重试
const (
	accountNumberMin      = 10000000
	accountNumberSpan     = 90000000
	accountNumberAttempts = 5
)

// errBusinessFault 事务内部哨兵：触发回滚并走失败流水路径，不外泄
var errBusinessFault = errors.New("transfer business fault")

type faultKind int

const (
	faultAccountNotFound faultKind = iota + 1
	faultAmountNotPositive
	faultDebitBlocked
	faultCreditBlocked
	faultInsufficientFunds
)

// transferFault 转账业务失败的封闭枚举，在原子块顶部逐项判定。
// 不做错误文案的字符串匹配：kind 即事实，文案只在落库时合成
type transferFault struct {
	kind      faultKind
	accountID int64  // 被状态阻断的账户
	status    string // 阻断时刻该账户的状态
}

// note 合成写入失败流水的可读说明
func (f *transferFault) note() string {
	switch f.kind {
	case faultAccountNotFound:
		return "One or more accounts not found"
	case faultAmountNotPositive:
		return "Amount must be positive"
	case faultInsufficientFunds:
		return "Insufficient funds"
	case faultDebitBlocked:
		switch f.status {
		case model.StatusDebitFreeze:
			return fmt.Sprintf("Account %d is on debit freeze and cannot be debited.", f.accountID)
		case model.StatusCreditFreeze:
			return fmt.Sprintf("Account %d is on credit freeze and cannot be debited.", f.accountID)
		default:
			return fmt.Sprintf("Account %d is currently '%s' and cannot be debited.", f.accountID, f.status)
		}
	case faultCreditBlocked:
		switch f.status {
		case model.StatusCreditFreeze:
			return fmt.Sprintf("Account %d is on credit freeze and cannot be credited.", f.accountID)
		case model.StatusDebitFreeze:
			return fmt.Sprintf("Account %d is on debit freeze and cannot be credited.", f.accountID)
		default:
			return fmt.Sprintf("Account %d is currently '%s' and cannot be credited.", f.accountID, f.status)
		}
	}
	return "Transfer failed"
}

// BankService 银行沙盒业务。自身无状态，账本句柄由 sandbox.Manager 按会话分发，
// 每次调用只在当次操作内使用句柄
type BankService struct {
	// 账号号段与重试次数收成字段，测试可注入窄号段强制碰撞
	numberMin      int64
	numberSpan     int64
	numberAttempts int
}

func NewBankService() *BankService {
	return &BankService{
		numberMin:      accountNumberMin,
		numberSpan:     accountNumberSpan,
		numberAttempts: accountNumberAttempts,
	}
}

// 所有引擎操作都持有账本互斥锁：除了转账之间的串行化，
// 这也保证空闲回收（EvictIdle）不会在任一查询执行中途关闭句柄

// ListAccounts 返回未软删除的账户，按 id 升序
func (s *BankService) ListAccounts(ctx context.Context, ledger *sandbox.Ledger) ([]*model.Account, error) {
	ledger.Lock()
	defer ledger.Unlock()
	return s.listAccounts(ctx, ledger)
}

func (s *BankService) listAccounts(ctx context.Context, ledger *sandbox.Ledger) ([]*model.Account, error) {
	return repository.NewAccountRepository(ledger.DB()).ListActive(ctx)
}

// CreateAccount 创建账户：校验状态合法性，随机生成 8 位账号，
// 唯一冲突时换号重试，重试耗尽后原样传播存储错误
func (s *BankService) CreateAccount(ctx context.Context, ledger *sandbox.Ledger, ownerName string, initialCents int64, status string) (*model.Account, error) {
	ledger.Lock()
	defer ledger.Unlock()
	return s.createAccount(ctx, ledger, ownerName, initialCents, status)
}

func (s *BankService) createAccount(ctx context.Context, ledger *sandbox.Ledger, ownerName string, initialCents int64, status string) (*model.Account, error) {
	normalized, err := model.NormalizeStatus(status)
	if err != nil {
		return nil, err
	}

	accountRepo := repository.NewAccountRepository(ledger.DB())

	var lastErr error
	for i := 0; i < s.numberAttempts; i++ {
		account := &model.Account{
			OwnerName:     ownerName,
			AccountNumber: strconv.FormatInt(s.numberMin+rand.Int63n(s.numberSpan), 10),
			Status:        normalized,
			BalanceCents:  initialCents,
		}
		if err := accountRepo.Create(ctx, account); err != nil {
			// 账号唯一约束冲突：换号重试
			lastErr = err
			continue
		}
		return account, nil
	}
	return nil, lastErr
}

// UpdateAccountStatus 无条件覆盖状态并返回更新后的账户。
// 状态集合是平面的：不设转移表，真正的规则在转账时刻执行
func (s *BankService) UpdateAccountStatus(ctx context.Context, ledger *sandbox.Ledger, accountID int64, status string) (*model.Account, error) {
	normalized, err := model.NormalizeStatus(status)
	if err != nil {
		return nil, err
	}

	ledger.Lock()
	defer ledger.Unlock()

	accountRepo := repository.NewAccountRepository(ledger.DB())
	if err := accountRepo.UpdateStatus(ctx, accountID, normalized); err != nil {
		return nil, err
	}
	return accountRepo.GetByID(ctx, nil, accountID)
}

// DeleteAccount 软删除账户，返回受影响行数（0 或 1）。
// id 不存在时返回 0 而非错误；历史流水一概不动
func (s *BankService) DeleteAccount(ctx context.Context, ledger *sandbox.Ledger, accountID int64) (int64, error) {
	ledger.Lock()
	defer ledger.Unlock()
	return repository.NewAccountRepository(ledger.DB()).SoftDelete(ctx, accountID)
}

// ListTransactions 按创建时间倒序返回全部流水（含失败流水），
// 户名与账号双源解析：在世账户取当前值，否则回退流水快照
func (s *BankService) ListTransactions(ctx context.Context, ledger *sandbox.Ledger) ([]*model.TransactionView, error) {
	ledger.Lock()
	defer ledger.Unlock()
	return repository.NewTransactionRepository(ledger.DB()).ListEnriched(ctx)
}

// Transfer 执行一次转账尝试，总是返回一行流水：
// 成功时 status=success 携带调用方备注，业务失败时 status=failed 携带失败说明。
// 只有存储层意外错误才返回 error
func (s *BankService) Transfer(ctx context.Context, ledger *sandbox.Ledger, fromID, toID int64, amountCents int64, note string) (*model.Transaction, error) {
	// 串行化：同一账本上的转账互斥，也与 Destroy/EvictIdle 互斥
	ledger.Lock()
	defer ledger.Unlock()

	db := ledger.DB()
	accountRepo := repository.NewAccountRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)

	var (
		fault  *transferFault
		from   *model.Account
		to     *model.Account
		result *model.Transaction
	)

	txErr := db.Transaction(func(tx *gorm.DB) error {
		var err error
		from, err = accountRepo.GetByID(ctx, tx, fromID)
		if err != nil && !errors.Is(err, repository.ErrAccountNotFound) {
			return err
		}
		to, err = accountRepo.GetByID(ctx, tx, toID)
		if err != nil && !errors.Is(err, repository.ErrAccountNotFound) {
			return err
		}

		// 业务校验：任一不通过都回滚并走失败流水路径
		switch {
		case from == nil || to == nil:
			fault = &transferFault{kind: faultAccountNotFound}
		case amountCents <= 0:
			fault = &transferFault{kind: faultAmountNotPositive}
		case !model.CanDebit(from.Status):
			fault = &transferFault{kind: faultDebitBlocked, accountID: fromID, status: from.Status}
		case !model.CanCredit(to.Status):
			fault = &transferFault{kind: faultCreditBlocked, accountID: toID, status: to.Status}
		case from.BalanceCents < amountCents:
			fault = &transferFault{kind: faultInsufficientFunds}
		}
		if fault != nil {
			return errBusinessFault
		}

		if err := accountRepo.AdjustBalance(ctx, tx, fromID, -amountCents); err != nil {
			return err
		}
		if err := accountRepo.AdjustBalance(ctx, tx, toID, amountCents); err != nil {
			return err
		}

		// 成功流水：冗余快照此刻双方的户名与账号
		result = &model.Transaction{
			FromAccount:       fromID,
			ToAccount:         toID,
			FromAccountNumber: strPtr(from.AccountNumber),
			ToAccountNumber:   strPtr(to.AccountNumber),
			FromOwnerName:     strPtr(from.OwnerName),
			ToOwnerName:       strPtr(to.OwnerName),
			AmountCents:       amountCents,
			Status:            model.TransactionStatusSuccess,
			Note:              optStrPtr(note),
		}
		return transactionRepo.Create(ctx, tx, result)
	})

	if txErr == nil {
		return result, nil
	}
	if !errors.Is(txErr, errBusinessFault) {
		// 存储层意外错误：没有合理的流水能描述"存储本身坏了"，向上传播
		return nil, txErr
	}

	// 业务失败：余额已回滚，落一行 failed 流水并正常返回。
	// 快照尽力而为，账户加载不到时留 NULL
	failNote := fault.note()
	failed := &model.Transaction{
		FromAccount: fromID,
		ToAccount:   toID,
		AmountCents: amountCents,
		Status:      model.TransactionStatusFailed,
		Note:        &failNote,
	}
	if from != nil {
		failed.FromAccountNumber = strPtr(from.AccountNumber)
		failed.FromOwnerName = strPtr(from.OwnerName)
	}
	if to != nil {
		failed.ToAccountNumber = strPtr(to.AccountNumber)
		failed.ToOwnerName = strPtr(to.OwnerName)
	}
	if err := transactionRepo.Create(ctx, nil, failed); err != nil {
		return nil, err
	}
	return failed, nil
}

// EnsureSeeded 账本首次为空时按模板播种账户，返回是否发生了播种。
// 空判断与播种在同一次持锁期间完成，并发首访不会重复播种
func (s *BankService) EnsureSeeded(ctx context.Context, ledger *sandbox.Ledger, templates []*model.BankTemplate) (bool, error) {
	ledger.Lock()
	defer ledger.Unlock()

	accounts, err := s.listAccounts(ctx, ledger)
	if err != nil {
		return false, err
	}
	if len(accounts) > 0 {
		return false, nil
	}
	for _, tpl := range templates {
		if _, err := s.createAccount(ctx, ledger, tpl.OwnerName, tpl.BalanceCents, tpl.Status); err != nil {
			return false, err
		}
	}
	return len(templates) > 0, nil
}

func strPtr(s string) *string {
	return &s
}

// optStrPtr 空串存 NULL
func optStrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
