package sandbox

import (
	"os"
	"testing"
	"time"

	"labsandbox/internal/config"
	"labsandbox/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(&config.SandboxConfig{Dir: t.TempDir()})
	t.Cleanup(m.Close)
	return m
}

func TestAcquireEmptySessionID(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Acquire(""); err != ErrEmptySessionID {
		t.Fatalf("期望 ErrEmptySessionID，实际 %v", err)
	}
}

func TestAcquireIdempotent(t *testing.T) {
	m := newTestManager(t)

	l1, err := m.Acquire("s1")
	if err != nil {
		t.Fatalf("Acquire 失败: %v", err)
	}
	l2, err := m.Acquire("s1")
	if err != nil {
		t.Fatalf("重复 Acquire 失败: %v", err)
	}
	if l1 != l2 {
		t.Fatal("同一会话两次 Acquire 应返回同一句柄")
	}
	if m.Len() != 1 {
		t.Fatalf("句柄数期望 1，实际 %d", m.Len())
	}
}

func TestSessionIsolation(t *testing.T) {
	m := newTestManager(t)

	l1, err := m.Acquire("s1")
	if err != nil {
		t.Fatalf("Acquire s1 失败: %v", err)
	}
	l2, err := m.Acquire("s2")
	if err != nil {
		t.Fatalf("Acquire s2 失败: %v", err)
	}

	if err := l1.DB().Create(&model.Account{OwnerName: "alice"}).Error; err != nil {
		t.Fatalf("写入 s1 失败: %v", err)
	}

	var count int64
	if err := l2.DB().Model(&model.Account{}).Count(&count).Error; err != nil {
		t.Fatalf("统计 s2 失败: %v", err)
	}
	if count != 0 {
		t.Fatalf("s2 不应看到 s1 的账户，实际 %d 行", count)
	}
}

func TestDestroyRemovesDataAndIsIdempotent(t *testing.T) {
	m := newTestManager(t)

	l, err := m.Acquire("s1")
	if err != nil {
		t.Fatalf("Acquire 失败: %v", err)
	}
	if err := l.DB().Create(&model.Account{OwnerName: "alice", BalanceCents: 100}).Error; err != nil {
		t.Fatalf("写入失败: %v", err)
	}

	path := m.ledgerPath("s1")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("账本文件应存在: %v", err)
	}

	if err := m.Destroy("s1"); err != nil {
		t.Fatalf("Destroy 失败: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("Destroy 后账本文件应被删除")
	}
	if m.Len() != 0 {
		t.Fatalf("Destroy 后句柄数期望 0，实际 %d", m.Len())
	}

	// 重复销毁、销毁从未打开过的会话都应无害
	if err := m.Destroy("s1"); err != nil {
		t.Fatalf("重复 Destroy 应幂等: %v", err)
	}
	if err := m.Destroy("never-opened"); err != nil {
		t.Fatalf("销毁未打开过的会话应幂等: %v", err)
	}

	// 销毁后重新获取是一个全新账本
	l2, err := m.Acquire("s1")
	if err != nil {
		t.Fatalf("重新 Acquire 失败: %v", err)
	}
	var count int64
	if err := l2.DB().Model(&model.Account{}).Count(&count).Error; err != nil {
		t.Fatalf("统计失败: %v", err)
	}
	if count != 0 {
		t.Fatalf("销毁后的新账本应为空，实际 %d 行", count)
	}
}

func TestEvictIdleKeepsFile(t *testing.T) {
	m := newTestManager(t)

	l, err := m.Acquire("s1")
	if err != nil {
		t.Fatalf("Acquire 失败: %v", err)
	}
	if err := l.DB().Create(&model.Account{OwnerName: "alice", BalanceCents: 500}).Error; err != nil {
		t.Fatalf("写入失败: %v", err)
	}

	// 句柄已空闲足够久
	m.mu.Lock()
	m.ledgers["s1"].lastUsed = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	if evicted := m.EvictIdle(30 * time.Minute); evicted != 1 {
		t.Fatalf("期望回收 1 个句柄，实际 %d", evicted)
	}
	if m.Len() != 0 {
		t.Fatalf("回收后句柄数期望 0，实际 %d", m.Len())
	}
	if _, err := os.Stat(m.ledgerPath("s1")); err != nil {
		t.Fatalf("回收只关句柄，文件应保留: %v", err)
	}

	// 重新获取后数据还在
	l2, err := m.Acquire("s1")
	if err != nil {
		t.Fatalf("重新 Acquire 失败: %v", err)
	}
	var account model.Account
	if err := l2.DB().First(&account).Error; err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	if account.OwnerName != "alice" || account.BalanceCents != 500 {
		t.Fatalf("回收重开后数据不符: %+v", account)
	}
}

func TestEvictIdleSkipsActive(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Acquire("s1"); err != nil {
		t.Fatalf("Acquire 失败: %v", err)
	}
	if evicted := m.EvictIdle(30 * time.Minute); evicted != 0 {
		t.Fatalf("刚使用过的句柄不应被回收，实际回收 %d", evicted)
	}
	if evicted := m.EvictIdle(0); evicted != 0 {
		t.Fatalf("ttl=0 应禁用回收，实际回收 %d", evicted)
	}
}

// 模拟旧版账本：accounts 缺账号与状态、流水缺账号快照，
// Acquire 时应确定性回填
func TestAcquireBackfillsLegacyLedger(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(&config.SandboxConfig{Dir: dir})
	t.Cleanup(m.Close)

	db, err := gorm.Open(sqlite.Open(m.ledgerPath("legacy")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("建旧库失败: %v", err)
	}
	if err := db.AutoMigrate(&model.Account{}, &model.Transaction{}); err != nil {
		t.Fatalf("旧库建表失败: %v", err)
	}
	mustExec := func(sql string, args ...interface{}) {
		t.Helper()
		if err := db.Exec(sql, args...).Error; err != nil {
			t.Fatalf("执行 %q 失败: %v", sql, err)
		}
	}
	mustExec(`INSERT INTO accounts (id, owner_name, account_number, status, balance_cents) VALUES (1, 'alice', NULL, '', 1000)`)
	mustExec(`INSERT INTO accounts (id, owner_name, account_number, status, balance_cents) VALUES (2, 'bob', NULL, '', 2000)`)
	mustExec(`INSERT INTO transactions (from_account, to_account, amount_cents, status) VALUES (1, 2, 300, 'success')`)
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	l, err := m.Acquire("legacy")
	if err != nil {
		t.Fatalf("Acquire 失败: %v", err)
	}

	var accounts []*model.Account
	if err := l.DB().Order("id ASC").Find(&accounts).Error; err != nil {
		t.Fatalf("读账户失败: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("账户数期望 2，实际 %d", len(accounts))
	}
	for _, a := range accounts {
		wantNumber := map[int64]string{1: "10000001", 2: "10000002"}[a.ID]
		if a.AccountNumber != wantNumber {
			t.Errorf("账户 %d 回填账号期望 %s，实际 %q", a.ID, wantNumber, a.AccountNumber)
		}
		if a.Status != model.StatusActive {
			t.Errorf("账户 %d 回填状态期望 active，实际 %q", a.ID, a.Status)
		}
	}

	var trans model.Transaction
	if err := l.DB().First(&trans).Error; err != nil {
		t.Fatalf("读流水失败: %v", err)
	}
	if trans.FromAccountNumber == nil || *trans.FromAccountNumber != "10000001" {
		t.Errorf("出账账号快照回填不符: %v", trans.FromAccountNumber)
	}
	if trans.ToAccountNumber == nil || *trans.ToAccountNumber != "10000002" {
		t.Errorf("入账账号快照回填不符: %v", trans.ToAccountNumber)
	}
}

func TestLedgerLockSerializesWithDestroy(t *testing.T) {
	m := newTestManager(t)

	l, err := m.Acquire("s1")
	if err != nil {
		t.Fatalf("Acquire 失败: %v", err)
	}

	l.Lock()
	done := make(chan error, 1)
	go func() {
		done <- m.Destroy("s1")
	}()

	select {
	case <-done:
		t.Fatal("Destroy 不应在账本锁持有期间完成")
	case <-time.After(50 * time.Millisecond):
	}

	l.Unlock()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Destroy 失败: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Destroy 超时")
	}
}
