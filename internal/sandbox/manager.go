package sandbox

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"labsandbox/internal/config"
	"labsandbox/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ============================================================================
// 会话账本管理器
// ============================================================================
//
// 每个会话拥有一个独立的 SQLite 账本文件（session_<id>.db），首次访问时懒创建，
// 重置/登出时整体销毁。管理器是进程内唯一的句柄入口：
//
//	Acquire  -> 取已缓存句柄或打开/建库+迁移后缓存
//	Destroy  -> 关闭句柄、驱逐缓存、删除文件（幂等）
//	EvictIdle -> 只关闭空闲句柄，文件保留，下次 Acquire 透明重开
//
// 【关键点】同一账本上的引擎操作（转账事务与各类查询）、Destroy、EvictIdle
// 通过每账本互斥锁串行化，避免关闭句柄与进行中的任何操作互相竞争。
// ============================================================================

// ErrEmptySessionID 会话标识为空
var ErrEmptySessionID = errors.New("session id required")

// Ledger 单个会话的账本句柄
type Ledger struct {
	sessionID string
	db        *gorm.DB

	// mu 串行化同一账本上的引擎操作与句柄关闭
	mu       sync.Mutex
	lastUsed time.Time // 由 Manager.mu 保护
}

// SessionID 返回该账本所属的会话标识
func (l *Ledger) SessionID() string {
	return l.sessionID
}

// DB 返回底层 gorm 句柄；调用方只在单次操作内使用，不得长期持有
func (l *Ledger) DB() *gorm.DB {
	return l.db
}

// Lock 获取账本互斥锁（引擎操作期间持有）
func (l *Ledger) Lock() {
	l.mu.Lock()
}

// Unlock 释放账本互斥锁
func (l *Ledger) Unlock() {
	l.mu.Unlock()
}

func (l *Ledger) close() {
	if db, err := l.db.DB(); err == nil {
		if err := db.Close(); err != nil {
			log.Printf("[Sandbox] 关闭账本句柄失败: session=%s, err=%v", l.sessionID, err)
		}
	}
}

// Manager 会话标识到账本句柄的进程级映射
type Manager struct {
	mu      sync.Mutex
	ledgers map[string]*Ledger
	dir     string
}

// NewManager 创建账本管理器，dir 为账本文件存放目录
func NewManager(cfg *config.SandboxConfig) *Manager {
	return &Manager{
		ledgers: make(map[string]*Ledger),
		dir:     cfg.Dir,
	}
}

func (m *Manager) ledgerPath(sessionID string) string {
	return filepath.Join(m.dir, fmt.Sprintf("session_%s.db", sessionID))
}

// Acquire 取得会话的账本句柄，首次访问时建库并迁移。
// 同一会话重复调用返回同一句柄（幂等，无二次初始化开销）。
func (m *Manager) Acquire(sessionID string) (*Ledger, error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.ledgers[sessionID]; ok {
		l.lastUsed = time.Now()
		return l, nil
	}

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建账本目录失败: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(m.ledgerPath(sessionID)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("打开账本库失败: %w", err)
	}

	// SQLite 整库单写者，连接池收到 1 避免 database is locked
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(
		&model.Account{},
		&model.Transaction{},
		&model.LoanApplication{},
	); err != nil {
		return nil, fmt.Errorf("账本建表失败: %w", err)
	}

	// 旧账本补齐数据：尽力而为，失败只告警不阻断
	m.backfill(db, sessionID)

	l := &Ledger{
		sessionID: sessionID,
		db:        db,
		lastUsed:  time.Now(),
	}
	m.ledgers[sessionID] = l
	return l, nil
}

// backfill 为缺列的老账本回填数据：
// account_number 缺失时按 10000000+id 确定性生成，status 缺失时置 active，
// 流水上缺失的账号快照从 accounts 表补齐
func (m *Manager) backfill(db *gorm.DB, sessionID string) {
	steps := []struct {
		name string
		sql  string
	}{
		{"回填账号", `UPDATE accounts SET account_number = CAST(10000000 + id AS TEXT) WHERE account_number IS NULL OR account_number = ''`},
		{"回填状态", `UPDATE accounts SET status = 'active' WHERE status IS NULL OR status = ''`},
		{"回填出账账号快照", `UPDATE transactions SET from_account_number = (SELECT account_number FROM accounts WHERE accounts.id = transactions.from_account) WHERE from_account_number IS NULL OR from_account_number = ''`},
		{"回填入账账号快照", `UPDATE transactions SET to_account_number = (SELECT account_number FROM accounts WHERE accounts.id = transactions.to_account) WHERE to_account_number IS NULL OR to_account_number = ''`},
	}
	for _, step := range steps {
		if err := db.Exec(step.sql).Error; err != nil {
			log.Printf("[Sandbox] 账本迁移告警(%s): session=%s, err=%v", step.name, sessionID, err)
		}
	}
}

// Destroy 不可逆地销毁会话账本：关闭并驱逐缓存句柄（若有），再删除文件。
// 账本从未被打开、或已被销毁时调用同样安全（幂等）。
func (m *Manager) Destroy(sessionID string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.ledgers[sessionID]; ok {
		// 等待进行中的工作单元结束后再关闭
		l.mu.Lock()
		l.close()
		l.mu.Unlock()
		delete(m.ledgers, sessionID)
	}

	if err := os.Remove(m.ledgerPath(sessionID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("删除账本文件失败: %w", err)
	}
	return nil
}

// EvictIdle 关闭空闲超过 ttl 的句柄并驱逐缓存，文件保留。
// 返回本次驱逐的句柄数。句柄无上限累积是资源泄漏风险，由后台任务周期调用
func (m *Manager) EvictIdle(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-ttl)
	evicted := 0
	for id, l := range m.ledgers {
		if l.lastUsed.After(cutoff) {
			continue
		}
		l.mu.Lock()
		l.close()
		l.mu.Unlock()
		delete(m.ledgers, id)
		evicted++
	}
	return evicted
}

// Len 当前缓存的句柄数
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ledgers)
}

// Close 进程退出时关闭全部句柄
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, l := range m.ledgers {
		l.mu.Lock()
		l.close()
		l.mu.Unlock()
		delete(m.ledgers, id)
	}
}
