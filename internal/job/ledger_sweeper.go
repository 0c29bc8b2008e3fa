package job

import (
	"context"
	"log"
	"time"

	"labsandbox/internal/config"
	"labsandbox/internal/sandbox"
)

// LedgerSweeper 周期性关闭空闲的账本句柄。
// 只回收句柄不删文件：被回收的会话下次访问时账本透明重开，数据不丢。
// sandbox.idle_ttl_minutes=0 时任务不做任何事
type LedgerSweeper struct {
	boxes    *sandbox.Manager
	cfg      *config.Config
	stopCh   chan struct{}
	interval time.Duration
}

func NewLedgerSweeper(boxes *sandbox.Manager, cfg *config.Config) *LedgerSweeper {
	interval := time.Duration(cfg.Sandbox.SweepIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	return &LedgerSweeper{
		boxes:    boxes,
		cfg:      cfg,
		stopCh:   make(chan struct{}),
		interval: interval,
	}
}

func (j *LedgerSweeper) Start(ctx context.Context) {
	log.Println("[LedgerSweeper] 空闲账本回收任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[LedgerSweeper] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[LedgerSweeper] 任务停止")
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *LedgerSweeper) Stop() {
	close(j.stopCh)
}

func (j *LedgerSweeper) sweep() {
	ttl := j.cfg.Sandbox.IdleTTL()
	if ttl <= 0 {
		return
	}

	if evicted := j.boxes.EvictIdle(ttl); evicted > 0 {
		log.Printf("[LedgerSweeper] 回收空闲账本句柄 %d 个，剩余 %d 个", evicted, j.boxes.Len())
	}
}
