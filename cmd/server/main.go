package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"labsandbox/internal/config"
	"labsandbox/internal/handler"
	"labsandbox/internal/infrastructure/cache"
	"labsandbox/internal/infrastructure/database"
	"labsandbox/internal/infrastructure/mq"
	"labsandbox/internal/job"
	"labsandbox/internal/sandbox"
	"labsandbox/internal/session"
	"labsandbox/pkg/idgen"
)

func main() {
	// 加载配置
	cfg := config.LoadConfig("config/config.yaml")

	// 初始化 ID 生成器（审计事件消息键用）
	idgen.Init(1)

	// 初始化应用库（用户/邀请/审计等全局数据）
	db := database.InitSQLite(&cfg.Database)

	// 会话后端：默认内存，配置 redis 时跨重启保留会话
	var store session.Store
	if cfg.Session.Store == "redis" {
		store = session.NewRedisStore(cache.InitRedis(&cfg.Redis))
	} else {
		store = session.NewMemoryStore()
	}
	sessions := session.NewManager(store, &cfg.Session)

	// 会话账本管理器（每会话一个 SQLite 账本文件）
	boxes := sandbox.NewManager(&cfg.Sandbox)
	defer boxes.Close()

	// Kafka 按需初始化（审计事件投递）
	if cfg.Kafka.Enabled {
		mq.InitKafka(&cfg.Kafka)
		defer mq.CloseKafka()
	}

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动后台任务
	if cfg.Kafka.Enabled {
		outboxSender := job.NewOutboxSender(db, cfg)
		go outboxSender.Start(ctx)
	}

	sweeper := job.NewLedgerSweeper(boxes, cfg)
	go sweeper.Start(ctx)

	// 设置路由
	router := handler.SetupRouter(db, cfg, sessions, boxes)

	// 启动 HTTP 服务
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// 在 goroutine 中启动服务器
	go func() {
		log.Printf("服务启动，监听端口: %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")

	// 取消上下文，停止后台任务
	cancel()

	// 关闭 HTTP 服务（等待最多5秒）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("服务关闭异常: %v", err)
	}

	log.Println("服务已关闭")
}
