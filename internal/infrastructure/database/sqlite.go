package database

import (
	"log"
	"os"
	"path/filepath"

	"labsandbox/internal/config"
	"labsandbox/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitSQLite 初始化应用库（用户/邀请/测试人员/模板/审计等跨会话数据）。
// 每会话账本库不走这里，由 sandbox.Manager 单独管理
func InitSQLite(cfg *config.DatabaseConfig) *gorm.DB {
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("创建数据目录失败: %v", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		log.Fatalf("打开应用库失败: %v", err)
	}

	// SQLite 单写者，连接池收到 1 避免 database is locked
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("获取底层 DB 失败: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	// 自动迁移表结构
	err = db.AutoMigrate(
		&model.User{},
		&model.Invite{},
		&model.Tester{},
		&model.Attempt{},
		&model.BankTemplate{},
		&model.AuditLog{},
		&model.OutboxMessage{},
	)
	if err != nil {
		log.Fatalf("自动迁移表结构失败: %v", err)
	}

	DB = db
	log.Printf("应用库就绪: %s", cfg.Path)
	return db
}
