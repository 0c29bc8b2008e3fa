package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"labsandbox/internal/config"
	"labsandbox/internal/model"
	"labsandbox/internal/repository"
	"labsandbox/pkg/idgen"

	"gorm.io/gorm"
)

// AuditService 应用级审计：动作落库，可选地经发件箱异步投递到 Kafka。
// 审计行与发件箱行在同一事务内写入，投递由后台任务完成
type AuditService struct {
	db         *gorm.DB
	auditRepo  *repository.AuditRepository
	outboxRepo *repository.OutboxRepository
	cfg        *config.Config
}

func NewAuditService(db *gorm.DB, cfg *config.Config) *AuditService {
	return &AuditService{
		db:         db,
		auditRepo:  repository.NewAuditRepository(db),
		outboxRepo: repository.NewOutboxRepository(db),
		cfg:        cfg,
	}
}

// Log 记录一条审计。审计失败只告警不影响主流程
func (s *AuditService) Log(ctx context.Context, actor, action, details string) {
	entry := &model.AuditLog{
		Actor:   actor,
		Action:  action,
		Details: details,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.auditRepo.Create(ctx, tx, entry); err != nil {
			return err
		}
		if !s.cfg.Kafka.Enabled {
			return nil
		}

		payload, err := json.Marshal(map[string]interface{}{
			"actor":   actor,
			"action":  action,
			"details": details,
			"at":      time.Now().Format(time.RFC3339),
		})
		if err != nil {
			return err
		}
		return s.outboxRepo.Create(ctx, tx, &model.OutboxMessage{
			MessageKey: idgen.GenerateEventNo(),
			Topic:      s.cfg.Kafka.Topic.AuditEvent,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		})
	})
	if err != nil {
		log.Printf("[Audit] 写入审计失败: action=%s, err=%v", action, err)
	}
}

// ListAll 返回全部审计，按时间倒序（管理端 CSV 导出用）
func (s *AuditService) ListAll(ctx context.Context) ([]*model.AuditLog, error) {
	return s.auditRepo.ListAll(ctx)
}
