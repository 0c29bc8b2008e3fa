package mailer

import (
	"fmt"
	"log"
	"net/smtp"

	"labsandbox/internal/config"
)

// Mailer 魔法链接邮件发送。未配置 SMTP 主机时所有发送直接返回 false，
// 调用方改为把链接放进响应体
type Mailer struct {
	cfg *config.SMTPConfig
}

func New(cfg *config.SMTPConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

// Enabled SMTP 是否已配置
func (m *Mailer) Enabled() bool {
	return m.cfg.Host != ""
}

// SendMagicLink 发送登录魔法链接，返回是否发送成功
func (m *Mailer) SendMagicLink(to, link string) bool {
	if !m.Enabled() {
		return false
	}

	from := m.cfg.From
	if from == "" {
		from = "no-reply@test-env.local"
	}

	msg := []byte(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: Your magic link\r\nContent-Type: text/plain; charset=utf-8\r\n\r\nOpen this link to sign in: %s\r\n",
		from, to, link,
	))

	var auth smtp.Auth
	if m.cfg.User != "" {
		auth = smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	if err := smtp.SendMail(addr, auth, from, []string{to}, msg); err != nil {
		log.Printf("[Mailer] 发送魔法链接失败: to=%s, err=%v", to, err)
		return false
	}
	return true
}
