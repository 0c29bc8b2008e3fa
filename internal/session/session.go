// Package session 提供 Cookie 会话：浏览器只持有不透明的会话标识，
// 会话数据存在可插拔的后端（内存 / Redis）。
// 会话标识同时是沙盒账本的命名空间键（见 sandbox.Manager）
package session

import (
	"context"
	"time"

	"labsandbox/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	ctxKeyID   = "session_id"
	ctxKeyData = "session_data"
)

// Data 一个会话携带的数据。未登录会话为零值
type Data struct {
	UserID   int64  `json:"user_id,omitempty"`
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	IsAdmin  bool   `json:"is_admin,omitempty"`
}

// LoggedIn 是否已通过魔法链接登录
func (d *Data) LoggedIn() bool {
	return d != nil && d.UserID != 0
}

// DisplayName 友好显示名：优先用户名，否则邮箱 @ 前的本地部分
func (d *Data) DisplayName() string {
	if d == nil {
		return ""
	}
	if d.Username != "" {
		return d.Username
	}
	for i, r := range d.Email {
		if r == '@' {
			return d.Email[:i]
		}
	}
	return d.Email
}

// Store 会话数据后端。Load 未命中时返回 (nil, nil)
type Store interface {
	Load(ctx context.Context, id string) (*Data, error)
	Save(ctx context.Context, id string, data *Data, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

// Manager Cookie 会话管理器
type Manager struct {
	store      Store
	cookieName string
	ttl        time.Duration
}

func NewManager(store Store, cfg *config.SessionConfig) *Manager {
	name := cfg.CookieName
	if name == "" {
		name = "lab_session"
	}
	return &Manager{
		store:      store,
		cookieName: name,
		ttl:        cfg.TTL(),
	}
}

// Middleware 解析会话 Cookie 并把会话标识与数据挂到请求上下文。
// 无 Cookie 时发新标识；后端未命中时保留标识、数据按空会话处理
func (m *Manager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(m.cookieName)
		if err != nil || id == "" {
			id = uuid.NewString()
			m.setCookie(c, id)
		}

		data, err := m.store.Load(c.Request.Context(), id)
		if err != nil || data == nil {
			data = &Data{}
		}

		c.Set(ctxKeyID, id)
		c.Set(ctxKeyData, data)
		c.Next()
	}
}

func (m *Manager) setCookie(c *gin.Context, id string) {
	c.SetCookie(m.cookieName, id, int(m.ttl.Seconds()), "/", "", false, true)
}

// ID 当前请求的会话标识
func ID(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyID); ok {
		return v.(string)
	}
	return ""
}

// Get 当前请求的会话数据（总是非 nil）
func Get(c *gin.Context) *Data {
	if v, ok := c.Get(ctxKeyData); ok {
		return v.(*Data)
	}
	return &Data{}
}

// Save 把当前会话数据持久化到后端（修改数据后调用）
func (m *Manager) Save(c *gin.Context) error {
	return m.store.Save(c.Request.Context(), ID(c), Get(c), m.ttl)
}

// Renew 登录时更换会话标识防止会话固定，返回旧标识供调用方清理旧沙盒。
// 新标识立即写入 Cookie 与请求上下文
func (m *Manager) Renew(c *gin.Context) (string, error) {
	oldID := ID(c)
	if err := m.store.Delete(c.Request.Context(), oldID); err != nil {
		return "", err
	}

	newID := uuid.NewString()
	m.setCookie(c, newID)
	c.Set(ctxKeyID, newID)
	return oldID, m.Save(c)
}

// Destroy 登出：删除后端数据并作废 Cookie，返回被销毁的会话标识
func (m *Manager) Destroy(c *gin.Context) (string, error) {
	id := ID(c)
	if err := m.store.Delete(c.Request.Context(), id); err != nil {
		return "", err
	}
	c.SetCookie(m.cookieName, "", -1, "/", "", false, true)
	c.Set(ctxKeyData, &Data{})
	return id, nil
}
