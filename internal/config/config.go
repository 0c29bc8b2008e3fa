package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Sandbox  SandboxConfig  `mapstructure:"sandbox"`
	Session  SessionConfig  `mapstructure:"session"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port    int    `mapstructure:"port"`
	BaseURL string `mapstructure:"base_url"` // 生成魔法链接用的外部地址，空则按请求 Host 推导
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"` // 应用库 SQLite 文件路径
}

type SandboxConfig struct {
	Dir                  string `mapstructure:"dir"`                    // 每会话账本库的存放目录
	IdleTTLMinutes       int    `mapstructure:"idle_ttl_minutes"`       // 空闲句柄回收阈值，0 表示不回收
	SweepIntervalSeconds int    `mapstructure:"sweep_interval_seconds"` // 回收任务轮询间隔
}

// IdleTTL 空闲回收阈值；未配置时返回 0（不回收）
func (c *SandboxConfig) IdleTTL() time.Duration {
	return time.Duration(c.IdleTTLMinutes) * time.Minute
}

type SessionConfig struct {
	CookieName string `mapstructure:"cookie_name"`
	TTLHours   int    `mapstructure:"ttl_hours"`
	Store      string `mapstructure:"store"` // memory | redis
}

func (c *SessionConfig) TTL() time.Duration {
	if c.TTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.TTLHours) * time.Hour
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	AuditEvent string `mapstructure:"audit_event"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"` // 为空则不发邮件，链接直接返回给调用方
	Port     int    `mapstructure:"port"`
	From     string `mapstructure:"from"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

type AdminConfig struct {
	Password string `mapstructure:"password"`
}

type BusinessConfig struct {
	MaxRetryCount int `mapstructure:"max_retry_count"` // 发件箱消息最大重试次数
}

var GlobalConfig *Config

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	GlobalConfig = config
	return config
}
