package config

import (
	"os"
	"strconv"
	"time"
)

// DBConfig 数据库配置
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int32  `yaml:"max_conns"`
	// 慢查询阈值，超过则记录 warn 日志和指标
	SlowQueryThreshold time.Duration `yaml:"slow_query_threshold"`
}

// MQConfig 消息队列配置
type MQConfig struct {
	URL      string `yaml:"url"`
	Queue    string `yaml:"queue"`
	Prefetch int    `yaml:"prefetch"`
	// MaxRetries 可重试失败的最大重新入队次数，超过后进入 DLQ
	MaxRetries int           `yaml:"max_retries"`
	RetryTTL   time.Duration `yaml:"retry_ttl"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	DedupTTL time.Duration `yaml:"dedup_ttl"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port        string `yaml:"port"`
	MaxBodySize int64  `yaml:"max_body_size"`
}

// LLMConfig 结构化抽取所用的 LLM 配置（OpenAI 兼容接口）
type LLMConfig struct {
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
	Timezone string        `yaml:"timezone"`
}

// VAPIDConfig Web Push 签名身份
type VAPIDConfig struct {
	PublicKey  string        `yaml:"public_key"`
	PrivateKey string        `yaml:"private_key"`
	Subject    string        `yaml:"subject"`
	TTL        time.Duration `yaml:"ttl"`
}

// CloudflareConfig 邮件路由规则的远端配置
type CloudflareConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIToken    string `yaml:"api_token"`
	ZoneID      string `yaml:"zone_id"`
	AliasDomain string `yaml:"alias_domain"`
	ActionType  string `yaml:"action_type"`
	ActionValue string `yaml:"action_value"`
}

// OTelConfig OpenTelemetry 配置
type OTelConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Endpoint       string `yaml:"endpoint"`
	ServiceVersion string `yaml:"service_version"`
}

// IngestConfig 管道本身的参数
type IngestConfig struct {
	ForwardingHintHeader string        `yaml:"forwarding_hint_header"`
	RetentionHorizon     time.Duration `yaml:"retention_horizon"`
}

// OverrideDBFromEnv 从环境变量覆盖数据库配置
func OverrideDBFromEnv(cfg *DBConfig) {
	setString(&cfg.Host, "DB_HOST")
	setInt(&cfg.Port, "DB_PORT")
	setString(&cfg.User, "DB_USER")
	setString(&cfg.Password, "DB_PASSWORD")
	setString(&cfg.Name, "DB_NAME")
	setString(&cfg.SSLMode, "DB_SSLMODE")
}

// OverrideMQFromEnv 从环境变量覆盖MQ配置
func OverrideMQFromEnv(cfg *MQConfig) {
	setString(&cfg.URL, "MQ_URL")
	setString(&cfg.Queue, "MQ_QUEUE")
	setInt(&cfg.MaxRetries, "MQ_MAX_RETRIES")
}

// OverrideRedisFromEnv 从环境变量覆盖Redis配置
func OverrideRedisFromEnv(cfg *RedisConfig) {
	setString(&cfg.Addr, "REDIS_ADDR")
	setString(&cfg.Password, "REDIS_PASSWORD")
	setInt(&cfg.DB, "REDIS_DB")
}

// OverrideServerFromEnv 从环境变量覆盖服务器配置
func OverrideServerFromEnv(cfg *ServerConfig) {
	setString(&cfg.Port, "SERVER_PORT")
}

// OverrideLLMFromEnv 从环境变量覆盖LLM配置
func OverrideLLMFromEnv(cfg *LLMConfig) {
	setString(&cfg.BaseURL, "LLM_BASE_URL")
	setString(&cfg.APIKey, "LLM_API_KEY")
	setString(&cfg.Model, "LLM_MODEL")
}

// OverrideVAPIDFromEnv 从环境变量覆盖VAPID密钥
func OverrideVAPIDFromEnv(cfg *VAPIDConfig) {
	setString(&cfg.PublicKey, "WEB_PUSH_PUBLIC_KEY")
	setString(&cfg.PrivateKey, "WEB_PUSH_PRIVATE_KEY")
	setString(&cfg.Subject, "WEB_PUSH_SUBJECT")
}

// OverrideCloudflareFromEnv 从环境变量覆盖Cloudflare配置
func OverrideCloudflareFromEnv(cfg *CloudflareConfig) {
	setString(&cfg.APIToken, "CLOUDFLARE_API_TOKEN")
	setString(&cfg.ZoneID, "CLOUDFLARE_ZONE_ID")
	setString(&cfg.AliasDomain, "ALIAS_DOMAIN")
}

// OverrideOTelFromEnv 从环境变量覆盖OTel配置
func OverrideOTelFromEnv(cfg *OTelConfig) {
	setString(&cfg.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Enabled = b
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
