package config

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/syuchan1005/CardNotifier/pkg/config"
)

type Config struct {
	LogLevel   string                  `yaml:"log_level"`
	DB         config.DBConfig         `yaml:"db"`
	MQ         config.MQConfig         `yaml:"mq"`
	Redis      config.RedisConfig      `yaml:"redis"`
	Server     config.ServerConfig     `yaml:"server"`
	LLM        config.LLMConfig        `yaml:"llm"`
	VAPID      config.VAPIDConfig      `yaml:"vapid"`
	Cloudflare config.CloudflareConfig `yaml:"cloudflare"`
	OTel       config.OTelConfig       `yaml:"otel"`
	Ingest     config.IngestConfig     `yaml:"ingest"`
}

// Defaults 返回未配置时使用的值
func Defaults() Config {
	return Config{
		LogLevel: "info",
		DB:       config.DBConfig{Port: 5432, SSLMode: "disable", MaxConns: 10},
		MQ:       config.MQConfig{Queue: "cardnotifier.mail.inbound", Prefetch: 4, MaxRetries: 5, RetryTTL: time.Hour},
		Redis:    config.RedisConfig{DedupTTL: 7 * 24 * time.Hour},
		Server:   config.ServerConfig{Port: "8080", MaxBodySize: 25 << 20},
		LLM: config.LLMConfig{
			BaseURL:  "https://api.openai.com/v1",
			Model:    "gpt-4o-mini",
			Timeout:  60 * time.Second,
			Timezone: "Asia/Tokyo",
		},
		VAPID: config.VAPIDConfig{
			Subject: "mailto:user@example.org",
			TTL:     24 * time.Hour,
		},
		Cloudflare: config.CloudflareConfig{
			BaseURL:    "https://api.cloudflare.com/client/v4",
			ActionType: "worker",
		},
		Ingest: config.IngestConfig{
			ForwardingHintHeader: "X-Forwarded-To",
			RetentionHorizon:     7 * 24 * time.Hour,
		},
	}
}

// Load 使用统一配置中心加载配置，环境变量优先级最高
func Load() (*Config, error) {
	env := config.GetConfigEnv()
	configDir := config.GetEnv("CONFIG_DIR", "config")

	cfgMap, err := config.LoadConfig(env, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg := Defaults()
	if err := config.Decode(cfgMap, "", &cfg); err != nil {
		return nil, err
	}

	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideLLMFromEnv(&cfg.LLM)
	config.OverrideVAPIDFromEnv(&cfg.VAPID)
	config.OverrideCloudflareFromEnv(&cfg.Cloudflare)
	config.OverrideOTelFromEnv(&cfg.OTel)
	cfg.LogLevel = config.GetEnv("LOG_LEVEL", cfg.LogLevel)

	return &cfg, nil
}

// Location 返回解析购买时间所用的时区，无效时回退到 UTC
func (c *Config) Location() *time.Location {
	if c.LLM.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.LLM.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
