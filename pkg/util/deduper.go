package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewDeduper creates a deduper; logger may be nil.
func NewDeduper(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

func dedupKey(scope, key string) string {
	return fmt.Sprintf("dedup:%s:%s", scope, key)
}

// Seen reports whether scope + key was already marked as processed.
// When redis is unavailable it returns false so processing goes ahead.
func (d *Deduper) Seen(ctx context.Context, scope, key string) bool {
	k := dedupKey(scope, key)

	n, err := d.rdb.Exists(ctx, k).Result()
	if err != nil {
		// Redis 挂了？当 redis 不可用时，不阻止处理
		d.logger.Warn("Redis dedup check failed, allowing processing",
			zap.String("scope", scope),
			zap.String("key", key),
			zap.Error(err),
		)
		return false
	}

	if n > 0 {
		d.logger.Info("Skipped duplicated event",
			zap.String("scope", scope),
			zap.String("dedup_key", k),
		)
		return true
	}
	return false
}

// Mark records scope + key as processed for the configured TTL. Call it only
// after the work is durable; a crash before Mark leaves the event retryable.
func (d *Deduper) Mark(ctx context.Context, scope, key string) {
	if err := d.rdb.Set(ctx, dedupKey(scope, key), 1, d.ttl).Err(); err != nil {
		d.logger.Warn("Redis dedup mark failed",
			zap.String("scope", scope),
			zap.String("key", key),
			zap.Error(err),
		)
	}
}
