package db

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/syuchan1005/CardNotifier/pkg/metrics"
	"github.com/syuchan1005/CardNotifier/pkg/otel"
)

type queryStartKey struct{}

type queryStart struct {
	at        time.Time
	sql       string
	operation string
	span      trace.Span
}

// QueryTracer 实现 pgx.QueryTracer：每条语句一个 span、一次延迟观测，超过阈值记录慢查询
type QueryTracer struct {
	logger        *zap.Logger
	slowThreshold time.Duration
	now           func() time.Time
}

// NewQueryTracer 创建 QueryTracer，阈值为 0 时默认 100ms
func NewQueryTracer(logger *zap.Logger, slowThreshold time.Duration) *QueryTracer {
	if slowThreshold == 0 {
		slowThreshold = 100 * time.Millisecond
	}
	return &QueryTracer{
		logger:        logger,
		slowThreshold: slowThreshold,
		now:           time.Now,
	}
}

// TraceQueryStart 查询开始时的钩子
func (t *QueryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	op := Operation(data.SQL)
	ctx, span := otel.DBSpan(ctx, op, data.SQL)
	return context.WithValue(ctx, queryStartKey{}, queryStart{
		at:        t.now(),
		sql:       data.SQL,
		operation: op,
		span:      span,
	})
}

// TraceQueryEnd 查询结束时的钩子
func (t *QueryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(queryStartKey{}).(queryStart)
	if !ok {
		return
	}
	otel.WrapDBError(start.span, data.Err)
	start.span.End()

	duration := t.now().Sub(start.at)
	metrics.RecordDBQueryDuration(start.operation, duration)

	if duration > t.slowThreshold {
		// 截断 SQL 语句（避免日志过长）
		sql := start.sql
		if len(sql) > 200 {
			sql = sql[:200] + "..."
		}
		t.logger.Warn("slow-query",
			zap.String("sql", sql),
			zap.Duration("took", duration),
			zap.String("command_tag", data.CommandTag.String()),
		)
		metrics.IncrementSlowQuery(start.operation)
	}
}

// Operation 返回 SQL 的首个关键字（小写），用作指标标签
func Operation(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	return strings.ToLower(fields[0])
}
