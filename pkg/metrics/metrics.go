package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	// LLM 抽取调用延迟（毫秒）
	LLMCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_call_latency_ms",
			Help:    "Structured extraction call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10), // 100ms to ~100s
		},
		[]string{"model", "status"},
	)

	// 数据库查询延迟（秒）
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation"},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_total",
			Help: "Total number of queries slower than the configured threshold",
		},
		[]string{"operation"},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// 邮件摄取结果计数
	IngestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_ingest_total",
			Help: "Total number of inbound messages by pipeline outcome",
		},
		[]string{"outcome"}, // outcome: processed, duplicate, no_hint, no_owner, persist_failed, malformed
	)

	// 交易抽取结果计数
	ExtractionCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transaction_extraction_total",
			Help: "Total number of extraction attempts by result",
		},
		[]string{"result"}, // result: found, not_found, zero_amount, unparseable, call_failed
	)

	// 推送投递结果计数
	PushDeliveryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_delivery_total",
			Help: "Total number of web push deliveries by outcome",
		},
		[]string{"outcome"}, // outcome: delivered, gone, failed
	)

	// 保留任务删除的邮件数
	RetentionDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "email_retention_deleted_total",
			Help: "Total number of email records purged by the retention sweep",
		},
	)

	// 别名远端调用计数
	ProvisioningCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alias_provisioning_total",
			Help: "Total number of remote routing-rule calls",
		},
		[]string{"operation", "status"},
	)
)

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// RecordLLMCallLatency 记录 LLM 调用延迟
func RecordLLMCallLatency(model, status string, duration time.Duration) {
	LLMCallLatency.WithLabelValues(model, status).Observe(float64(duration.Milliseconds()))
}

// RecordDBQueryDuration 记录数据库查询延迟
func RecordDBQueryDuration(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// IncrementSlowQuery 增加慢查询计数
func IncrementSlowQuery(operation string) {
	SlowQueryCount.WithLabelValues(operation).Inc()
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementIngest 增加摄取结果计数
func IncrementIngest(outcome string) {
	IngestCount.WithLabelValues(outcome).Inc()
}

// IncrementExtraction 增加抽取结果计数
func IncrementExtraction(result string) {
	ExtractionCount.WithLabelValues(result).Inc()
}

// IncrementPushDelivery 增加推送结果计数
func IncrementPushDelivery(outcome string) {
	PushDeliveryCount.WithLabelValues(outcome).Inc()
}

// AddRetentionDeleted 累加保留任务删除数
func AddRetentionDeleted(n int64) {
	if n > 0 {
		RetentionDeleted.Add(float64(n))
	}
}

// IncrementProvisioning 增加别名远端调用计数
func IncrementProvisioning(operation, status string) {
	ProvisioningCount.WithLabelValues(operation, status).Inc()
}
