package mqhandler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/syuchan1005/CardNotifier/contracts/mq"
	"github.com/syuchan1005/CardNotifier/internal/pipeline"
	"github.com/syuchan1005/CardNotifier/pkg/logger"
	"github.com/syuchan1005/CardNotifier/pkg/metrics"
	"github.com/syuchan1005/CardNotifier/pkg/util"
)

// Processor runs the ingestion pipeline.
type Processor interface {
	Process(ctx context.Context, in pipeline.Inbound) (*pipeline.Outcome, error)
}

// DeadLetterer parks messages that must not be redelivered.
type DeadLetterer interface {
	PublishToDLQ(ctx context.Context, routingKey string, payload []byte, originalError string) error
}

// RetryCounter counts requeues of one message.
type RetryCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type InboundMailHandler struct {
	pipeline   Processor
	dlq        DeadLetterer
	retries    RetryCounter
	maxRetries int64
	logger     *zap.Logger
}

// NewInboundMailHandler creates the mail.inbound handler. A retryable failure
// is requeued at most maxRetries times, then dead-lettered.
func NewInboundMailHandler(p Processor, dlq DeadLetterer, retries RetryCounter, maxRetries int, logger *zap.Logger) *InboundMailHandler {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &InboundMailHandler{
		pipeline:   p,
		dlq:        dlq,
		retries:    retries,
		maxRetries: int64(maxRetries),
		logger:     logger,
	}
}

// HandleInboundMail processes one mail.inbound event.
// Returning an error requeues the message, so only retryable failures under
// the retry cap do that; everything else is dead-lettered and acked.
func (h *InboundMailHandler) HandleInboundMail(ctx context.Context, raw json.RawMessage) error {
	log := logger.WithTrace(ctx, h.logger)

	var p mq.InboundMailPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Error("Failed to unmarshal inbound mail payload", zap.Error(err))
		return h.deadLetter(ctx, raw, err)
	}
	retryKey := util.FormatRetryKey(mq.RoutingKeyMailInbound, messageKey(p, raw))

	out, err := h.pipeline.Process(ctx, pipeline.Inbound{
		Raw:          p.Raw,
		EnvelopeFrom: p.EnvelopeFrom,
		EnvelopeTo:   p.EnvelopeTo,
		Headers:      p.Headers,
		ReceivedAt:   p.ReceivedAt,
	})
	if err == nil {
		h.resetRetries(ctx, retryKey)
		if out.Duplicate {
			log.Debug("Duplicate inbound mail acked", zap.String("message_id", out.MessageID))
		}
		return nil
	}

	if pipeline.IsPermanent(err) {
		log.Warn("Inbound mail cannot be routed, dead-lettering", zap.Error(err))
		return h.deadLetter(ctx, raw, err)
	}

	retryable, errType := util.IsRetryableError(err)
	if !retryable {
		log.Error("Pipeline failed permanently, dead-lettering",
			zap.String("error_type", errType),
			zap.Error(err),
		)
		h.resetRetries(ctx, retryKey)
		return h.deadLetter(ctx, raw, err)
	}

	retryCount := int64(1)
	if h.retries != nil {
		n, rerr := h.retries.IncrementAndGet(ctx, retryKey)
		if rerr != nil {
			// Redis 错误不影响处理，按第一次重试处理
			log.Warn("Failed to get retry count, continuing anyway", zap.Error(rerr))
		} else {
			retryCount = n
		}
	}

	if retryCount > h.maxRetries {
		metrics.IncrementIngest("retries_exhausted")
		log.Error("Max retries exceeded, dead-lettering",
			zap.String("error_type", errType),
			zap.Int64("retry_count", retryCount),
			zap.Error(err),
		)
		dlqErr := h.deadLetter(ctx, raw, fmt.Errorf("max retries exceeded: %w", err))
		if dlqErr == nil {
			h.resetRetries(ctx, retryKey)
		}
		return dlqErr
	}

	// nack + requeue
	log.Warn("Retryable pipeline failure",
		zap.String("error_type", errType),
		zap.Int64("retry_count", retryCount),
		zap.Int64("max_retries", h.maxRetries),
		zap.Error(err),
	)
	return err
}

func (h *InboundMailHandler) resetRetries(ctx context.Context, key string) {
	if h.retries == nil {
		return
	}
	if err := h.retries.Reset(ctx, key); err != nil {
		h.logger.Warn("Failed to reset retry count", zap.String("key", key), zap.Error(err))
	}
}

func (h *InboundMailHandler) deadLetter(ctx context.Context, raw []byte, cause error) error {
	if h.dlq == nil {
		return nil
	}
	if err := h.dlq.PublishToDLQ(ctx, mq.RoutingKeyMailInbound, raw, cause.Error()); err != nil {
		// DLQ 不可用时重新入队，避免丢消息
		h.logger.Error("Failed to publish to DLQ", zap.Error(err))
		return errors.Join(cause, err)
	}
	return nil
}

// messageKey identifies a delivery across requeues. Payloads from older
// gateways carry no id and fall back to a digest of the body.
func messageKey(p mq.InboundMailPayload, raw []byte) string {
	if p.ID != "" {
		return p.ID
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
