package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/syuchan1005/CardNotifier/contracts/mq"
	"github.com/syuchan1005/CardNotifier/pkg/logger"
	"github.com/syuchan1005/CardNotifier/pkg/metrics"
)

// Publisher publishes an event to the broker.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

type InboundHandler struct {
	publisher   Publisher
	hintHeader  string
	maxBodySize int64
	logger      *zap.Logger
	now         func() time.Time
	newID       func() string
}

func NewInboundHandler(publisher Publisher, hintHeader string, maxBodySize int64, logger *zap.Logger) *InboundHandler {
	if maxBodySize <= 0 {
		maxBodySize = 25 << 20
	}
	return &InboundHandler{
		publisher:   publisher,
		hintHeader:  hintHeader,
		maxBodySize: maxBodySize,
		logger:      logger,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// ReceiveEmail handles POST /email/inbound?from=&to=
// The body is the raw RFC 5322 message.
func (h *InboundHandler) ReceiveEmail(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.WithTrace(ctx, h.logger)

	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "message too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if len(raw) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty message"})
		return
	}

	payload := mq.InboundMailPayload{
		ID:           h.newID(),
		Raw:          raw,
		EnvelopeFrom: c.Query("from"),
		EnvelopeTo:   c.Query("to"),
		ReceivedAt:   h.now().UTC(),
	}
	if h.hintHeader != "" {
		if v := c.GetHeader(h.hintHeader); v != "" {
			payload.Headers = map[string]string{h.hintHeader: v}
		}
	}

	if err := h.publisher.Publish(ctx, mq.RoutingKeyMailInbound, payload); err != nil {
		metrics.IncrementIngest("publish_failed")
		log.Error("Failed to publish inbound mail", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to queue message"})
		return
	}

	log.Info("Inbound mail queued",
		zap.String("id", payload.ID),
		zap.Int("size", len(raw)),
		zap.String("envelope_to", payload.EnvelopeTo),
	)
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}
