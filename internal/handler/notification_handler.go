package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/syuchan1005/CardNotifier/contracts/db"
	"github.com/syuchan1005/CardNotifier/internal/webpush"
)

type SubscriptionStore interface {
	Upsert(ctx context.Context, s *db.PushSubscription) error
}

type NotificationHandler struct {
	publicKey string
	subs      SubscriptionStore
	logger    *zap.Logger
}

func NewNotificationHandler(publicKey string, subs SubscriptionStore, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{publicKey: publicKey, subs: subs, logger: logger}
}

// PublicKey handles GET /api/notification
func (h *NotificationHandler) PublicKey(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"publicKey": h.publicKey})
}

type subscribeRequest struct {
	Endpoint string `json:"endpoint" binding:"required,url"`
	Keys     struct {
		P256dh string `json:"p256dh" binding:"required"`
		Auth   string `json:"auth" binding:"required"`
	} `json:"keys"`
	ExpirationTime *int64 `json:"expirationTime"`
}

// Subscribe handles POST /api/notification with a browser PushSubscription.
func (h *NotificationHandler) Subscribe(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if _, err := webpush.DecodeKeys(req.Keys.P256dh, req.Keys.Auth); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription keys"})
		return
	}

	sub := &db.PushSubscription{
		UserID:    uid,
		Endpoint:  req.Endpoint,
		KeyP256dh: req.Keys.P256dh,
		KeyAuth:   req.Keys.Auth,
	}
	if req.ExpirationTime != nil {
		sub.ExpirationTime = *req.ExpirationTime
	}
	if err := h.subs.Upsert(c.Request.Context(), sub); err != nil {
		h.logger.Error("Failed to save push subscription", zap.Int64("user_id", uid), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save subscription"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "OK", "id": sub.ID})
}
