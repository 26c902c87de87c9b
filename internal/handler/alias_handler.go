package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/syuchan1005/CardNotifier/contracts/db"
	"github.com/syuchan1005/CardNotifier/internal/alias"
	"github.com/syuchan1005/CardNotifier/pkg/circuitbreaker"
)

type AliasService interface {
	Create(ctx context.Context, userID int64) (*db.RoutingRule, error)
	Delete(ctx context.Context, userID, id int64) error
	List(ctx context.Context, userID int64) ([]db.RoutingRule, error)
}

type AliasHandler struct {
	aliases AliasService
	logger  *zap.Logger
}

func NewAliasHandler(aliases AliasService, logger *zap.Logger) *AliasHandler {
	return &AliasHandler{aliases: aliases, logger: logger}
}

type aliasResponse struct {
	ID      int64  `json:"id"`
	Address string `json:"address"`
}

func toAliasResponse(rr db.RoutingRule) aliasResponse {
	return aliasResponse{ID: rr.ID, Address: rr.EmailAddress}
}

// CreateAlias handles POST /api/aliases
func (h *AliasHandler) CreateAlias(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	rr, err := h.aliases.Create(c.Request.Context(), uid)
	if err != nil {
		h.logger.Error("Failed to create alias", zap.Int64("user_id", uid), zap.Error(err))
		c.JSON(upstreamStatus(err), gin.H{"error": "failed to create alias"})
		return
	}
	c.JSON(http.StatusCreated, toAliasResponse(*rr))
}

// DeleteAlias handles DELETE /api/aliases/:id
func (h *AliasHandler) DeleteAlias(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alias id"})
		return
	}

	err = h.aliases.Delete(c.Request.Context(), uid, id)
	switch {
	case errors.Is(err, alias.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "alias not found"})
	case err != nil:
		h.logger.Error("Failed to delete alias", zap.Int64("alias_id", id), zap.Error(err))
		c.JSON(upstreamStatus(err), gin.H{"error": "failed to delete alias"})
	default:
		c.Status(http.StatusNoContent)
	}
}

// ListAliases handles GET /api/aliases
func (h *AliasHandler) ListAliases(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	rules, err := h.aliases.List(c.Request.Context(), uid)
	if err != nil {
		h.logger.Error("Failed to list aliases", zap.Int64("user_id", uid), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list aliases"})
		return
	}
	out := make([]aliasResponse, 0, len(rules))
	for _, rr := range rules {
		out = append(out, toAliasResponse(rr))
	}
	c.JSON(http.StatusOK, gin.H{"aliases": out})
}

func upstreamStatus(err error) int {
	if errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}
