package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// UserIDHeader is set by the upstream auth gateway.
const UserIDHeader = "X-User-ID"

// userID reads the authenticated user id, writing an error response if absent.
func userID(c *gin.Context) (int64, bool) {
	raw := c.GetHeader(UserIDHeader)
	if raw == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return 0, false
	}
	return id, true
}
