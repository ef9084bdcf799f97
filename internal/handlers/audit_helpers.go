package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"companion-chat/internal/middleware"
)

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(middleware.RequestIDKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(middleware.RequestIDKey, requestID)
	return requestID
}

// userIDFromContext returns the caller as the audit user id.
func userIDFromContext(c *gin.Context) *string {
	if userID := c.GetInt(middleware.UserIDKey); userID != 0 {
		value := strconv.Itoa(userID)
		return &value
	}
	if header := c.GetHeader(middleware.UserIDHeader); header != "" {
		if parsed, err := strconv.Atoi(header); err == nil {
			value := strconv.Itoa(parsed)
			return &value
		}
	}
	return nil
}

func pathID(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}
