package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"companion-chat/internal/observability"
)

const (
	UserIDKey    = "userID"
	RequestIDKey = "request_id"

	// UserIDHeader is set by the upstream gateway after authenticating the caller.
	UserIDHeader = "X-User-ID"
)

// UserIdentity trusts the user id forwarded by the gateway. Websocket
// handshakes from browsers cannot set headers, so the user_id query
// parameter is accepted as well.
func UserIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(UserIDHeader)
		if raw == "" {
			raw = c.Query("user_id")
		}
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
			return
		}

		userID, err := strconv.Atoi(raw)
		if err != nil || userID <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid user identity"})
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// RequestID propagates or mints the request id and echoes it back.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := observability.RequestIDFromRequest(c.Request)
		c.Set(RequestIDKey, requestID)
		c.Header(observability.RequestIDHeader, requestID)
		c.Next()
	}
}
