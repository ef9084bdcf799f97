package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"companion-chat/internal/middleware"
	"companion-chat/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router gin.IRoutes, emitter *telemetry.AuditEmitter, notifications NotificationService, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "audit test", requestIDFromContext(c), userIDFromContext(c), nil)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/debug/notifications/system", func(c *gin.Context) {
		var req struct {
			Title   string `json:"title"`
			Content string `json:"content"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		n, err := notifications.CreateSystem(c.Request.Context(), c.GetInt(middleware.UserIDKey), req.Title, req.Content)
		if err != nil {
			RespondError(c, err, "failed to create notification")
			return
		}
		c.JSON(http.StatusCreated, n)
	})
}
