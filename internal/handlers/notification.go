package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"companion-chat/internal/middleware"
	"companion-chat/internal/models"
)

// NotificationService is what the inbox and operator endpoints need.
type NotificationService interface {
	List(ctx context.Context, userID, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, id int) (models.Notification, error)
	GetRetryable(ctx context.Context, limit int) ([]models.Notification, error)
	CreateSystem(ctx context.Context, userID int, title, content string) (models.Notification, error)
}

// DeviceRegistrar stores push destinations.
type DeviceRegistrar interface {
	RegisterDevice(ctx context.Context, userID int, token, platform string) (models.Device, error)
}

type NotificationHandler struct {
	notifications NotificationService
	devices       DeviceRegistrar
}

func NewNotificationHandler(notifications NotificationService, devices DeviceRegistrar) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, devices: devices}
}

// ListNotifications returns the caller's inbox, newest first.
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	list, err := h.notifications.List(c.Request.Context(), c.GetInt(middleware.UserIDKey), queryLimit(c))
	if err != nil {
		RespondError(c, err, "failed to load notifications")
		return
	}
	if list == nil {
		list = []models.Notification{}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list})
}

func (h *NotificationHandler) MarkNotificationRead(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}

	n, err := h.notifications.MarkRead(c.Request.Context(), c.GetInt(middleware.UserIDKey), id)
	if err != nil {
		RespondError(c, err, "failed to mark notification read")
		return
	}
	c.JSON(http.StatusOK, n)
}

// RegisterDevice stores the caller's push token.
func (h *NotificationHandler) RegisterDevice(c *gin.Context) {
	var req struct {
		Token    string `json:"token" binding:"required"`
		Platform string `json:"platform"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token must not be blank"})
		return
	}

	device, err := h.devices.RegisterDevice(c.Request.Context(), c.GetInt(middleware.UserIDKey), token, strings.ToLower(strings.TrimSpace(req.Platform)))
	if err != nil {
		RespondError(c, err, "failed to register device")
		return
	}
	c.JSON(http.StatusCreated, device)
}

// ListRetryable is the operator view of transient failures still under budget.
func (h *NotificationHandler) ListRetryable(c *gin.Context) {
	list, err := h.notifications.GetRetryable(c.Request.Context(), queryLimit(c))
	if err != nil {
		RespondError(c, err, "failed to load retryable notifications")
		return
	}
	if list == nil {
		list = []models.Notification{}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list})
}
