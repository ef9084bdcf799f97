package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"companion-chat/internal/chat"
	"companion-chat/internal/models"
	"companion-chat/internal/notification"
	"companion-chat/internal/repositories"
)

// StatusFor maps a service error onto an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrForbidden), errors.Is(err, notification.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, repositories.ErrChatRoomNotFound),
		errors.Is(err, repositories.ErrPersonaNotFound),
		errors.Is(err, repositories.ErrNotificationNotFound),
		errors.Is(err, repositories.ErrDeviceNotFound):
		return http.StatusNotFound
	case errors.Is(err, chat.ErrRoomInactive), errors.Is(err, notification.ErrNotReadable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes the error body. Internal errors are not echoed.
func RespondError(c *gin.Context, err error, fallback string) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = fallback
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{"error": msg})
}
