package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"companion-chat/internal/chat"
	"companion-chat/internal/middleware"
	"companion-chat/internal/models"
)

// ChatService is what the chat endpoints need from the dispatcher.
type ChatService interface {
	OpenRoom(ctx context.Context, userID, personaID int) (models.ChatRoom, error)
	ListRooms(ctx context.Context, userID int) ([]models.ChatRoomSummary, error)
	CloseRoom(ctx context.Context, chatRoomID, userID int) error
	History(ctx context.Context, chatRoomID, userID, limit int) ([]models.Message, error)
	SendUserMessage(ctx context.Context, chatRoomID, userID int, content string) (chat.Exchange, error)
	MarkAllRead(ctx context.Context, chatRoomID, userID int) (int, error)
	Typing(ctx context.Context, chatRoomID, userID int, typing bool) error
}

// ChatHandler manages the persona chat endpoints.
type ChatHandler struct {
	chats ChatService
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(chats ChatService) *ChatHandler {
	return &ChatHandler{chats: chats}
}

// ListChats returns the active rooms of the caller.
func (h *ChatHandler) ListChats(c *gin.Context) {
	rooms, err := h.chats.ListRooms(c.Request.Context(), c.GetInt(middleware.UserIDKey))
	if err != nil {
		RespondError(c, err, "failed to load chats")
		return
	}
	if rooms == nil {
		rooms = []models.ChatRoomSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"chats": rooms})
}

// StartChat creates or returns the caller's room with a persona.
func (h *ChatHandler) StartChat(c *gin.Context) {
	var req struct {
		PersonaID int `json:"persona_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := h.chats.OpenRoom(c.Request.Context(), c.GetInt(middleware.UserIDKey), req.PersonaID)
	if err != nil {
		RespondError(c, err, "could not create chat")
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat_id": room.ID, "chat": room})
}

// CloseChat soft-deactivates a room.
func (h *ChatHandler) CloseChat(c *gin.Context) {
	chatID, ok := pathID(c, "chat_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}
	if err := h.chats.CloseRoom(c.Request.Context(), chatID, c.GetInt(middleware.UserIDKey)); err != nil {
		RespondError(c, err, "failed to close chat")
		return
	}
	c.Status(http.StatusNoContent)
}

// GetChatMessages returns the room history, oldest first.
func (h *ChatHandler) GetChatMessages(c *gin.Context) {
	chatID, ok := pathID(c, "chat_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	msgs, err := h.chats.History(c.Request.Context(), chatID, c.GetInt(middleware.UserIDKey), queryLimit(c))
	if err != nil {
		RespondError(c, err, "failed to load messages")
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostChatMessage sends the caller's message and returns it with the reply.
func (h *ChatHandler) PostChatMessage(c *gin.Context) {
	chatID, ok := pathID(c, "chat_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	exchange, err := h.chats.SendUserMessage(c.Request.Context(), chatID, c.GetInt(middleware.UserIDKey), req.Content)
	if err != nil {
		RespondError(c, err, "could not send message")
		return
	}
	c.JSON(http.StatusCreated, exchange)
}

// MarkRead marks every message of the room read.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	chatID, ok := pathID(c, "chat_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	count, err := h.chats.MarkAllRead(c.Request.Context(), chatID, c.GetInt(middleware.UserIDKey))
	if err != nil {
		RespondError(c, err, "failed to mark read")
		return
	}
	c.JSON(http.StatusOK, gin.H{"read": count})
}

// Typing relays a typing indicator.
func (h *ChatHandler) Typing(c *gin.Context) {
	chatID, ok := pathID(c, "chat_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	var req struct {
		Typing *bool `json:"typing" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.chats.Typing(c.Request.Context(), chatID, c.GetInt(middleware.UserIDKey), *req.Typing); err != nil {
		RespondError(c, err, "failed to send typing")
		return
	}
	c.Status(http.StatusNoContent)
}
