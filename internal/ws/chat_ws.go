package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"companion-chat/internal/handlers"
	"companion-chat/internal/logging"
	"companion-chat/internal/middleware"
	"companion-chat/internal/models"
	"companion-chat/internal/observability"
)

// RoomSession is what a websocket client can do in its room.
type RoomSession interface {
	Opened(ctx context.Context, chatRoomID, userID int) error
	Typing(ctx context.Context, chatRoomID, userID int, typing bool) error
}

// ChatWebSocketHandler handles chat websocket connections.
type ChatWebSocketHandler struct {
	hub     *Hub
	session RoomSession
	logger  *zap.Logger
}

// NewChatWebSocketHandler constructs a ChatWebSocketHandler.
func NewChatWebSocketHandler(hub *Hub, session RoomSession, logger *zap.Logger) *ChatWebSocketHandler {
	return &ChatWebSocketHandler{hub: hub, session: session, logger: logging.OrNop(logger)}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// inbound is a client frame. Only typing indicators are accepted; messages
// are sent over HTTP so the caller gets the reply.
type inbound struct {
	Type   string `json:"type"`
	Typing bool   `json:"typing"`
}

// Handle checks access, records that the room was opened and upgrades the
// connection.
func (h *ChatWebSocketHandler) Handle(c *gin.Context) {
	chatID, err := strconv.Atoi(c.Param("chat_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	ctx, span := otel.Tracer("companion-chat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID := c.GetInt(middleware.UserIDKey)
	if err := h.session.Opened(ctx, chatID, userID); err != nil {
		handlers.RespondError(c, err, "failed to open chat")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	traceID := span.SpanContext().TraceID().String()
	info := ConnInfo{
		ConnID:      uuid.NewString(),
		ChatRoomID:  chatID,
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	h.hub.AddClient(chatID, conn, info)

	observability.IncWSActive("chat")
	h.hub.publishWSEvent(ctx, chatID, "ws_connect", info, "")

	// The request context ends with the handler; the read loop outlives it.
	loopCtx := context.WithoutCancel(ctx)
	go h.readLoop(loopCtx, chatID, conn, info)
}

func (h *ChatWebSocketHandler) readLoop(ctx context.Context, chatID int, conn *websocket.Conn, info ConnInfo) {
	var closeReason string
	defer func() {
		h.hub.RemoveClient(chatID, conn)
		observability.DecWSActive("chat")
		h.hub.publishWSEvent(ctx, chatID, "ws_disconnect", info, closeReason)
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.hub.publishWSEvent(ctx, chatID, "ws_error", info, closeReason)
			}
			return
		}

		var frame inbound
		if err := json.Unmarshal(data, &frame); err != nil || frame.Type != models.EventTyping {
			continue
		}
		if err := h.session.Typing(ctx, chatID, info.UserID, frame.Typing); err != nil {
			h.logger.Debug("typing from websocket rejected", zap.Int("chat_room_id", chatID), zap.Error(err))
		}
	}
}
