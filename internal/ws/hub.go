package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"companion-chat/internal/logging"
	"companion-chat/internal/models"
	"companion-chat/internal/observability"
)

const writeWait = 5 * time.Second

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type client struct {
	conn Conn
	info ConnInfo
	mu   sync.Mutex
}

func (c *client) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub maintains active websocket connections per chat room and fans events
// out to them.
type Hub struct {
	rooms  map[int]map[Conn]*client
	mu     sync.RWMutex
	events *observability.Events
	logger *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(events *observability.Events, logger *zap.Logger) *Hub {
	return &Hub{
		rooms:  make(map[int]map[Conn]*client),
		events: events,
		logger: logging.OrNop(logger),
	}
}

// AddClient registers a websocket connection to a chat room.
func (h *Hub) AddClient(chatRoomID int, conn Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[chatRoomID]; !ok {
		h.rooms[chatRoomID] = make(map[Conn]*client)
	}
	h.rooms[chatRoomID][conn] = &client{conn: conn, info: info}
}

// RemoveClient removes a websocket connection.
func (h *Hub) RemoveClient(chatRoomID int, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[chatRoomID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.rooms, chatRoomID)
		}
	}
}

// Clients returns how many connections watch the room.
func (h *Hub) Clients(chatRoomID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[chatRoomID])
}

// Publish sends the event to every client of the room. A client whose write
// fails is dropped; the failure is logged and never reported to the caller.
func (h *Hub) Publish(chatRoomID int, event models.ChatEvent) {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.rooms[chatRoomID]))
	for _, c := range h.rooms[chatRoomID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	if len(clients) == 0 {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		observability.IncBroadcastError()
		h.logger.Error("marshal chat event", zap.Int("chat_room_id", chatRoomID), zap.Error(err))
		return
	}

	for _, c := range clients {
		if err := c.write(payload); err != nil {
			observability.IncBroadcastError()
			h.logger.Warn("websocket write error",
				zap.Int("chat_room_id", chatRoomID),
				zap.String("conn_id", c.info.ConnID),
				zap.String("event", event.Type),
				zap.Error(err))
			_ = c.conn.Close()
			h.RemoveClient(chatRoomID, c.conn)
			h.publishWSEvent(context.Background(), chatRoomID, "ws_error", c.info, err.Error())
		}
	}
}

func (h *Hub) publishWSEvent(ctx context.Context, chatRoomID int, name string, info ConnInfo, reason string) {
	observability.IncWSEvent("chat", name)
	h.events.Publish(ctx, "ws_events.chats", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: name,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"kind":        "chat",
				"resource_id": chatRoomID,
				"event":       name,
				"conn_id":     info.ConnID,
				"duration_ms": info.Age(time.Now()).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   info.UserID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
