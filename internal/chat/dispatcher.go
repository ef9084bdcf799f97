// Package chat persists chat messages, asks the AI for the persona's reply
// and fans both out to connected clients.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"companion-chat/internal/ai"
	"companion-chat/internal/logging"
	"companion-chat/internal/models"
	"companion-chat/internal/observability"
	"companion-chat/internal/repositories"
)

var (
	ErrForbidden    = errors.New("chat room belongs to another user")
	ErrRoomInactive = errors.New("chat room is inactive")
)

// Broadcaster pushes an event to everyone watching a room. Delivery is
// best-effort and never reported back.
type Broadcaster interface {
	Publish(chatRoomID int, event models.ChatEvent)
}

// ActivityRecorder is the part of the activity tracker the dispatcher needs.
type ActivityRecorder interface {
	Record(ctx context.Context, userID int, chatRoomID *int, activityType models.ActivityType) (models.ActivityRecord, error)
	EndEpisode(ctx context.Context, chatRoomID int) (int64, error)
}

// Responder produces persona replies; it must not fail.
type Responder interface {
	Reply(ctx context.Context, persona models.Persona, history []models.Message) ai.Result
}

type Options struct {
	ContextWindow    int
	MaxMessageLength int
}

// Exchange is the outcome of one user send: the stored user message and the
// persona's stored reply.
type Exchange struct {
	UserMessage models.Message `json:"user_message"`
	Reply       models.Message `json:"reply"`
	Degraded    bool           `json:"degraded"`
}

type Dispatcher struct {
	chats       repositories.ChatRepository
	messages    repositories.MessageRepository
	activity    ActivityRecorder
	responder   Responder
	broadcaster Broadcaster
	events      *observability.Events
	opts        Options
	now         func() time.Time
	tracer      trace.Tracer
	logger      *zap.Logger
}

func NewDispatcher(
	chats repositories.ChatRepository,
	messages repositories.MessageRepository,
	activity ActivityRecorder,
	responder Responder,
	broadcaster Broadcaster,
	events *observability.Events,
	opts Options,
	logger *zap.Logger,
) *Dispatcher {
	if opts.ContextWindow <= 0 {
		opts.ContextWindow = 20
	}
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = 2000
	}
	return &Dispatcher{
		chats:       chats,
		messages:    messages,
		activity:    activity,
		responder:   responder,
		broadcaster: broadcaster,
		events:      events,
		opts:        opts,
		now:         time.Now,
		tracer:      otel.Tracer("companion-chat/chat"),
		logger:      logging.OrNop(logger),
	}
}

// WithClock overrides the time source.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// SendUserMessage stores the user's message, records MESSAGE_SENT activity,
// generates the persona's reply and stores it. A reply is always returned
// unless validation, ownership or persistence fails.
func (d *Dispatcher) SendUserMessage(ctx context.Context, chatRoomID, userID int, content string) (Exchange, error) {
	ctx, span := d.tracer.Start(ctx, "chat.send_user_message",
		trace.WithAttributes(attribute.Int("chat_room_id", chatRoomID), attribute.Int("user_id", userID)))
	defer span.End()

	exchange, err := d.send(ctx, chatRoomID, userID, content)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Exchange{}, err
	}
	span.SetAttributes(attribute.Bool("ai.degraded", exchange.Degraded))
	return exchange, nil
}

func (d *Dispatcher) send(ctx context.Context, chatRoomID, userID int, content string) (Exchange, error) {
	draft, err := models.NewMessageDraft(chatRoomID, models.SenderUser, content, d.opts.MaxMessageLength)
	if err != nil {
		return Exchange{}, err
	}
	room, err := d.activeRoom(ctx, chatRoomID, userID)
	if err != nil {
		return Exchange{}, err
	}
	persona, err := d.chats.GetPersona(ctx, room.PersonaID)
	if err != nil {
		return Exchange{}, fmt.Errorf("load persona: %w", err)
	}

	userMsg, err := d.messages.CreateMessage(ctx, draft, d.now())
	if err != nil {
		return Exchange{}, fmt.Errorf("store user message: %w", err)
	}
	observability.IncMessage(string(models.SenderUser))
	d.broadcastMessage(userMsg)

	if _, err := d.activity.Record(ctx, userID, &room.ID, models.ActivityMessageSent); err != nil {
		return Exchange{}, fmt.Errorf("record activity: %w", err)
	}

	history, err := d.messages.RecentMessages(ctx, room.ID, d.opts.ContextWindow)
	if err != nil {
		return Exchange{}, fmt.Errorf("load context: %w", err)
	}
	result := d.responder.Reply(ctx, persona, history)

	replyDraft, err := models.NewMessageDraft(room.ID, models.SenderAgent, clip(result.Text, d.opts.MaxMessageLength), d.opts.MaxMessageLength)
	if err != nil {
		return Exchange{}, fmt.Errorf("build reply: %w", err)
	}
	reply, err := d.messages.CreateMessage(ctx, replyDraft, d.now())
	if err != nil {
		return Exchange{}, fmt.Errorf("store reply: %w", err)
	}
	observability.IncMessage(string(models.SenderAgent))
	d.broadcastMessage(reply)

	d.events.Publish(ctx, "chat_events.message_exchanged", observability.EventEnvelope{
		EventType: "chat_event",
		EventName: "message_exchanged",
		Payload: map[string]any{
			"chat_room_id":    room.ID,
			"user_id":         userID,
			"user_message_id": userMsg.ID,
			"reply_id":        reply.ID,
			"provider":        result.Provider,
			"degraded":        result.Degraded,
		},
	}, nil)

	return Exchange{UserMessage: userMsg, Reply: reply, Degraded: result.Degraded}, nil
}

// MarkAllRead marks every message of the room read, records MESSAGE_READ and
// tells watchers how many messages flipped.
func (d *Dispatcher) MarkAllRead(ctx context.Context, chatRoomID, userID int) (int, error) {
	room, err := d.ownedRoom(ctx, chatRoomID, userID)
	if err != nil {
		return 0, err
	}
	count, err := d.messages.MarkAllRead(ctx, room.ID)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	if _, err := d.activity.Record(ctx, userID, &room.ID, models.ActivityMessageRead); err != nil {
		return 0, fmt.Errorf("record activity: %w", err)
	}
	d.broadcast(room.ID, models.ChatEvent{Type: models.EventRead, ChatRoomID: room.ID, UserID: userID, ReadCount: count})
	return count, nil
}

// Typing relays a typing indicator. Nothing is stored.
func (d *Dispatcher) Typing(ctx context.Context, chatRoomID, userID int, typing bool) error {
	room, err := d.activeRoom(ctx, chatRoomID, userID)
	if err != nil {
		return err
	}
	d.broadcast(room.ID, models.ChatEvent{Type: models.EventTyping, ChatRoomID: room.ID, UserID: userID, Typing: &typing})
	return nil
}

// History returns the room's messages oldest first; limit <= 0 returns all.
func (d *Dispatcher) History(ctx context.Context, chatRoomID, userID, limit int) ([]models.Message, error) {
	room, err := d.ownedRoom(ctx, chatRoomID, userID)
	if err != nil {
		return nil, err
	}
	return d.messages.ListMessages(ctx, room.ID, limit)
}

// clip cuts provider text down to the storable length.
func clip(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen])
}

func (d *Dispatcher) broadcastMessage(msg models.Message) {
	m := msg
	d.broadcast(msg.ChatRoomID, models.ChatEvent{Type: models.EventMessage, ChatRoomID: msg.ChatRoomID, Message: &m})
}

func (d *Dispatcher) broadcast(chatRoomID int, event models.ChatEvent) {
	if d.broadcaster == nil {
		return
	}
	d.broadcaster.Publish(chatRoomID, event)
}
