package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"companion-chat/internal/logging"
	"companion-chat/internal/models"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// AuditEmitter publishes audit records for operator-visible outcomes, such
// as a notification that will never be delivered.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	now         func() time.Time
	logger      *zap.Logger
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id,omitempty"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level      string            `json:"level"`
	Text       string            `json:"text"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string, logger *zap.Logger) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		now:         time.Now,
		logger:      logging.OrNop(logger),
	}
}

// Emit publishes one audit record. Publish failures are logged only.
func (e *AuditEmitter) Emit(ctx context.Context, level, text, requestID string, userID *string, attrs map[string]string) {
	if e == nil || e.publisher == nil {
		return
	}

	e.logger.Info("audit emit",
		zap.String("level", level),
		zap.String("request_id", requestID),
		zap.Stringp("user_id", userID),
		zap.String("text", text))
	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    e.now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		UserID:        userID,
		Payload: AuditPayload{
			Level:      level,
			Text:       text,
			Attributes: attrs,
		},
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		e.logger.Warn("audit publish failed", zap.Error(err))
	}
}

// NotificationFailed records a notification that reached FAILED.
func (e *AuditEmitter) NotificationFailed(ctx context.Context, n models.Notification) {
	user := strconv.Itoa(n.UserID)
	attrs := map[string]string{
		"notification_id": strconv.Itoa(n.ID),
		"type":            string(n.Type),
		"retry_count":     strconv.Itoa(n.RetryCount),
	}
	if n.ChatRoomID != nil {
		attrs["chat_room_id"] = strconv.Itoa(*n.ChatRoomID)
	}
	if n.FailureKind != nil {
		attrs["failure_kind"] = string(*n.FailureKind)
	}
	reason := ""
	if n.FailureReason != nil {
		reason = *n.FailureReason
	}
	e.Emit(ctx, "warn", fmt.Sprintf("notification %d failed: %s", n.ID, reason), "", &user, attrs)
}
