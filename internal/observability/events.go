package observability

import (
	"context"
)

// EventEnvelope is the body of every domain event published over AMQP.
type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

// EventPublisher is the transport used for domain events.
type EventPublisher interface {
	PublishWithHeaders(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

// Events publishes envelopes best-effort. A nil *Events drops everything.
type Events struct {
	publisher EventPublisher
}

// NewEvents wraps a publisher.
func NewEvents(publisher EventPublisher) *Events {
	return &Events{publisher: publisher}
}

// Publish sends one envelope and counts failures; it never fails the caller.
func (e *Events) Publish(ctx context.Context, routingKey string, envelope EventEnvelope, headers map[string]string) {
	if e == nil || e.publisher == nil {
		return
	}
	if err := e.publisher.PublishWithHeaders(ctx, routingKey, envelope, headers); err != nil {
		IncAMQPPublishError()
	}
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}
