package push

import (
	"context"
	"errors"
	"strings"
	"time"

	"companion-chat/internal/rabbitmq"
)

// AMQPGateway hands push messages to the delivery workers behind RabbitMQ.
// The routing key is "<prefix>.<platform>".
type AMQPGateway struct {
	publisher rabbitmq.Publisher
	prefix    string
}

// NewAMQPGateway wraps a publisher.
func NewAMQPGateway(publisher rabbitmq.Publisher, prefix string) *AMQPGateway {
	if prefix == "" {
		prefix = "push"
	}
	return &AMQPGateway{publisher: publisher, prefix: prefix}
}

type pushMessage struct {
	Token    string            `json:"token"`
	Platform string            `json:"platform"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Metadata map[string]string `json:"metadata,omitempty"`
	SentAt   string            `json:"sent_at"`
}

func (g *AMQPGateway) Name() string { return "amqp" }

// Healthy reports whether the broker connection is up.
func (g *AMQPGateway) Healthy() bool {
	return g.publisher != nil && g.publisher.Connected()
}

// Send publishes the push message.
func (g *AMQPGateway) Send(ctx context.Context, dest Destination, title, body string, metadata map[string]string) Result {
	if strings.TrimSpace(dest.Token) == "" {
		return Permanent("invalid destination: empty device token")
	}
	platform := strings.ToLower(strings.TrimSpace(dest.Platform))
	if platform == "" {
		platform = "default"
	}

	msg := pushMessage{
		Token:    dest.Token,
		Platform: platform,
		Title:    title,
		Body:     body,
		Metadata: metadata,
		SentAt:   time.Now().UTC().Format(time.RFC3339Nano),
	}
	headers := map[string]string{}
	if id := metadata["request_id"]; id != "" {
		headers["x-request-id"] = id
	}

	err := g.publisher.PublishWithHeaders(ctx, g.prefix+"."+platform, msg, headers)
	switch {
	case err == nil:
		return Delivery()
	case errors.Is(err, context.DeadlineExceeded):
		return Transient("gateway timeout")
	default:
		return Transient("gateway unavailable: " + err.Error())
	}
}
