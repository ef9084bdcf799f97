package push

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"companion-chat/internal/logging"
)

// LogGateway records pushes in the service log. It stands in for a real
// gateway in development and as the last entry of the priority list.
type LogGateway struct {
	logger *zap.Logger
}

// NewLogGateway builds a log-only gateway.
func NewLogGateway(logger *zap.Logger) *LogGateway {
	return &LogGateway{logger: logging.OrNop(logger)}
}

func (g *LogGateway) Name() string { return "log" }

func (g *LogGateway) Healthy() bool { return true }

func (g *LogGateway) Send(_ context.Context, dest Destination, title, body string, metadata map[string]string) Result {
	if strings.TrimSpace(dest.Token) == "" {
		return Permanent("invalid destination: empty device token")
	}
	g.logger.Info("push delivered to log",
		zap.String("platform", dest.Platform),
		zap.String("title", title),
		zap.Int("body_len", len(body)),
		zap.Any("metadata", metadata))
	return Delivery()
}
