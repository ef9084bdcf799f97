// Package inactivity finds chat rooms whose user went quiet and queues one
// nudge notification per idle episode.
package inactivity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"companion-chat/internal/ai"
	"companion-chat/internal/logging"
	"companion-chat/internal/models"
	"companion-chat/internal/observability"
	"companion-chat/internal/repositories"
)

// StaleFinder lists rooms idle past a threshold.
type StaleFinder interface {
	FindStale(ctx context.Context, idleThreshold time.Duration, asOf time.Time, limit int) ([]models.StaleRoom, error)
}

// Nudger writes the nudge text; it must not fail.
type Nudger interface {
	Nudge(ctx context.Context, persona models.Persona, history []models.Message) ai.Result
}

type Options struct {
	IdleThreshold time.Duration
	ScanLimit     int
	ContextWindow int
}

// ScanResult summarizes one pass.
type ScanResult struct {
	Candidates int
	Created    int
	Skipped    int
	Failed     int
}

type Detector struct {
	stale         StaleFinder
	chats         repositories.ChatRepository
	messages      repositories.MessageRepository
	notifications repositories.NotificationRepository
	nudger        Nudger
	opts          Options
	now           func() time.Time
	tracer        trace.Tracer
	logger        *zap.Logger
}

func NewDetector(
	stale StaleFinder,
	chats repositories.ChatRepository,
	messages repositories.MessageRepository,
	notifications repositories.NotificationRepository,
	nudger Nudger,
	opts Options,
	logger *zap.Logger,
) *Detector {
	if opts.IdleThreshold <= 0 {
		opts.IdleThreshold = 2 * time.Hour
	}
	if opts.ScanLimit <= 0 {
		opts.ScanLimit = 500
	}
	if opts.ContextWindow <= 0 {
		opts.ContextWindow = 20
	}
	return &Detector{
		stale:         stale,
		chats:         chats,
		messages:      messages,
		notifications: notifications,
		nudger:        nudger,
		opts:          opts,
		now:           time.Now,
		tracer:        otel.Tracer("companion-chat/inactivity"),
		logger:        logging.OrNop(logger),
	}
}

// WithClock overrides the time source.
func (d *Detector) WithClock(now func() time.Time) *Detector {
	d.now = now
	return d
}

// Scan queues a PENDING inactivity notification for every stale room. It is
// safe to run concurrently with itself and with user activity: creation is
// guarded so a room never gets a second live notification and a room that
// saw activity after the cutoff is skipped.
func (d *Detector) Scan(ctx context.Context) (ScanResult, error) {
	ctx, span := d.tracer.Start(ctx, "inactivity.scan")
	defer span.End()

	now := d.now()
	cutoff := now.Add(-d.opts.IdleThreshold)

	rooms, err := d.stale.FindStale(ctx, d.opts.IdleThreshold, now, d.opts.ScanLimit)
	if err != nil {
		span.RecordError(err)
		return ScanResult{}, fmt.Errorf("find stale rooms: %w", err)
	}

	result := ScanResult{Candidates: len(rooms)}
	for _, room := range rooms {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		created, err := d.nudge(ctx, room, cutoff, now)
		switch {
		case err != nil:
			result.Failed++
			d.logger.Error("inactivity nudge failed", zap.Int("chat_room_id", room.ChatRoomID), zap.Error(err))
		case created:
			result.Created++
		default:
			result.Skipped++
		}
	}

	span.SetAttributes(
		attribute.Int("candidates", result.Candidates),
		attribute.Int("created", result.Created),
		attribute.Int("skipped", result.Skipped),
	)
	if result.Candidates > 0 {
		d.logger.Info("inactivity scan finished",
			zap.Int("candidates", result.Candidates),
			zap.Int("created", result.Created),
			zap.Int("skipped", result.Skipped),
			zap.Int("failed", result.Failed))
	}
	return result, nil
}

func (d *Detector) nudge(ctx context.Context, room models.StaleRoom, cutoff, now time.Time) (bool, error) {
	persona, err := d.chats.GetPersona(ctx, room.PersonaID)
	if err != nil {
		return false, fmt.Errorf("load persona: %w", err)
	}
	history, err := d.messages.RecentMessages(ctx, room.ChatRoomID, d.opts.ContextWindow)
	if err != nil {
		return false, fmt.Errorf("load context: %w", err)
	}

	text := d.nudger.Nudge(ctx, persona, history)
	roomID := room.ChatRoomID
	draft, err := models.NewNotificationDraft(room.UserID, &roomID, models.NotificationInactivity, Title(persona), text.Text, now)
	if err != nil {
		return false, err
	}

	n, err := d.notifications.CreateForIdleRoom(ctx, draft, cutoff, now)
	if errors.Is(err, repositories.ErrLiveNotificationExists) || errors.Is(err, repositories.ErrRoomNoLongerStale) {
		d.logger.Debug("inactivity nudge skipped", zap.Int("chat_room_id", roomID), zap.Error(err))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create notification: %w", err)
	}

	observability.IncNotification("created")
	d.logger.Info("inactivity notification queued",
		zap.Int("notification_id", n.ID),
		zap.Int("chat_room_id", roomID),
		zap.Int("user_id", room.UserID),
		zap.Bool("degraded", text.Degraded))
	return true, nil
}

// Title is the push title used for a persona's nudge.
func Title(persona models.Persona) string {
	if persona.Name == "" {
		return "Your companion misses you"
	}
	return persona.Name + " misses you"
}
