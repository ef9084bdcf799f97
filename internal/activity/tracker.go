// Package activity keeps the append-only log of user activity and answers
// which chat rooms have gone idle.
package activity

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"companion-chat/internal/logging"
	"companion-chat/internal/models"
	"companion-chat/internal/observability"
	"companion-chat/internal/repositories"
)

// Tracker records activity and clears the live notification of a room as
// soon as its user is active again.
type Tracker struct {
	activity      repositories.ActivityRepository
	notifications repositories.NotificationRepository
	now           func() time.Time
	logger        *zap.Logger
}

// NewTracker builds a Tracker.
func NewTracker(activity repositories.ActivityRepository, notifications repositories.NotificationRepository, logger *zap.Logger) *Tracker {
	return &Tracker{
		activity:      activity,
		notifications: notifications,
		now:           time.Now,
		logger:        logging.OrNop(logger),
	}
}

// WithClock overrides the time source.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// Record appends an activity stamped now. For room-scoped activity every
// PENDING or SENT notification of the room is disabled, ending the idle episode.
func (t *Tracker) Record(ctx context.Context, userID int, chatRoomID *int, activityType models.ActivityType) (models.ActivityRecord, error) {
	at := t.now()
	draft, err := models.NewActivityDraft(userID, chatRoomID, activityType, at)
	if err != nil {
		return models.ActivityRecord{}, err
	}

	rec, err := t.activity.Append(ctx, draft)
	if err != nil {
		return models.ActivityRecord{}, fmt.Errorf("append activity: %w", err)
	}
	if chatRoomID == nil {
		return rec, nil
	}

	if _, err := t.disableLive(ctx, *chatRoomID, at, string(activityType)); err != nil {
		return rec, err
	}
	return rec, nil
}

// EndEpisode disables the room's live notifications without recording
// activity. Closing a room uses it so a queued nudge is never pushed.
func (t *Tracker) EndEpisode(ctx context.Context, chatRoomID int) (int64, error) {
	return t.disableLive(ctx, chatRoomID, t.now(), "room_closed")
}

func (t *Tracker) disableLive(ctx context.Context, chatRoomID int, at time.Time, cause string) (int64, error) {
	disabled, err := t.notifications.DisableLiveForRoom(ctx, chatRoomID, at)
	if err != nil {
		return 0, fmt.Errorf("disable live notifications: %w", err)
	}
	if disabled > 0 {
		for i := int64(0); i < disabled; i++ {
			observability.IncNotification("disabled")
		}
		t.logger.Info("idle episode ended",
			zap.Int("chat_room_id", chatRoomID),
			zap.String("cause", cause),
			zap.Int64("disabled", disabled))
	}
	return disabled, nil
}

// LastActivityForRoom returns the room's most recent activity, if any.
func (t *Tracker) LastActivityForRoom(ctx context.Context, chatRoomID int) (time.Time, bool, error) {
	return t.activity.LastActivityForRoom(ctx, chatRoomID)
}

// LastActivityForUser returns the user's most recent activity, if any.
func (t *Tracker) LastActivityForUser(ctx context.Context, userID int) (time.Time, bool, error) {
	return t.activity.LastActivityForUser(ctx, userID)
}

// FindStale lists rooms idle for longer than idleThreshold as of asOf that
// are not already covered by a notification for this idle episode.
func (t *Tracker) FindStale(ctx context.Context, idleThreshold time.Duration, asOf time.Time, limit int) ([]models.StaleRoom, error) {
	if idleThreshold <= 0 {
		return nil, &models.ValidationError{Field: "idle_threshold", Reason: "must be positive"}
	}
	return t.activity.FindStale(ctx, asOf.Add(-idleThreshold), limit)
}

// Purge drops activity older than the retention window.
func (t *Tracker) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	return t.activity.DeleteBefore(ctx, t.now().Add(-retention))
}
