package notification

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"companion-chat/internal/models"
	"companion-chat/internal/observability"
)

var (
	ErrForbidden   = errors.New("notification belongs to another user")
	ErrNotReadable = errors.New("notification was not delivered")
)

// CreateSystem queues a SYSTEM notification due immediately. It is delivered
// by the regular pass.
func (d *Dispatcher) CreateSystem(ctx context.Context, userID int, title, content string) (models.Notification, error) {
	now := d.now()
	draft, err := models.NewNotificationDraft(userID, nil, models.NotificationSystem, title, content, now)
	if err != nil {
		return models.Notification{}, err
	}
	n, err := d.notifications.Create(ctx, draft, now)
	if err != nil {
		return models.Notification{}, fmt.Errorf("create notification: %w", err)
	}
	observability.IncNotification("created")
	return n, nil
}

// List returns the user's notifications, newest first.
func (d *Dispatcher) List(ctx context.Context, userID, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = d.opts.BatchSize
	}
	return d.notifications.ListForUser(ctx, userID, limit)
}

// MarkRead moves a SENT notification to READ. Reading an inactivity nudge
// counts as opening its chat room. Marking an already read notification is
// a no-op.
func (d *Dispatcher) MarkRead(ctx context.Context, userID, id int) (models.Notification, error) {
	n, err := d.notifications.Get(ctx, id)
	if err != nil {
		return models.Notification{}, err
	}
	if n.UserID != userID {
		return models.Notification{}, ErrForbidden
	}
	if n.Status == models.StatusRead {
		return n, nil
	}

	ok, err := d.notifications.CompareAndSetStatus(ctx, id, models.StatusSent, models.StatusRead, d.now())
	if err != nil {
		return models.Notification{}, fmt.Errorf("mark notification read: %w", err)
	}
	if !ok {
		return models.Notification{}, ErrNotReadable
	}
	observability.IncNotification("read")

	if n.ChatRoomID != nil && d.activity != nil {
		if _, err := d.activity.Record(ctx, userID, n.ChatRoomID, models.ActivityChatOpened); err != nil {
			d.logger.Warn("record chat opened from notification failed",
				zap.Int("notification_id", id), zap.Error(err))
		}
	}
	return d.notifications.Get(ctx, id)
}

// GetRetryable lists FAILED notifications whose failure was transient and
// whose retry count is still under the operator budget.
func (d *Dispatcher) GetRetryable(ctx context.Context, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = d.opts.BatchSize
	}
	return d.notifications.ListRetryable(ctx, d.opts.RetryableBudget, limit)
}

// Cleanup purges terminal notifications and old activity past their
// retention windows.
func (d *Dispatcher) Cleanup(ctx context.Context) (CleanupResult, error) {
	var res CleanupResult
	removed, err := d.notifications.DeleteTerminalBefore(ctx, d.now().Add(-d.opts.NotificationRetention))
	if err != nil {
		return res, fmt.Errorf("purge notifications: %w", err)
	}
	res.Notifications = removed

	if d.activity != nil {
		removed, err = d.activity.Purge(ctx, d.opts.ActivityRetention)
		if err != nil {
			return res, fmt.Errorf("purge activity: %w", err)
		}
		res.Activity = removed
	}

	if res.Notifications > 0 || res.Activity > 0 {
		d.logger.Info("cleanup finished",
			zap.Int64("notifications", res.Notifications),
			zap.Int64("activity", res.Activity))
	}
	return res, nil
}
