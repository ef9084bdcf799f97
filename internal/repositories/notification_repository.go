package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"companion-chat/internal/models"
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
	// ErrLiveNotificationExists is returned when the room already has a
	// PENDING or SENT notification.
	ErrLiveNotificationExists = errors.New("live notification already exists for chat room")
	// ErrRoomNoLongerStale is returned when activity arrived after the idle cutoff.
	ErrRoomNoLongerStale = errors.New("chat room is no longer stale")
)

// NotificationRepository defines notification persistence. Every status
// change is a compare-and-swap on the current status.
type NotificationRepository interface {
	Create(ctx context.Context, draft models.NotificationDraft, at time.Time) (models.Notification, error)
	// CreateForIdleRoom inserts a PENDING notification only if the room has no
	// live notification and no activity at or after cutoff.
	CreateForIdleRoom(ctx context.Context, draft models.NotificationDraft, cutoff time.Time, at time.Time) (models.Notification, error)
	Get(ctx context.Context, id int) (models.Notification, error)
	ListForUser(ctx context.Context, userID int, limit int) ([]models.Notification, error)
	FetchDue(ctx context.Context, asOf time.Time, limit int) ([]models.Notification, error)
	CompareAndSetStatus(ctx context.Context, id int, expected, next models.NotificationStatus, at time.Time) (bool, error)
	ScheduleRetry(ctx context.Context, id int, expectedRetryCount int, nextAttempt time.Time, reason string, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, id int, expectedRetryCount int, retryCount int, kind models.FailureKind, reason string, at time.Time) (bool, error)
	DisableLiveForRoom(ctx context.Context, roomID int, at time.Time) (int64, error)
	ListRetryable(ctx context.Context, budget int, limit int) ([]models.Notification, error)
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

const notificationColumns = `id, user_id, chat_room_id, type, title, content, status, scheduled_at, sent_at, read_at,
    retry_count, failure_reason, failure_kind, created_at, updated_at`

// NotificationRepo is a sqlx-backed repository.
type NotificationRepo struct {
	db *sqlx.DB
}

// NewNotificationRepo constructs NotificationRepo.
func NewNotificationRepo(db *sqlx.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

// Create stores a PENDING notification.
func (r *NotificationRepo) Create(ctx context.Context, draft models.NotificationDraft, at time.Time) (models.Notification, error) {
	var n models.Notification
	err := r.db.GetContext(ctx, &n, `INSERT INTO notifications (user_id, chat_room_id, type, title, content, status, scheduled_at, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, 'PENDING', $6, $7, $7)
        RETURNING `+notificationColumns,
		draft.UserID, draft.ChatRoomID, draft.Type, draft.Title, draft.Content, draft.ScheduledAt, at)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return models.Notification{}, ErrLiveNotificationExists
	}
	return n, err
}

// CreateForIdleRoom relies on the partial unique index over live statuses.
func (r *NotificationRepo) CreateForIdleRoom(ctx context.Context, draft models.NotificationDraft, cutoff time.Time, at time.Time) (models.Notification, error) {
	if draft.ChatRoomID == nil {
		return models.Notification{}, fmt.Errorf("idle notification without chat room")
	}
	query := `INSERT INTO notifications (user_id, chat_room_id, type, title, content, status, scheduled_at, created_at, updated_at)
        SELECT $1, $2, $3, $4, $5, 'PENDING', $6, $7, $7
        WHERE NOT EXISTS (SELECT 1 FROM activity_records WHERE chat_room_id = $2 AND activity_at >= $8)
        ON CONFLICT (chat_room_id) WHERE status IN ('PENDING', 'SENT') AND chat_room_id IS NOT NULL DO NOTHING
        RETURNING ` + notificationColumns
	var n models.Notification
	err := r.db.GetContext(ctx, &n, query,
		draft.UserID, draft.ChatRoomID, draft.Type, draft.Title, draft.Content, draft.ScheduledAt, at, cutoff)
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Notification{}, err
	}

	var live bool
	if err := r.db.GetContext(ctx, &live, `SELECT EXISTS(SELECT 1 FROM notifications WHERE chat_room_id=$1 AND status IN ('PENDING', 'SENT'))`, *draft.ChatRoomID); err != nil {
		return models.Notification{}, err
	}
	if live {
		return models.Notification{}, ErrLiveNotificationExists
	}
	return models.Notification{}, ErrRoomNoLongerStale
}

// Get retrieves a single notification.
func (r *NotificationRepo) Get(ctx context.Context, id int) (models.Notification, error) {
	var n models.Notification
	err := r.db.GetContext(ctx, &n, `SELECT `+notificationColumns+` FROM notifications WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Notification{}, ErrNotificationNotFound
	}
	return n, err
}

// ListForUser returns a user's notifications, newest first.
func (r *NotificationRepo) ListForUser(ctx context.Context, userID int, limit int) ([]models.Notification, error) {
	var list []models.Notification
	err := r.db.SelectContext(ctx, &list, `SELECT `+notificationColumns+` FROM notifications WHERE user_id=$1
        ORDER BY created_at DESC, id DESC LIMIT $2`, userID, limit)
	return list, err
}

// FetchDue returns PENDING notifications scheduled at or before asOf.
func (r *NotificationRepo) FetchDue(ctx context.Context, asOf time.Time, limit int) ([]models.Notification, error) {
	var list []models.Notification
	err := r.db.SelectContext(ctx, &list, `SELECT `+notificationColumns+` FROM notifications
        WHERE status = 'PENDING' AND scheduled_at <= $1
        ORDER BY scheduled_at ASC, id ASC LIMIT $2`, asOf, limit)
	return list, err
}

// CompareAndSetStatus moves a notification from expected to next. It reports
// false when another actor changed the status first. An INACTIVITY nudge is
// never marked SENT once its room has activity at or after the nudge was
// created, even if the disabling update has not landed yet.
func (r *NotificationRepo) CompareAndSetStatus(ctx context.Context, id int, expected, next models.NotificationStatus, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET status = $3, updated_at = $4,
            sent_at = CASE WHEN $3 = 'SENT' THEN $4 ELSE sent_at END,
            read_at = CASE WHEN $3 = 'READ' THEN $4 ELSE read_at END
        WHERE id = $1 AND status = $2
          AND NOT ($3 = 'SENT' AND type = 'INACTIVITY' AND EXISTS (
              SELECT 1 FROM activity_records a
              WHERE a.chat_room_id = notifications.chat_room_id
                AND a.activity_at >= notifications.created_at))`, id, expected, next, at)
	return affectedOne(res, err)
}

// ScheduleRetry keeps the notification PENDING with a later attempt time.
func (r *NotificationRepo) ScheduleRetry(ctx context.Context, id int, expectedRetryCount int, nextAttempt time.Time, reason string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET retry_count = $2 + 1, scheduled_at = $3,
            failure_reason = $4, failure_kind = 'TRANSIENT', updated_at = $5
        WHERE id = $1 AND status = 'PENDING' AND retry_count = $2`, id, expectedRetryCount, nextAttempt, reason, at)
	return affectedOne(res, err)
}

// MarkFailed terminates a PENDING notification.
func (r *NotificationRepo) MarkFailed(ctx context.Context, id int, expectedRetryCount int, retryCount int, kind models.FailureKind, reason string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET status = 'FAILED', retry_count = $3,
            failure_kind = $4, failure_reason = $5, updated_at = $6
        WHERE id = $1 AND status = 'PENDING' AND retry_count = $2`, id, expectedRetryCount, retryCount, kind, reason, at)
	return affectedOne(res, err)
}

// DisableLiveForRoom disables every PENDING or SENT notification of the room.
func (r *NotificationRepo) DisableLiveForRoom(ctx context.Context, roomID int, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET status = 'DISABLED', updated_at = $2
        WHERE chat_room_id = $1 AND status IN ('PENDING', 'SENT')`, roomID, at)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListRetryable returns transient-class FAILED notifications still under budget.
func (r *NotificationRepo) ListRetryable(ctx context.Context, budget int, limit int) ([]models.Notification, error) {
	var list []models.Notification
	err := r.db.SelectContext(ctx, &list, `SELECT `+notificationColumns+` FROM notifications
        WHERE status = 'FAILED' AND failure_kind = 'TRANSIENT' AND retry_count < $1
        ORDER BY updated_at ASC, id ASC LIMIT $2`, budget, limit)
	return list, err
}

// DeleteTerminalBefore purges READ, FAILED and DISABLED notifications last
// touched before cutoff.
func (r *NotificationRepo) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE status IN ('READ', 'FAILED', 'DISABLED') AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func affectedOne(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count == 1, nil
}
