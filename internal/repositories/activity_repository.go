package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"companion-chat/internal/models"
)

// ActivityRepository is the append-only activity log.
type ActivityRepository interface {
	Append(ctx context.Context, draft models.ActivityDraft) (models.ActivityRecord, error)
	LastActivityForRoom(ctx context.Context, roomID int) (time.Time, bool, error)
	LastActivityForUser(ctx context.Context, userID int) (time.Time, bool, error)
	// FindStale returns active rooms whose last activity is strictly before
	// cutoff and that have no notification for the current idle episode.
	FindStale(ctx context.Context, cutoff time.Time, limit int) ([]models.StaleRoom, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ActivityRepo is a sqlx-backed repository.
type ActivityRepo struct {
	db *sqlx.DB
}

// NewActivityRepo constructs ActivityRepo.
func NewActivityRepo(db *sqlx.DB) *ActivityRepo {
	return &ActivityRepo{db: db}
}

// Append stores a new activity record.
func (r *ActivityRepo) Append(ctx context.Context, draft models.ActivityDraft) (models.ActivityRecord, error) {
	var rec models.ActivityRecord
	err := r.db.GetContext(ctx, &rec, `INSERT INTO activity_records (user_id, chat_room_id, activity_type, activity_at) VALUES ($1, $2, $3, $4)
        RETURNING id, user_id, chat_room_id, activity_type, activity_at, created_at`,
		draft.UserID, draft.ChatRoomID, draft.ActivityType, draft.ActivityAt)
	return rec, err
}

// LastActivityForRoom returns the newest activity timestamp recorded for the room.
func (r *ActivityRepo) LastActivityForRoom(ctx context.Context, roomID int) (time.Time, bool, error) {
	return r.lastActivity(ctx, `SELECT MAX(activity_at) FROM activity_records WHERE chat_room_id=$1`, roomID)
}

// LastActivityForUser returns the newest activity timestamp recorded for the user.
func (r *ActivityRepo) LastActivityForUser(ctx context.Context, userID int) (time.Time, bool, error) {
	return r.lastActivity(ctx, `SELECT MAX(activity_at) FROM activity_records WHERE user_id=$1`, userID)
}

func (r *ActivityRepo) lastActivity(ctx context.Context, query string, id int) (time.Time, bool, error) {
	var last sql.NullTime
	if err := r.db.GetContext(ctx, &last, query, id); err != nil {
		return time.Time{}, false, err
	}
	return last.Time, last.Valid, nil
}

// FindStale joins the activity log against notification status so rooms under
// a live notification are never returned twice.
func (r *ActivityRepo) FindStale(ctx context.Context, cutoff time.Time, limit int) ([]models.StaleRoom, error) {
	query := `SELECT r.id AS chat_room_id, r.user_id, r.persona_id, a.last_activity_at
        FROM chat_rooms r
        JOIN (
            SELECT chat_room_id, MAX(activity_at) AS last_activity_at
            FROM activity_records
            WHERE chat_room_id IS NOT NULL
            GROUP BY chat_room_id
        ) a ON a.chat_room_id = r.id
        WHERE r.active = TRUE
        AND a.last_activity_at < $1
        AND NOT EXISTS (
            SELECT 1 FROM notifications n
            WHERE n.chat_room_id = r.id
            AND (n.status IN ('PENDING', 'SENT')
                OR (n.status IN ('READ', 'FAILED') AND n.created_at >= a.last_activity_at))
        )
        ORDER BY a.last_activity_at ASC
        LIMIT $2`
	var rooms []models.StaleRoom
	err := r.db.SelectContext(ctx, &rooms, query, cutoff, limit)
	return rooms, err
}

// DeleteBefore purges activity records older than cutoff.
func (r *ActivityRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM activity_records WHERE activity_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
