package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"companion-chat/internal/models"
)

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	// CreateMessage stores the draft and advances the room's last_message_at
	// to at (never backwards) as one atomic unit.
	CreateMessage(ctx context.Context, draft models.MessageDraft, at time.Time) (models.Message, error)
	// ListMessages returns messages in creation order. limit <= 0 means all.
	ListMessages(ctx context.Context, roomID int, limit int) ([]models.Message, error)
	// RecentMessages returns the newest n messages, oldest first.
	RecentMessages(ctx context.Context, roomID int, n int) ([]models.Message, error)
	MarkAllRead(ctx context.Context, roomID int) (int, error)
}

const messageColumns = `id, chat_room_id, sender, content, created_at, is_read`

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message in a chat room.
func (r *MessageRepo) CreateMessage(ctx context.Context, draft models.MessageDraft, at time.Time) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE chat_rooms SET last_message_at = GREATEST(last_message_at, $2) WHERE id=$1`, draft.ChatRoomID, at)
	if err != nil {
		return models.Message{}, fmt.Errorf("advance last_message_at: %w", err)
	}
	if count, err := res.RowsAffected(); err != nil {
		return models.Message{}, err
	} else if count == 0 {
		return models.Message{}, ErrChatRoomNotFound
	}

	var msg models.Message
	if err := tx.GetContext(ctx, &msg, `INSERT INTO messages (chat_room_id, sender, content, created_at) VALUES ($1, $2, $3, $4)
        RETURNING `+messageColumns, draft.ChatRoomID, draft.Sender, draft.Content, at); err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.Message{}, fmt.Errorf("commit message: %w", err)
	}
	return msg, nil
}

// ListMessages returns ordered chat messages.
func (r *MessageRepo) ListMessages(ctx context.Context, roomID int, limit int) ([]models.Message, error) {
	if limit > 0 {
		return r.RecentMessages(ctx, roomID, limit)
	}
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages WHERE chat_room_id=$1 ORDER BY created_at ASC, id ASC`, roomID)
	return msgs, err
}

// RecentMessages returns the tail of the conversation used as a context window.
func (r *MessageRepo) RecentMessages(ctx context.Context, roomID int, n int) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM (
            SELECT ` + messageColumns + ` FROM messages WHERE chat_room_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2
        ) recent ORDER BY created_at ASC, id ASC`
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, query, roomID, n)
	return msgs, err
}

// MarkAllRead flags every unread message in the room and returns how many changed.
func (r *MessageRepo) MarkAllRead(ctx context.Context, roomID int) (int, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET is_read = TRUE WHERE chat_room_id=$1 AND is_read = FALSE`, roomID)
	if err != nil {
		return 0, err
	}
	count, err := res.RowsAffected()
	return int(count), err
}
