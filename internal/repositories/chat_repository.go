package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"companion-chat/internal/models"
)

var (
	ErrChatRoomNotFound = errors.New("chat room not found")
	ErrPersonaNotFound  = errors.New("persona not found")
)

// ChatRepository abstracts chat room persistence.
type ChatRepository interface {
	CreateOrGetRoom(ctx context.Context, userID int, personaID int) (models.ChatRoom, error)
	GetRoom(ctx context.Context, roomID int) (models.ChatRoom, error)
	ListRooms(ctx context.Context, userID int) ([]models.ChatRoomSummary, error)
	DeactivateRoom(ctx context.Context, roomID int) error
	GetPersona(ctx context.Context, personaID int) (models.Persona, error)
}

// PersonaSeeder installs the built-in personas.
type PersonaSeeder interface {
	SeedPersonas(ctx context.Context, personas []models.Persona) (int, error)
}

const chatRoomColumns = `id, user_id, persona_id, created_at, last_message_at, active`

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

// CreateOrGetRoom returns the room for the user/persona pairing, creating it
// on first use. A deactivated room is reactivated.
func (r *ChatRepo) CreateOrGetRoom(ctx context.Context, userID int, personaID int) (models.ChatRoom, error) {
	if _, err := r.GetPersona(ctx, personaID); err != nil {
		return models.ChatRoom{}, err
	}

	var room models.ChatRoom
	err := r.db.GetContext(ctx, &room, `INSERT INTO chat_rooms (user_id, persona_id) VALUES ($1, $2)
        ON CONFLICT (user_id, persona_id) DO UPDATE SET active = TRUE
        RETURNING `+chatRoomColumns, userID, personaID)
	if err != nil {
		return models.ChatRoom{}, fmt.Errorf("upsert chat room: %w", err)
	}
	return room, nil
}

// GetRoom fetches a room by id.
func (r *ChatRepo) GetRoom(ctx context.Context, roomID int) (models.ChatRoom, error) {
	var room models.ChatRoom
	err := r.db.GetContext(ctx, &room, `SELECT `+chatRoomColumns+` FROM chat_rooms WHERE id=$1`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ChatRoom{}, ErrChatRoomNotFound
	}
	return room, err
}

// ListRooms returns the active rooms of a user, most recently used first.
func (r *ChatRepo) ListRooms(ctx context.Context, userID int) ([]models.ChatRoomSummary, error) {
	query := `SELECT r.id, r.user_id, r.persona_id, r.created_at, r.last_message_at, r.active,
            p.name AS persona_name,
            (SELECT COUNT(*) FROM messages m WHERE m.chat_room_id = r.id AND m.is_read = FALSE AND m.sender <> 'USER') AS unread_count
        FROM chat_rooms r
        JOIN personas p ON p.id = r.persona_id
        WHERE r.user_id=$1 AND r.active = TRUE
        ORDER BY r.last_message_at DESC`
	var rooms []models.ChatRoomSummary
	if err := r.db.SelectContext(ctx, &rooms, query, userID); err != nil {
		return nil, err
	}
	return rooms, nil
}

// DeactivateRoom soft-deletes a room; rooms are never hard-deleted.
func (r *ChatRepo) DeactivateRoom(ctx context.Context, roomID int) error {
	res, err := r.db.ExecContext(ctx, `UPDATE chat_rooms SET active = FALSE WHERE id=$1`, roomID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrChatRoomNotFound
	}
	return nil
}

// GetPersona fetches the persona descriptor.
func (r *ChatRepo) GetPersona(ctx context.Context, personaID int) (models.Persona, error) {
	var persona models.Persona
	err := r.db.GetContext(ctx, &persona, `SELECT id, name, kind, traits FROM personas WHERE id=$1`, personaID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Persona{}, ErrPersonaNotFound
	}
	return persona, err
}

// SeedPersonas inserts personas missing by (name, kind) and returns how many
// were added.
func (r *ChatRepo) SeedPersonas(ctx context.Context, personas []models.Persona) (int, error) {
	added := 0
	for _, p := range personas {
		res, err := r.db.ExecContext(ctx, `INSERT INTO personas (name, kind, traits) VALUES ($1, $2, $3)
        ON CONFLICT (name, kind) DO NOTHING`, p.Name, p.Kind, p.Traits)
		if err != nil {
			return added, fmt.Errorf("seed persona %q: %w", p.Name, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			added += int(n)
		}
	}
	return added, nil
}

var _ PersonaSeeder = (*ChatRepo)(nil)
