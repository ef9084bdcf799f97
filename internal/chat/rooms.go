package chat

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"companion-chat/internal/models"
)

// OpenRoom returns the user's room with the persona, creating it on first use
// and reactivating it if it was closed.
func (d *Dispatcher) OpenRoom(ctx context.Context, userID, personaID int) (models.ChatRoom, error) {
	if userID <= 0 {
		return models.ChatRoom{}, &models.ValidationError{Field: "user_id", Reason: "must be positive"}
	}
	if personaID <= 0 {
		return models.ChatRoom{}, &models.ValidationError{Field: "persona_id", Reason: "must be positive"}
	}
	if _, err := d.chats.GetPersona(ctx, personaID); err != nil {
		return models.ChatRoom{}, err
	}
	room, err := d.chats.CreateOrGetRoom(ctx, userID, personaID)
	if err != nil {
		return models.ChatRoom{}, fmt.Errorf("create room: %w", err)
	}
	return room, nil
}

func (d *Dispatcher) ListRooms(ctx context.Context, userID int) ([]models.ChatRoomSummary, error) {
	return d.chats.ListRooms(ctx, userID)
}

// CloseRoom soft-deactivates the room and drops its queued nudge. Its history
// stays readable.
func (d *Dispatcher) CloseRoom(ctx context.Context, chatRoomID, userID int) error {
	room, err := d.ownedRoom(ctx, chatRoomID, userID)
	if err != nil {
		return err
	}
	if err := d.chats.DeactivateRoom(ctx, room.ID); err != nil {
		return fmt.Errorf("deactivate room: %w", err)
	}
	if _, err := d.activity.EndEpisode(ctx, room.ID); err != nil {
		return err
	}
	d.logger.Info("chat room closed", zap.Int("chat_room_id", room.ID), zap.Int("user_id", userID))
	return nil
}

// Opened records that the user is looking at the room.
func (d *Dispatcher) Opened(ctx context.Context, chatRoomID, userID int) error {
	room, err := d.activeRoom(ctx, chatRoomID, userID)
	if err != nil {
		return err
	}
	if _, err := d.activity.Record(ctx, userID, &room.ID, models.ActivityChatOpened); err != nil {
		return fmt.Errorf("record activity: %w", err)
	}
	return nil
}

func (d *Dispatcher) ownedRoom(ctx context.Context, chatRoomID, userID int) (models.ChatRoom, error) {
	if chatRoomID <= 0 {
		return models.ChatRoom{}, &models.ValidationError{Field: "chat_room_id", Reason: "must be positive"}
	}
	if userID <= 0 {
		return models.ChatRoom{}, &models.ValidationError{Field: "user_id", Reason: "must be positive"}
	}
	room, err := d.chats.GetRoom(ctx, chatRoomID)
	if err != nil {
		return models.ChatRoom{}, err
	}
	if !room.OwnedBy(userID) {
		return models.ChatRoom{}, ErrForbidden
	}
	return room, nil
}

func (d *Dispatcher) activeRoom(ctx context.Context, chatRoomID, userID int) (models.ChatRoom, error) {
	room, err := d.ownedRoom(ctx, chatRoomID, userID)
	if err != nil {
		return models.ChatRoom{}, err
	}
	if !room.Active {
		return models.ChatRoom{}, ErrRoomInactive
	}
	return room, nil
}
