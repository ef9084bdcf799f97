package models

import "time"

// Persona is the pet-backed character a user talks to.
type Persona struct {
	ID     int    `db:"id" json:"id"`
	Name   string `db:"name" json:"name"`
	Kind   string `db:"kind" json:"kind"`
	Traits string `db:"traits" json:"traits"`
}

// DefaultPersonas are the companions every deployment starts with. Seeding
// is keyed by name and kind, so re-running it is a no-op.
func DefaultPersonas() []Persona {
	return []Persona{
		{Name: "Mochi", Kind: "cat", Traits: "curious, a little aloof, loves naps"},
		{Name: "Biscuit", Kind: "dog", Traits: "loyal, excitable, always hungry"},
	}
}

// ChatRoom is the 1:1 conversation between a user and one persona.
// LastMessageAt only ever moves forward.
type ChatRoom struct {
	ID            int       `db:"id" json:"id"`
	UserID        int       `db:"user_id" json:"user_id"`
	PersonaID     int       `db:"persona_id" json:"persona_id"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	LastMessageAt time.Time `db:"last_message_at" json:"last_message_at"`
	Active        bool      `db:"active" json:"active"`
}

// OwnedBy reports whether the user is the room owner.
func (r ChatRoom) OwnedBy(userID int) bool {
	return r.UserID == userID
}

// ChatRoomSummary provides API-friendly view of a room for its owner.
type ChatRoomSummary struct {
	ChatRoom
	PersonaName string `db:"persona_name" json:"persona_name"`
	UnreadCount int    `db:"unread_count" json:"unread_count"`
}
