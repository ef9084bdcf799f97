package models

import "time"

// ActivityType classifies a recorded user action.
type ActivityType string

const (
	ActivityMessageSent ActivityType = "MESSAGE_SENT"
	ActivityMessageRead ActivityType = "MESSAGE_READ"
	ActivityChatOpened  ActivityType = "CHAT_OPENED"
)

// Valid reports whether t is a known activity type.
func (t ActivityType) Valid() bool {
	switch t {
	case ActivityMessageSent, ActivityMessageRead, ActivityChatOpened:
		return true
	}
	return false
}

// ActivityDraft is an activity that has not been appended yet.
// A nil ChatRoomID records account-level activity.
type ActivityDraft struct {
	UserID       int
	ChatRoomID   *int
	ActivityType ActivityType
	ActivityAt   time.Time
}

// NewActivityDraft validates an activity before it is appended.
func NewActivityDraft(userID int, chatRoomID *int, activityType ActivityType, at time.Time) (ActivityDraft, error) {
	if userID <= 0 {
		return ActivityDraft{}, invalid("user_id", "is required")
	}
	if chatRoomID != nil && *chatRoomID <= 0 {
		return ActivityDraft{}, invalid("chat_room_id", "must be positive")
	}
	if !activityType.Valid() {
		return ActivityDraft{}, invalid("activity_type", "is unknown")
	}
	if at.IsZero() {
		return ActivityDraft{}, invalid("activity_at", "is required")
	}
	return ActivityDraft{UserID: userID, ChatRoomID: chatRoomID, ActivityType: activityType, ActivityAt: at}, nil
}

// ActivityRecord is an append-only activity log entry.
type ActivityRecord struct {
	ID           int          `db:"id" json:"id"`
	UserID       int          `db:"user_id" json:"user_id"`
	ChatRoomID   *int         `db:"chat_room_id" json:"chat_room_id,omitempty"`
	ActivityType ActivityType `db:"activity_type" json:"activity_type"`
	ActivityAt   time.Time    `db:"activity_at" json:"activity_at"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
}

// StaleRoom is a chat room whose last activity is older than the idle cutoff.
type StaleRoom struct {
	ChatRoomID     int       `db:"chat_room_id" json:"chat_room_id"`
	UserID         int       `db:"user_id" json:"user_id"`
	PersonaID      int       `db:"persona_id" json:"persona_id"`
	LastActivityAt time.Time `db:"last_activity_at" json:"last_activity_at"`
}

// EligibleAt is the moment the room becomes stale for the given threshold.
func (s StaleRoom) EligibleAt(idleThreshold time.Duration) time.Time {
	return s.LastActivityAt.Add(idleThreshold)
}
