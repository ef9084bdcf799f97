package models

import (
	"strings"
	"time"
)

// NotificationType distinguishes idle nudges from operator/system messages.
type NotificationType string

const (
	NotificationInactivity NotificationType = "INACTIVITY"
	NotificationSystem     NotificationType = "SYSTEM"
)

// NotificationStatus is the delivery state of a notification.
//
//	PENDING -> SENT -> READ
//	PENDING -> FAILED
//	PENDING|SENT -> DISABLED (new activity in the room)
type NotificationStatus string

const (
	StatusPending  NotificationStatus = "PENDING"
	StatusSent     NotificationStatus = "SENT"
	StatusRead     NotificationStatus = "READ"
	StatusFailed   NotificationStatus = "FAILED"
	StatusDisabled NotificationStatus = "DISABLED"
)

// Live reports whether the status still represents the current idle episode.
func (s NotificationStatus) Live() bool {
	return s == StatusPending || s == StatusSent
}

// Terminal reports whether no further automatic transition can happen.
func (s NotificationStatus) Terminal() bool {
	return s == StatusRead || s == StatusFailed || s == StatusDisabled
}

// FailureKind records which delivery failure class ended a notification.
type FailureKind string

const (
	FailureTransient FailureKind = "TRANSIENT"
	FailurePermanent FailureKind = "PERMANENT"
)

// NotificationDraft is a notification that has not been stored yet.
type NotificationDraft struct {
	UserID      int
	ChatRoomID  *int
	Type        NotificationType
	Title       string
	Content     string
	ScheduledAt time.Time
}

// NewNotificationDraft validates a PENDING notification before insert.
func NewNotificationDraft(userID int, chatRoomID *int, typ NotificationType, title, content string, scheduledAt time.Time) (NotificationDraft, error) {
	if userID <= 0 {
		return NotificationDraft{}, invalid("user_id", "is required")
	}
	if typ != NotificationInactivity && typ != NotificationSystem {
		return NotificationDraft{}, invalid("type", "is unknown")
	}
	if typ == NotificationInactivity && chatRoomID == nil {
		return NotificationDraft{}, invalid("chat_room_id", "is required for inactivity notifications")
	}
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	if title == "" {
		return NotificationDraft{}, invalid("title", "must not be blank")
	}
	if content == "" {
		return NotificationDraft{}, invalid("content", "must not be blank")
	}
	if scheduledAt.IsZero() {
		return NotificationDraft{}, invalid("scheduled_at", "is required")
	}
	return NotificationDraft{
		UserID:      userID,
		ChatRoomID:  chatRoomID,
		Type:        typ,
		Title:       title,
		Content:     content,
		ScheduledAt: scheduledAt,
	}, nil
}

// Notification is a stored push notification.
type Notification struct {
	ID            int                `db:"id" json:"id"`
	UserID        int                `db:"user_id" json:"user_id"`
	ChatRoomID    *int               `db:"chat_room_id" json:"chat_room_id,omitempty"`
	Type          NotificationType   `db:"type" json:"type"`
	Title         string             `db:"title" json:"title"`
	Content       string             `db:"content" json:"content"`
	Status        NotificationStatus `db:"status" json:"status"`
	ScheduledAt   time.Time          `db:"scheduled_at" json:"scheduled_at"`
	SentAt        *time.Time         `db:"sent_at" json:"sent_at,omitempty"`
	ReadAt        *time.Time         `db:"read_at" json:"read_at,omitempty"`
	RetryCount    int                `db:"retry_count" json:"retry_count"`
	FailureReason *string            `db:"failure_reason" json:"failure_reason,omitempty"`
	FailureKind   *FailureKind       `db:"failure_kind" json:"failure_kind,omitempty"`
	CreatedAt     time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `db:"updated_at" json:"updated_at"`
}

// Device is a push destination registered by a user.
type Device struct {
	ID        int       `db:"id" json:"id"`
	UserID    int       `db:"user_id" json:"user_id"`
	Token     string    `db:"token" json:"token"`
	Platform  string    `db:"platform" json:"platform"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
