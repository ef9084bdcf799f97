package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser   Sender = "USER"
	SenderAgent  Sender = "AGENT"
	SenderSystem Sender = "SYSTEM"
)

// Valid reports whether s is a known sender.
func (s Sender) Valid() bool {
	switch s {
	case SenderUser, SenderAgent, SenderSystem:
		return true
	}
	return false
}

// MessageDraft is a message that has not been stored yet.
type MessageDraft struct {
	ChatRoomID int
	Sender     Sender
	Content    string
}

// NewMessageDraft trims content and validates the draft. A maxLen of zero
// disables the length check.
func NewMessageDraft(chatRoomID int, sender Sender, content string, maxLen int) (MessageDraft, error) {
	if chatRoomID <= 0 {
		return MessageDraft{}, invalid("chat_room_id", "is required")
	}
	if !sender.Valid() {
		return MessageDraft{}, invalid("sender", "is required")
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return MessageDraft{}, invalid("content", "must not be blank")
	}
	if maxLen > 0 && utf8.RuneCountInString(content) > maxLen {
		return MessageDraft{}, invalid("content", "is too long")
	}
	return MessageDraft{ChatRoomID: chatRoomID, Sender: sender, Content: content}, nil
}

// Message represents a stored chat message. Only Read changes after creation.
type Message struct {
	ID         int       `db:"id" json:"id"`
	ChatRoomID int       `db:"chat_room_id" json:"chat_room_id"`
	Sender     Sender    `db:"sender" json:"sender"`
	Content    string    `db:"content" json:"content"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	Read       bool      `db:"is_read" json:"read"`
}

// Chat event types.
const (
	EventMessage = "message"
	EventTyping  = "typing"
	EventRead    = "read"
)

// ChatEvent is broadcasted through websockets.
type ChatEvent struct {
	Type       string   `json:"type"`
	ChatRoomID int      `json:"chat_room_id"`
	Message    *Message `json:"message,omitempty"`
	UserID     int      `json:"user_id,omitempty"`
	Typing     *bool    `json:"typing,omitempty"`
	ReadCount  int      `json:"read_count,omitempty"`
}
