package ws

import "time"

// ConnInfo identifies one websocket connection to a chat room.
type ConnInfo struct {
	ConnID      string
	ChatRoomID  int
	UserID      int
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// Age is how long the connection has been open; zero when never stamped.
func (i ConnInfo) Age(now time.Time) time.Duration {
	if i.ConnectedAt.IsZero() {
		return 0
	}
	return now.Sub(i.ConnectedAt)
}
