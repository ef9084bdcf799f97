// Package memory is an in-process implementation of every repository
// contract. Each method runs under one lock, so the multi-row guarantees of
// the Postgres repositories (atomic message write, status CAS, one live
// notification per room) hold here as well.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"companion-chat/internal/models"
	"companion-chat/internal/repositories"
)

// Store keeps all entities in maps guarded by a single mutex.
type Store struct {
	mu sync.Mutex

	personas      map[int]models.Persona
	rooms         map[int]models.ChatRoom
	messages      map[int][]models.Message
	activity      []models.ActivityRecord
	notifications map[int]models.Notification
	devices       []models.Device

	nextID int
	now    func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		personas:      make(map[int]models.Persona),
		rooms:         make(map[int]models.ChatRoom),
		messages:      make(map[int][]models.Message),
		notifications: make(map[int]models.Notification),
		now:           time.Now,
	}
}

// WithClock replaces the clock used for server-side defaults.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// AddPersona registers a persona and returns it with its id.
func (s *Store) AddPersona(p models.Persona) models.Persona {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.id()
	s.personas[p.ID] = p
	return p
}

// SeedPersonas implements repositories.PersonaSeeder.
func (s *Store) SeedPersonas(_ context.Context, personas []models.Persona) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, p := range personas {
		if s.hasPersona(p.Name, p.Kind) {
			continue
		}
		p.ID = s.id()
		s.personas[p.ID] = p
		added++
	}
	return added, nil
}

func (s *Store) hasPersona(name, kind string) bool {
	for _, existing := range s.personas {
		if existing.Name == name && existing.Kind == kind {
			return true
		}
	}
	return false
}

func (s *Store) id() int {
	s.nextID++
	return s.nextID
}

// CreateOrGetRoom implements repositories.ChatRepository.
func (s *Store) CreateOrGetRoom(_ context.Context, userID int, personaID int) (models.ChatRoom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.personas[personaID]; !ok {
		return models.ChatRoom{}, repositories.ErrPersonaNotFound
	}
	for id, room := range s.rooms {
		if room.UserID == userID && room.PersonaID == personaID {
			room.Active = true
			s.rooms[id] = room
			return room, nil
		}
	}
	now := s.now()
	room := models.ChatRoom{ID: s.id(), UserID: userID, PersonaID: personaID, CreatedAt: now, LastMessageAt: now, Active: true}
	s.rooms[room.ID] = room
	return room, nil
}

// GetRoom implements repositories.ChatRepository.
func (s *Store) GetRoom(_ context.Context, roomID int) (models.ChatRoom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return models.ChatRoom{}, repositories.ErrChatRoomNotFound
	}
	return room, nil
}

// ListRooms implements repositories.ChatRepository.
func (s *Store) ListRooms(_ context.Context, userID int) ([]models.ChatRoomSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ChatRoomSummary
	for _, room := range s.rooms {
		if room.UserID != userID || !room.Active {
			continue
		}
		unread := 0
		for _, m := range s.messages[room.ID] {
			if !m.Read && m.Sender != models.SenderUser {
				unread++
			}
		}
		out = append(out, models.ChatRoomSummary{ChatRoom: room, PersonaName: s.personas[room.PersonaID].Name, UnreadCount: unread})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessageAt.After(out[j].LastMessageAt) })
	return out, nil
}

// DeactivateRoom implements repositories.ChatRepository.
func (s *Store) DeactivateRoom(_ context.Context, roomID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return repositories.ErrChatRoomNotFound
	}
	room.Active = false
	s.rooms[roomID] = room
	return nil
}

// GetPersona implements repositories.ChatRepository.
func (s *Store) GetPersona(_ context.Context, personaID int) (models.Persona, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.personas[personaID]
	if !ok {
		return models.Persona{}, repositories.ErrPersonaNotFound
	}
	return p, nil
}

// CreateMessage implements repositories.MessageRepository.
func (s *Store) CreateMessage(_ context.Context, draft models.MessageDraft, at time.Time) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[draft.ChatRoomID]
	if !ok {
		return models.Message{}, repositories.ErrChatRoomNotFound
	}
	if at.After(room.LastMessageAt) {
		room.LastMessageAt = at
		s.rooms[room.ID] = room
	}
	msg := models.Message{ID: s.id(), ChatRoomID: draft.ChatRoomID, Sender: draft.Sender, Content: draft.Content, CreatedAt: at}
	s.messages[room.ID] = append(s.messages[room.ID], msg)
	return msg, nil
}

// ListMessages implements repositories.MessageRepository.
func (s *Store) ListMessages(ctx context.Context, roomID int, limit int) ([]models.Message, error) {
	if limit > 0 {
		return s.RecentMessages(ctx, roomID, limit)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedMessages(roomID), nil
}

// RecentMessages implements repositories.MessageRepository.
func (s *Store) RecentMessages(_ context.Context, roomID int, n int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.sortedMessages(roomID)
	if n >= 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return msgs, nil
}

func (s *Store) sortedMessages(roomID int) []models.Message {
	msgs := append([]models.Message(nil), s.messages[roomID]...)
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	return msgs
}

// MarkAllRead implements repositories.MessageRepository.
func (s *Store) MarkAllRead(_ context.Context, roomID int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for i, m := range s.messages[roomID] {
		if !m.Read {
			s.messages[roomID][i].Read = true
			count++
		}
	}
	return count, nil
}

// Append implements repositories.ActivityRepository.
func (s *Store) Append(_ context.Context, draft models.ActivityDraft) (models.ActivityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if draft.ChatRoomID != nil {
		if _, ok := s.rooms[*draft.ChatRoomID]; !ok {
			return models.ActivityRecord{}, repositories.ErrChatRoomNotFound
		}
	}
	rec := models.ActivityRecord{
		ID:           s.id(),
		UserID:       draft.UserID,
		ChatRoomID:   copyInt(draft.ChatRoomID),
		ActivityType: draft.ActivityType,
		ActivityAt:   draft.ActivityAt,
		CreatedAt:    s.now(),
	}
	s.activity = append(s.activity, rec)
	return rec, nil
}

// LastActivityForRoom implements repositories.ActivityRepository.
func (s *Store) LastActivityForRoom(_ context.Context, roomID int) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastRoomActivity(roomID)
	return last, ok, nil
}

// LastActivityForUser implements repositories.ActivityRepository.
func (s *Store) LastActivityForUser(_ context.Context, userID int) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last time.Time
	found := false
	for _, rec := range s.activity {
		if rec.UserID == userID && (!found || rec.ActivityAt.After(last)) {
			last, found = rec.ActivityAt, true
		}
	}
	return last, found, nil
}

func (s *Store) lastRoomActivity(roomID int) (time.Time, bool) {
	var last time.Time
	found := false
	for _, rec := range s.activity {
		if rec.ChatRoomID != nil && *rec.ChatRoomID == roomID && (!found || rec.ActivityAt.After(last)) {
			last, found = rec.ActivityAt, true
		}
	}
	return last, found
}

// FindStale implements repositories.ActivityRepository.
func (s *Store) FindStale(_ context.Context, cutoff time.Time, limit int) ([]models.StaleRoom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.StaleRoom
	for _, room := range s.rooms {
		if !room.Active {
			continue
		}
		last, ok := s.lastRoomActivity(room.ID)
		if !ok || !last.Before(cutoff) || s.episodeNotified(room.ID, last) {
			continue
		}
		out = append(out, models.StaleRoom{ChatRoomID: room.ID, UserID: room.UserID, PersonaID: room.PersonaID, LastActivityAt: last})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivityAt.Before(out[j].LastActivityAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) episodeNotified(roomID int, lastActivity time.Time) bool {
	for _, n := range s.notifications {
		if n.ChatRoomID == nil || *n.ChatRoomID != roomID {
			continue
		}
		if n.Status.Live() {
			return true
		}
		if (n.Status == models.StatusRead || n.Status == models.StatusFailed) && !n.CreatedAt.Before(lastActivity) {
			return true
		}
	}
	return false
}

// DeleteBefore implements repositories.ActivityRepository.
func (s *Store) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.activity[:0]
	var removed int64
	for _, rec := range s.activity {
		if rec.ActivityAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	s.activity = kept
	return removed, nil
}

// Create implements repositories.NotificationRepository.
func (s *Store) Create(_ context.Context, draft models.NotificationDraft, at time.Time) (models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if draft.ChatRoomID != nil && s.liveFor(*draft.ChatRoomID) {
		return models.Notification{}, repositories.ErrLiveNotificationExists
	}
	return s.insertNotification(draft, at), nil
}

// CreateForIdleRoom implements repositories.NotificationRepository.
func (s *Store) CreateForIdleRoom(_ context.Context, draft models.NotificationDraft, cutoff time.Time, at time.Time) (models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if draft.ChatRoomID == nil {
		return models.Notification{}, repositories.ErrChatRoomNotFound
	}
	if last, ok := s.lastRoomActivity(*draft.ChatRoomID); ok && !last.Before(cutoff) {
		return models.Notification{}, repositories.ErrRoomNoLongerStale
	}
	if s.liveFor(*draft.ChatRoomID) {
		return models.Notification{}, repositories.ErrLiveNotificationExists
	}
	return s.insertNotification(draft, at), nil
}

func (s *Store) liveFor(roomID int) bool {
	for _, n := range s.notifications {
		if n.ChatRoomID != nil && *n.ChatRoomID == roomID && n.Status.Live() {
			return true
		}
	}
	return false
}

func (s *Store) insertNotification(draft models.NotificationDraft, at time.Time) models.Notification {
	n := models.Notification{
		ID:          s.id(),
		UserID:      draft.UserID,
		ChatRoomID:  copyInt(draft.ChatRoomID),
		Type:        draft.Type,
		Title:       draft.Title,
		Content:     draft.Content,
		Status:      models.StatusPending,
		ScheduledAt: draft.ScheduledAt,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
	s.notifications[n.ID] = n
	return n
}

// Get implements repositories.NotificationRepository.
func (s *Store) Get(_ context.Context, id int) (models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return models.Notification{}, repositories.ErrNotificationNotFound
	}
	return n, nil
}

// ListForUser implements repositories.NotificationRepository.
func (s *Store) ListForUser(_ context.Context, userID int, limit int) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Notification
	for _, n := range s.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return truncate(out, limit), nil
}

// FetchDue implements repositories.NotificationRepository.
func (s *Store) FetchDue(_ context.Context, asOf time.Time, limit int) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Notification
	for _, n := range s.notifications {
		if n.Status == models.StatusPending && !n.ScheduledAt.After(asOf) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	return truncate(out, limit), nil
}

// CompareAndSetStatus implements repositories.NotificationRepository.
func (s *Store) CompareAndSetStatus(_ context.Context, id int, expected, next models.NotificationStatus, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok || n.Status != expected {
		return false, nil
	}
	if next == models.StatusSent && n.Type == models.NotificationInactivity && n.ChatRoomID != nil {
		if last, ok := s.lastRoomActivity(*n.ChatRoomID); ok && !last.Before(n.CreatedAt) {
			return false, nil
		}
	}
	n.Status = next
	n.UpdatedAt = at
	switch next {
	case models.StatusSent:
		n.SentAt = timePtr(at)
	case models.StatusRead:
		n.ReadAt = timePtr(at)
	}
	s.notifications[id] = n
	return true, nil
}

// ScheduleRetry implements repositories.NotificationRepository.
func (s *Store) ScheduleRetry(_ context.Context, id int, expectedRetryCount int, nextAttempt time.Time, reason string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok || n.Status != models.StatusPending || n.RetryCount != expectedRetryCount {
		return false, nil
	}
	kind := models.FailureTransient
	n.RetryCount = expectedRetryCount + 1
	n.ScheduledAt = nextAttempt
	n.FailureReason = &reason
	n.FailureKind = &kind
	n.UpdatedAt = at
	s.notifications[id] = n
	return true, nil
}

// MarkFailed implements repositories.NotificationRepository.
func (s *Store) MarkFailed(_ context.Context, id int, expectedRetryCount int, retryCount int, kind models.FailureKind, reason string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok || n.Status != models.StatusPending || n.RetryCount != expectedRetryCount {
		return false, nil
	}
	n.Status = models.StatusFailed
	n.RetryCount = retryCount
	n.FailureKind = &kind
	n.FailureReason = &reason
	n.UpdatedAt = at
	s.notifications[id] = n
	return true, nil
}

// DisableLiveForRoom implements repositories.NotificationRepository.
func (s *Store) DisableLiveForRoom(_ context.Context, roomID int, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for id, n := range s.notifications {
		if n.ChatRoomID != nil && *n.ChatRoomID == roomID && n.Status.Live() {
			n.Status = models.StatusDisabled
			n.UpdatedAt = at
			s.notifications[id] = n
			count++
		}
	}
	return count, nil
}

// ListRetryable implements repositories.NotificationRepository.
func (s *Store) ListRetryable(_ context.Context, budget int, limit int) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Notification
	for _, n := range s.notifications {
		if n.Status == models.StatusFailed && n.FailureKind != nil && *n.FailureKind == models.FailureTransient && n.RetryCount < budget {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return truncate(out, limit), nil
}

// DeleteTerminalBefore implements repositories.NotificationRepository.
func (s *Store) DeleteTerminalBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for id, n := range s.notifications {
		if n.Status.Terminal() && n.UpdatedAt.Before(cutoff) {
			delete(s.notifications, id)
			count++
		}
	}
	return count, nil
}

// RegisterDevice implements repositories.DeviceRepository.
func (s *Store) RegisterDevice(_ context.Context, userID int, token, platform string) (models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.devices[:0]
	for _, d := range s.devices {
		if d.Token != token {
			kept = append(kept, d)
		}
	}
	device := models.Device{ID: s.id(), UserID: userID, Token: token, Platform: platform, CreatedAt: s.now()}
	s.devices = append(kept, device)
	return device, nil
}

// LatestDevice implements repositories.DeviceRepository.
func (s *Store) LatestDevice(_ context.Context, userID int) (models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.devices) - 1; i >= 0; i-- {
		if s.devices[i].UserID == userID {
			return s.devices[i], nil
		}
	}
	return models.Device{}, repositories.ErrDeviceNotFound
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func timePtr(t time.Time) *time.Time {
	return &t
}

var (
	_ repositories.ChatRepository         = (*Store)(nil)
	_ repositories.MessageRepository      = (*Store)(nil)
	_ repositories.ActivityRepository     = (*Store)(nil)
	_ repositories.NotificationRepository = (*Store)(nil)
	_ repositories.PersonaSeeder          = (*Store)(nil)
	_ repositories.DeviceRepository       = (*Store)(nil)
)
