package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"companion-chat/internal/models"
	"companion-chat/internal/repositories"
	"companion-chat/internal/repositories/memory"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T) (*memory.Store, models.ChatRoom) {
	t.Helper()
	store := memory.New().WithClock(func() time.Time { return base })
	p := store.AddPersona(models.Persona{Name: "Mochi", Kind: "cat"})
	room, err := store.CreateOrGetRoom(context.Background(), 1, p.ID)
	require.NoError(t, err)
	return store, room
}

func activity(t *testing.T, store *memory.Store, room models.ChatRoom, at time.Time) {
	t.Helper()
	draft, err := models.NewActivityDraft(room.UserID, &room.ID, models.ActivityMessageSent, at)
	require.NoError(t, err)
	_, err = store.Append(context.Background(), draft)
	require.NoError(t, err)
}

func idleDraft(t *testing.T, room models.ChatRoom) models.NotificationDraft {
	t.Helper()
	draft, err := models.NewNotificationDraft(room.UserID, &room.ID, models.NotificationInactivity, "Mochi misses you", "meow?", base)
	require.NoError(t, err)
	return draft
}

func TestCreateOrGetRoomIsOnePerPairing(t *testing.T) {
	ctx := context.Background()
	store, room := seed(t)

	again, err := store.CreateOrGetRoom(ctx, 1, room.PersonaID)
	require.NoError(t, err)
	assert.Equal(t, room.ID, again.ID)

	require.NoError(t, store.DeactivateRoom(ctx, room.ID))
	reopened, err := store.CreateOrGetRoom(ctx, 1, room.PersonaID)
	require.NoError(t, err)
	assert.True(t, reopened.Active)

	_, err = store.CreateOrGetRoom(ctx, 1, 999)
	assert.ErrorIs(t, err, repositories.ErrPersonaNotFound)
}

func TestCreateMessageKeepsLastMessageAtMonotonic(t *testing.T) {
	ctx := context.Background()
	store, room := seed(t)
	draft, err := models.NewMessageDraft(room.ID, models.SenderUser, "hi", 0)
	require.NoError(t, err)

	_, err = store.CreateMessage(ctx, draft, base.Add(time.Minute))
	require.NoError(t, err)
	_, err = store.CreateMessage(ctx, draft, base.Add(-time.Minute))
	require.NoError(t, err)

	got, err := store.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, base.Add(time.Minute), got.LastMessageAt)

	recent, err := store.RecentMessages(ctx, room.ID, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, base.Add(time.Minute), recent[0].CreatedAt)
}

func TestListRoomsCountsUnreadAgentMessages(t *testing.T) {
	ctx := context.Background()
	store, room := seed(t)
	for _, sender := range []models.Sender{models.SenderUser, models.SenderAgent, models.SenderAgent} {
		draft, err := models.NewMessageDraft(room.ID, sender, "x", 0)
		require.NoError(t, err)
		_, err = store.CreateMessage(ctx, draft, base)
		require.NoError(t, err)
	}

	rooms, err := store.ListRooms(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, 2, rooms[0].UnreadCount)
	assert.Equal(t, "Mochi", rooms[0].PersonaName)

	n, err := store.MarkAllRead(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	rooms, err = store.ListRooms(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, rooms[0].UnreadCount)
}

func TestCreateForIdleRoomGuards(t *testing.T) {
	ctx := context.Background()
	store, room := seed(t)
	activity(t, store, room, base.Add(-3*time.Hour))
	cutoff := base.Add(-2 * time.Hour)

	n, err := store.CreateForIdleRoom(ctx, idleDraft(t, room), cutoff, base)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, n.Status)

	_, err = store.CreateForIdleRoom(ctx, idleDraft(t, room), cutoff, base)
	assert.ErrorIs(t, err, repositories.ErrLiveNotificationExists)

	_, err = store.DisableLiveForRoom(ctx, room.ID, base)
	require.NoError(t, err)
	activity(t, store, room, base.Add(-time.Hour))
	_, err = store.CreateForIdleRoom(ctx, idleDraft(t, room), cutoff, base)
	assert.ErrorIs(t, err, repositories.ErrRoomNoLongerStale)
}

func TestFindStaleIsEpisodeAware(t *testing.T) {
	ctx := context.Background()
	store, room := seed(t)
	activity(t, store, room, base.Add(-3*time.Hour))
	cutoff := base.Add(-2 * time.Hour)

	stale, err := store.FindStale(ctx, cutoff, 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, room.ID, stale[0].ChatRoomID)

	n, err := store.CreateForIdleRoom(ctx, idleDraft(t, room), cutoff, base)
	require.NoError(t, err)
	ok, err := store.MarkFailed(ctx, n.ID, 0, 0, models.FailurePermanent, "no push destination", base)
	require.NoError(t, err)
	require.True(t, ok)

	stale, err = store.FindStale(ctx, cutoff, 10)
	require.NoError(t, err)
	assert.Empty(t, stale)

	activity(t, store, room, base.Add(time.Minute))
	stale, err = store.FindStale(ctx, base.Add(3*time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, stale, 1)
}

func TestCompareAndSetStatus(t *testing.T) {
	ctx := context.Background()
	store, room := seed(t)
	n, err := store.Create(ctx, idleDraft(t, room), base)
	require.NoError(t, err)

	ok, err := store.CompareAndSetStatus(ctx, n.ID, models.StatusPending, models.StatusSent, base)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.CompareAndSetStatus(ctx, n.ID, models.StatusPending, models.StatusSent, base)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := store.Get(ctx, n.ID)
	require.NoError(t, err)
	require.NotNil(t, got.SentAt)
	assert.Equal(t, base, *got.SentAt)
}

func TestIdleNudgeNotSentAfterFreshActivity(t *testing.T) {
	ctx := context.Background()
	store, room := seed(t)
	activity(t, store, room, base.Add(-3*time.Hour))
	n, err := store.CreateForIdleRoom(ctx, idleDraft(t, room), base.Add(-2*time.Hour), base)
	require.NoError(t, err)

	// Activity lands without the live nudge being disabled yet.
	activity(t, store, room, base.Add(time.Second))

	ok, err := store.CompareAndSetStatus(ctx, n.ID, models.StatusPending, models.StatusSent, base.Add(2*time.Second))
	require.NoError(t, err)
	assert.False(t, ok)
	got, err := store.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Nil(t, got.SentAt)

	disabled, err := store.DisableLiveForRoom(ctx, room.ID, base.Add(3*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), disabled)

	system, err := models.NewNotificationDraft(room.UserID, nil, models.NotificationSystem, "t", "c", base)
	require.NoError(t, err)
	sys, err := store.Create(ctx, system, base)
	require.NoError(t, err)
	ok, err = store.CompareAndSetStatus(ctx, sys.ID, models.StatusPending, models.StatusSent, base.Add(4*time.Second))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestScheduleRetryRequiresExpectedCount(t *testing.T) {
	ctx := context.Background()
	store, room := seed(t)
	n, err := store.Create(ctx, idleDraft(t, room), base)
	require.NoError(t, err)

	ok, err := store.ScheduleRetry(ctx, n.ID, 1, base.Add(time.Minute), "timeout", base)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.ScheduleRetry(ctx, n.ID, 0, base.Add(2*time.Minute), "timeout", base)
	require.NoError(t, err)
	assert.True(t, ok)

	due, err := store.FetchDue(ctx, base, 10)
	require.NoError(t, err)
	assert.Empty(t, due)
	due, err = store.FetchDue(ctx, base.Add(2*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 1, due[0].RetryCount)
}

func TestDeleteTerminalBeforeKeepsLive(t *testing.T) {
	ctx := context.Background()
	store, room := seed(t)
	old := base.Add(-40 * 24 * time.Hour)

	sent, err := store.Create(ctx, idleDraft(t, room), old)
	require.NoError(t, err)
	_, err = store.CompareAndSetStatus(ctx, sent.ID, models.StatusPending, models.StatusSent, old)
	require.NoError(t, err)

	system, err := models.NewNotificationDraft(1, nil, models.NotificationSystem, "t", "c", old)
	require.NoError(t, err)
	failed, err := store.Create(ctx, system, old)
	require.NoError(t, err)
	_, err = store.MarkFailed(ctx, failed.ID, 0, 0, models.FailurePermanent, "gone", old)
	require.NoError(t, err)

	removed, err := store.DeleteTerminalBefore(ctx, base.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = store.Get(ctx, sent.ID)
	assert.NoError(t, err)
	_, err = store.Get(ctx, failed.ID)
	assert.ErrorIs(t, err, repositories.ErrNotificationNotFound)
}

func TestLatestDevice(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	_, err := store.LatestDevice(ctx, 1)
	assert.ErrorIs(t, err, repositories.ErrDeviceNotFound)

	_, err = store.RegisterDevice(ctx, 1, "tok-a", "ios")
	require.NoError(t, err)
	_, err = store.RegisterDevice(ctx, 1, "tok-b", "android")
	require.NoError(t, err)

	d, err := store.LatestDevice(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "tok-b", d.Token)
}

func TestSeedPersonasIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	added, err := store.SeedPersonas(ctx, models.DefaultPersonas())
	require.NoError(t, err)
	assert.Equal(t, len(models.DefaultPersonas()), added)

	added, err = store.SeedPersonas(ctx, models.DefaultPersonas())
	require.NoError(t, err)
	assert.Zero(t, added)

	room, err := store.CreateOrGetRoom(ctx, 1, 1)
	require.NoError(t, err)
	persona, err := store.GetPersona(ctx, room.PersonaID)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultPersonas()[0].Name, persona.Name)
}
