package repositories_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"companion-chat/internal/db"
	"companion-chat/internal/models"
	"companion-chat/internal/repositories"
	"companion-chat/internal/repositories/memory"
)

// The sqlx repositories run against a real Postgres when
// COMPANION_TEST_DB_DSN is set. The memory store always runs the same cases.
const dsnEnv = "COMPANION_TEST_DB_DSN"

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type backend struct {
	repositories.ChatRepository
	repositories.ActivityRepository
	repositories.NotificationRepository
	repositories.PersonaSeeder
	personaID func(t *testing.T, name, kind string) int
}

type sqlRepos struct {
	*repositories.ChatRepo
	*repositories.ActivityRepo
	*repositories.NotificationRepo
}

func backends(t *testing.T) map[string]func(t *testing.T) backend {
	t.Helper()
	out := map[string]func(t *testing.T) backend{
		"memory": func(t *testing.T) backend {
			store := memory.New()
			return backend{
				ChatRepository:         store,
				ActivityRepository:     store,
				NotificationRepository: store,
				PersonaSeeder:          store,
				personaID: func(t *testing.T, name, kind string) int {
					for id := 1; ; id++ {
						p, err := store.GetPersona(context.Background(), id)
						require.NoError(t, err, "persona %s/%s not seeded", name, kind)
						if p.Name == name && p.Kind == kind {
							return p.ID
						}
					}
				},
			}
		},
	}
	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		return out
	}
	out["postgres"] = func(t *testing.T) backend {
		database, err := db.Connect(context.Background(), dsn, zap.NewNop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = database.Close() })
		_, err = database.Exec(`TRUNCATE notifications, activity_records, messages, chat_rooms, devices, personas RESTART IDENTITY CASCADE`)
		require.NoError(t, err)
		repos := sqlRepos{
			ChatRepo:         repositories.NewChatRepo(database),
			ActivityRepo:     repositories.NewActivityRepo(database),
			NotificationRepo: repositories.NewNotificationRepo(database),
		}
		return backend{
			ChatRepository:         repos,
			ActivityRepository:     repos,
			NotificationRepository: repos,
			PersonaSeeder:          repos.ChatRepo,
			personaID:              sqlPersonaID(database),
		}
	}
	return out
}

func sqlPersonaID(database *sqlx.DB) func(t *testing.T, name, kind string) int {
	return func(t *testing.T, name, kind string) int {
		var id int
		require.NoError(t, database.Get(&id, `SELECT id FROM personas WHERE name=$1 AND kind=$2`, name, kind))
		return id
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, b backend, room models.ChatRoom)) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			b := open(t)
			_, err := b.SeedPersonas(context.Background(), models.DefaultPersonas())
			require.NoError(t, err)
			persona := models.DefaultPersonas()[0]
			room, err := b.CreateOrGetRoom(context.Background(), 1, b.personaID(t, persona.Name, persona.Kind))
			require.NoError(t, err)
			fn(t, b, room)
		})
	}
}

func appendActivity(t *testing.T, b backend, room models.ChatRoom, at time.Time) {
	t.Helper()
	draft, err := models.NewActivityDraft(room.UserID, &room.ID, models.ActivityMessageSent, at)
	require.NoError(t, err)
	_, err = b.Append(context.Background(), draft)
	require.NoError(t, err)
}

func nudge(t *testing.T, room models.ChatRoom) models.NotificationDraft {
	t.Helper()
	draft, err := models.NewNotificationDraft(room.UserID, &room.ID, models.NotificationInactivity, "Mochi misses you", "meow?", base)
	require.NoError(t, err)
	return draft
}

func TestSeedPersonasTwiceAddsNothing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend, _ models.ChatRoom) {
		added, err := b.SeedPersonas(context.Background(), models.DefaultPersonas())
		require.NoError(t, err)
		assert.Zero(t, added)
	})
}

func TestIdleInsertGuards(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend, room models.ChatRoom) {
		ctx := context.Background()
		appendActivity(t, b, room, base.Add(-3*time.Hour))
		cutoff := base.Add(-2 * time.Hour)

		n, err := b.CreateForIdleRoom(ctx, nudge(t, room), cutoff, base)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, n.Status)

		_, err = b.CreateForIdleRoom(ctx, nudge(t, room), cutoff, base)
		assert.ErrorIs(t, err, repositories.ErrLiveNotificationExists)

		disabled, err := b.DisableLiveForRoom(ctx, room.ID, base)
		require.NoError(t, err)
		assert.Equal(t, int64(1), disabled)

		appendActivity(t, b, room, base.Add(-time.Hour))
		_, err = b.CreateForIdleRoom(ctx, nudge(t, room), cutoff, base)
		assert.ErrorIs(t, err, repositories.ErrRoomNoLongerStale)
	})
}

func TestStatusChangesAreCompareAndSwap(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend, room models.ChatRoom) {
		ctx := context.Background()
		n, err := b.Create(ctx, nudge(t, room), base)
		require.NoError(t, err)

		ok, err := b.CompareAndSetStatus(ctx, n.ID, models.StatusPending, models.StatusSent, base)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = b.CompareAndSetStatus(ctx, n.ID, models.StatusPending, models.StatusSent, base)
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := b.Get(ctx, n.ID)
		require.NoError(t, err)
		require.NotNil(t, got.SentAt)
		assert.True(t, base.Equal(*got.SentAt))
	})
}

func TestIdleNudgeRefusedAfterActivity(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend, room models.ChatRoom) {
		ctx := context.Background()
		appendActivity(t, b, room, base.Add(-3*time.Hour))
		n, err := b.CreateForIdleRoom(ctx, nudge(t, room), base.Add(-2*time.Hour), base)
		require.NoError(t, err)

		appendActivity(t, b, room, base.Add(time.Second))
		ok, err := b.CompareAndSetStatus(ctx, n.ID, models.StatusPending, models.StatusSent, base.Add(2*time.Second))
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = b.CompareAndSetStatus(ctx, n.ID, models.StatusPending, models.StatusDisabled, base.Add(2*time.Second))
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestRetryRequiresExpectedCount(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend, room models.ChatRoom) {
		ctx := context.Background()
		n, err := b.Create(ctx, nudge(t, room), base)
		require.NoError(t, err)

		ok, err := b.ScheduleRetry(ctx, n.ID, 1, base.Add(time.Minute), "timeout", base)
		require.NoError(t, err)
		assert.False(t, ok)
		ok, err = b.ScheduleRetry(ctx, n.ID, 0, base.Add(2*time.Minute), "timeout", base)
		require.NoError(t, err)
		assert.True(t, ok)

		due, err := b.FetchDue(ctx, base, 10)
		require.NoError(t, err)
		assert.Empty(t, due)
		due, err = b.FetchDue(ctx, base.Add(2*time.Minute), 10)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, 1, due[0].RetryCount)

		ok, err = b.MarkFailed(ctx, n.ID, 0, 2, models.FailurePermanent, "gone", base)
		require.NoError(t, err)
		assert.False(t, ok)
		ok, err = b.MarkFailed(ctx, n.ID, 1, 2, models.FailurePermanent, "gone", base)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestStaleRoomsFollowEpisodes(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend, room models.ChatRoom) {
		ctx := context.Background()
		appendActivity(t, b, room, base.Add(-3*time.Hour))
		cutoff := base.Add(-2 * time.Hour)

		stale, err := b.FindStale(ctx, cutoff, 10)
		require.NoError(t, err)
		require.Len(t, stale, 1)
		assert.Equal(t, room.ID, stale[0].ChatRoomID)

		_, err = b.CreateForIdleRoom(ctx, nudge(t, room), cutoff, base)
		require.NoError(t, err)
		stale, err = b.FindStale(ctx, cutoff, 10)
		require.NoError(t, err)
		assert.Empty(t, stale)

		appendActivity(t, b, room, base.Add(time.Minute))
		_, err = b.DisableLiveForRoom(ctx, room.ID, base.Add(time.Minute))
		require.NoError(t, err)
		stale, err = b.FindStale(ctx, base.Add(3*time.Hour), 10)
		require.NoError(t, err)
		assert.Len(t, stale, 1)
	})
}
