package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Connect initializes the database connection and runs migrations.
func Connect(ctx context.Context, dsn string, logger *zap.Logger) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations applied", zap.Int("count", len(migrations)))
	return db, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS personas (
        id SERIAL PRIMARY KEY,
        name TEXT NOT NULL,
        kind TEXT NOT NULL DEFAULT '',
        traits TEXT NOT NULL DEFAULT ''
    );`,
	`CREATE UNIQUE INDEX IF NOT EXISTS personas_name_kind_idx ON personas (name, kind);`,
	`CREATE TABLE IF NOT EXISTS chat_rooms (
        id SERIAL PRIMARY KEY,
        user_id INT NOT NULL,
        persona_id INT NOT NULL REFERENCES personas(id),
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        last_message_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        active BOOLEAN NOT NULL DEFAULT TRUE,
        UNIQUE(user_id, persona_id)
    );`,
	`CREATE TABLE IF NOT EXISTS messages (
        id BIGSERIAL PRIMARY KEY,
        chat_room_id INT NOT NULL REFERENCES chat_rooms(id),
        sender TEXT NOT NULL CHECK (sender IN ('USER', 'AGENT', 'SYSTEM')),
        content TEXT NOT NULL CHECK (length(content) > 0),
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        is_read BOOLEAN NOT NULL DEFAULT FALSE
    );`,
	`CREATE INDEX IF NOT EXISTS messages_room_created_idx ON messages (chat_room_id, created_at, id);`,
	`CREATE TABLE IF NOT EXISTS activity_records (
        id BIGSERIAL PRIMARY KEY,
        user_id INT NOT NULL,
        chat_room_id INT REFERENCES chat_rooms(id),
        activity_type TEXT NOT NULL CHECK (activity_type IN ('MESSAGE_SENT', 'MESSAGE_READ', 'CHAT_OPENED')),
        activity_at TIMESTAMPTZ NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );`,
	`CREATE INDEX IF NOT EXISTS activity_room_at_idx ON activity_records (chat_room_id, activity_at);`,
	`CREATE INDEX IF NOT EXISTS activity_user_at_idx ON activity_records (user_id, activity_at);`,
	`CREATE TABLE IF NOT EXISTS notifications (
        id BIGSERIAL PRIMARY KEY,
        user_id INT NOT NULL,
        chat_room_id INT REFERENCES chat_rooms(id),
        type TEXT NOT NULL CHECK (type IN ('INACTIVITY', 'SYSTEM')),
        title TEXT NOT NULL,
        content TEXT NOT NULL,
        status TEXT NOT NULL CHECK (status IN ('PENDING', 'SENT', 'READ', 'FAILED', 'DISABLED')),
        scheduled_at TIMESTAMPTZ NOT NULL,
        sent_at TIMESTAMPTZ,
        read_at TIMESTAMPTZ,
        retry_count INT NOT NULL DEFAULT 0,
        failure_reason TEXT,
        failure_kind TEXT CHECK (failure_kind IN ('TRANSIENT', 'PERMANENT')),
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );`,
	`CREATE UNIQUE INDEX IF NOT EXISTS notifications_one_live_per_room ON notifications (chat_room_id)
        WHERE status IN ('PENDING', 'SENT') AND chat_room_id IS NOT NULL;`,
	`CREATE INDEX IF NOT EXISTS notifications_due_idx ON notifications (scheduled_at) WHERE status = 'PENDING';`,
	`CREATE TABLE IF NOT EXISTS devices (
        id SERIAL PRIMARY KEY,
        user_id INT NOT NULL,
        token TEXT NOT NULL UNIQUE,
        platform TEXT NOT NULL DEFAULT '',
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );`,
}

func runMigrations(ctx context.Context, db *sqlx.DB) error {
	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
