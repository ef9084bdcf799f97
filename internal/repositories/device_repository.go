package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"companion-chat/internal/models"
)

var ErrDeviceNotFound = errors.New("device not found")

// DeviceRepository stores push destinations.
type DeviceRepository interface {
	RegisterDevice(ctx context.Context, userID int, token, platform string) (models.Device, error)
	LatestDevice(ctx context.Context, userID int) (models.Device, error)
}

// DeviceRepo is a sqlx-backed repository.
type DeviceRepo struct {
	db *sqlx.DB
}

// NewDeviceRepo constructs DeviceRepo.
func NewDeviceRepo(db *sqlx.DB) *DeviceRepo {
	return &DeviceRepo{db: db}
}

// RegisterDevice stores the token, moving it to the user if it was known before.
func (r *DeviceRepo) RegisterDevice(ctx context.Context, userID int, token, platform string) (models.Device, error) {
	var device models.Device
	err := r.db.GetContext(ctx, &device, `INSERT INTO devices (user_id, token, platform) VALUES ($1, $2, $3)
        ON CONFLICT (token) DO UPDATE SET user_id = EXCLUDED.user_id, platform = EXCLUDED.platform, created_at = NOW()
        RETURNING id, user_id, token, platform, created_at`, userID, token, platform)
	return device, err
}

// LatestDevice returns the most recently registered device of a user.
func (r *DeviceRepo) LatestDevice(ctx context.Context, userID int) (models.Device, error) {
	var device models.Device
	err := r.db.GetContext(ctx, &device, `SELECT id, user_id, token, platform, created_at FROM devices
        WHERE user_id=$1 ORDER BY created_at DESC, id DESC LIMIT 1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Device{}, ErrDeviceNotFound
	}
	return device, err
}
