package repository

import (
	"context"
	"database/sql"
	"time"

	"spabridge"
	"spabridge/internal/repository/db"
)

// InitDB opens the backing SQLite file and bootstraps the schema.
func InitDB(path string) (*sql.DB, error) {
	return db.InitDB(path)
}

type Authorization interface {
	Create(username, hash string) (int, error)
	GetByUsername(username string) (*spabridge.User, error)
}

// DeviceRepo caches the paired spa's identity so the accessory keeps a stable
// name and id between restarts. The state mirror itself is never persisted.
type DeviceRepo interface {
	Save(ctx context.Context, d spabridge.Device) error
	Get(ctx context.Context, deviceID string) (*spabridge.Device, error)
	Touch(ctx context.Context, deviceID string, seenAt time.Time) error
}

type Repository struct {
	Devices DeviceRepo
	Auth    Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		Devices: NewDeviceSQLite(db),
		Auth:    NewUserRepository(db),
	}
}
