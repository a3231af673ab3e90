package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"spabridge"
)

type DeviceSQLite struct {
	db *sql.DB
}

func NewDeviceSQLite(db *sql.DB) *DeviceSQLite {
	return &DeviceSQLite{db: db}
}

// Ensure implementation of DeviceRepo at compile time.
var _ DeviceRepo = (*DeviceSQLite)(nil)

const (
	upsertDeviceSQL = `
		INSERT INTO devices (device_id, name, model, last_seen_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			name=excluded.name,
			model=excluded.model,
			last_seen_at=excluded.last_seen_at
	`

	selectDeviceSQL = `
		SELECT device_id, name, model, last_seen_at
		FROM devices WHERE device_id=?
	`

	touchDeviceSQL = `UPDATE devices SET last_seen_at=? WHERE device_id=?`
)

// Save inserts or updates the registry row for the device.
func (r *DeviceSQLite) Save(ctx context.Context, d spabridge.Device) error {
	// last_seen_at is always persisted as UTC; set if zero
	seenUTC := d.LastSeenAt
	if seenUTC.IsZero() {
		seenUTC = time.Now().UTC()
	} else {
		seenUTC = seenUTC.UTC()
	}

	_, err := r.db.ExecContext(ctx, upsertDeviceSQL, d.DeviceID, d.Name, d.Model, seenUTC)
	if err != nil {
		return fmt.Errorf("upsert device %q: %w", d.DeviceID, err)
	}
	return nil
}

// Get fetches a registry row. Returns (nil, nil) if not found.
func (r *DeviceSQLite) Get(ctx context.Context, deviceID string) (*spabridge.Device, error) {
	row := r.db.QueryRowContext(ctx, selectDeviceSQL, deviceID)

	var d spabridge.Device
	if err := row.Scan(&d.DeviceID, &d.Name, &d.Model, &d.LastSeenAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select device %q: %w", deviceID, err)
	}
	d.LastSeenAt = d.LastSeenAt.UTC()
	return &d, nil
}

// Touch stamps last_seen_at after a successful remote read.
func (r *DeviceSQLite) Touch(ctx context.Context, deviceID string, seenAt time.Time) error {
	if _, err := r.db.ExecContext(ctx, touchDeviceSQL, seenAt.UTC(), deviceID); err != nil {
		return fmt.Errorf("touch device %q: %w", deviceID, err)
	}
	return nil
}
