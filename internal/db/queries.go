package db

import (
	"context"
	"errors"
	"time"

	"beegreen/internal/devices"
	"beegreen/internal/models"

	"github.com/jackc/pgx/v5"
)

var _ devices.Registry = (*DB)(nil)

// ListDevices fetches all devices in provisioning order
func (d *DB) ListDevices(ctx context.Context) ([]models.Device, error) {
	rows, err := d.pool.Query(ctx, "SELECT device_id, name, firmware_version, active, added_at FROM devices ORDER BY added_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Device
	for rows.Next() {
		var dev models.Device
		if err := rows.Scan(&dev.ID, &dev.Name, &dev.FirmwareVersion, &dev.Active, &dev.AddedAt); err != nil {
			return nil, err
		}
		list = append(list, dev)
	}
	return list, rows.Err()
}

// GetDevice fetches a device by id
func (d *DB) GetDevice(ctx context.Context, id string) (models.Device, error) {
	var dev models.Device
	err := d.pool.QueryRow(ctx, "SELECT device_id, name, firmware_version, active, added_at FROM devices WHERE device_id = $1", id).
		Scan(&dev.ID, &dev.Name, &dev.FirmwareVersion, &dev.Active, &dev.AddedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Device{}, devices.ErrNotFound
	}
	if err != nil {
		return models.Device{}, err
	}
	return dev, nil
}

// UpsertDevice inserts a device or updates name, firmware and active flag
func (d *DB) UpsertDevice(ctx context.Context, dev models.Device) error {
	if err := devices.ValidateID(dev.ID); err != nil {
		return err
	}
	if dev.Name == "" {
		dev.Name = dev.ID
	}
	if dev.AddedAt.IsZero() {
		dev.AddedAt = time.Now()
	}
	_, err := d.pool.Exec(ctx, `INSERT INTO devices (device_id, name, firmware_version, active, added_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (device_id) DO UPDATE SET name = EXCLUDED.name, firmware_version = EXCLUDED.firmware_version, active = EXCLUDED.active`,
		dev.ID, dev.Name, dev.FirmwareVersion, dev.Active, dev.AddedAt)
	return err
}

func (d *DB) execOne(ctx context.Context, sql string, args ...any) error {
	tag, err := d.pool.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return devices.ErrNotFound
	}
	return nil
}

// UpdateFirmware records the reported firmware version
func (d *DB) UpdateFirmware(ctx context.Context, id, version string) error {
	return d.execOne(ctx, "UPDATE devices SET firmware_version = $1 WHERE device_id = $2", version, id)
}

// SetActive enables or disables a device
func (d *DB) SetActive(ctx context.Context, id string, active bool) error {
	return d.execOne(ctx, "UPDATE devices SET active = $1 WHERE device_id = $2", active, id)
}

// Rename changes the display name of a device
func (d *DB) Rename(ctx context.Context, id, name string) error {
	return d.execOne(ctx, "UPDATE devices SET name = $1 WHERE device_id = $2", name, id)
}

// DeleteDevice deletes a device
func (d *DB) DeleteDevice(ctx context.Context, id string) error {
	return d.execOne(ctx, "DELETE FROM devices WHERE device_id = $1", id)
}
