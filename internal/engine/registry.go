package engine

import (
	"context"
	"errors"
	"fmt"

	"beegreen/internal/devices"
	"beegreen/internal/models"
)

// UpsertDevice stores a provisioned device and resyncs subscriptions
func (e *Engine) UpsertDevice(ctx context.Context, d models.Device) error {
	if err := e.registry.UpsertDevice(ctx, d); err != nil {
		return err
	}
	return e.RefreshDevices(ctx)
}

// SetDeviceActive toggles a device; inactive devices lose their
// control and scheduling subscriptions
func (e *Engine) SetDeviceActive(ctx context.Context, deviceID string, active bool) error {
	if err := e.registry.SetActive(ctx, deviceID, active); err != nil {
		return registryErr(err, deviceID)
	}
	return e.RefreshDevices(ctx)
}

// RenameDevice changes the display name of a device
func (e *Engine) RenameDevice(ctx context.Context, deviceID, name string) error {
	if err := e.registry.Rename(ctx, deviceID, name); err != nil {
		return registryErr(err, deviceID)
	}
	return e.RefreshDevices(ctx)
}

// DeleteDevice removes a device with its cached schedules
func (e *Engine) DeleteDevice(ctx context.Context, deviceID string) error {
	if err := e.registry.DeleteDevice(ctx, deviceID); err != nil {
		return registryErr(err, deviceID)
	}
	e.schedules.Remove(ctx, deviceID)
	return e.RefreshDevices(ctx)
}

func registryErr(err error, deviceID string) error {
	if errors.Is(err, devices.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}
	return err
}
