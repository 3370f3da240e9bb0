package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"beegreen/internal/correlator"
	"beegreen/internal/devices"
	"beegreen/internal/engine"
	"beegreen/internal/models"
	"beegreen/internal/schedule"

	"github.com/gin-gonic/gin"
)

// Engine is what the HTTP handlers need from the sync engine
type Engine interface {
	Devices() []models.Device
	Device(deviceID string) (models.Device, error)
	Status(deviceID string) models.DeviceStatus
	IsAvailable(deviceID string) bool
	PumpOn(deviceID string) (on, known bool)
	NextRun(deviceID string) string
	EstimatedNextRun(ctx context.Context, deviceID string) (time.Time, bool)
	ActiveCount(ctx context.Context, deviceID string) int
	Schedules(ctx context.Context, deviceID string) (schedule.Table, error)
	SelectDevice(ctx context.Context, deviceID string) (schedule.Table, error)
	SaveSlot(ctx context.Context, deviceID string, slot models.ScheduleSlot) (schedule.Table, error)
	DeleteSlot(ctx context.Context, deviceID string, index int) (schedule.Table, error)
	RequestSchedules(deviceID string) error
	RequestNextRun(deviceID string) error
	TriggerPump(deviceID string, duration time.Duration) error
	UpsertDevice(ctx context.Context, d models.Device) error
	SetDeviceActive(ctx context.Context, deviceID string, active bool) error
	RenameDevice(ctx context.Context, deviceID, name string) error
	DeleteDevice(ctx context.Context, deviceID string) error
	Pending() []models.PendingRequest
}

var _ Engine = (*engine.Engine)(nil)

// respondError maps engine errors to status codes
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrUnknownDevice), errors.Is(err, devices.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrUnavailable):
		status = http.StatusConflict
	case errors.Is(err, correlator.ErrBusy):
		status = http.StatusTooManyRequests
	case errors.Is(err, engine.ErrInvalidSlot), errors.Is(err, engine.ErrInvalidDuration), errors.Is(err, devices.ErrInvalidID):
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
