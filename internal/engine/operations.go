package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"time"

	"beegreen/internal/codec"
	"beegreen/internal/correlator"
	"beegreen/internal/models"
	"beegreen/internal/schedule"
	"beegreen/internal/scheduler"
	"beegreen/internal/topics"

	"github.com/benbjohnson/clock"
)

// must be called with mu held
func (e *Engine) device(deviceID string) (models.Device, error) {
	d, ok := e.devices[deviceID]
	if !ok {
		return models.Device{}, fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}
	return d, nil
}

// must be called with mu held
func (e *Engine) available(deviceID string) (models.Device, error) {
	d, err := e.device(deviceID)
	if err != nil {
		return d, err
	}
	if !e.liveness.IsAvailable(d) {
		return d, fmt.Errorf("%w: %s is %s", ErrUnavailable, deviceID, e.liveness.Status(deviceID))
	}
	return d, nil
}

// SelectDevice makes deviceID the current device and returns its cached
// table. An available device is also asked for fresh data.
func (e *Engine) SelectDevice(ctx context.Context, deviceID string) (schedule.Table, error) {
	e.mu.Lock()
	defer e.unlock()
	if _, err := e.device(deviceID); err != nil {
		return schedule.Table{}, err
	}
	e.selected = deviceID
	table := e.schedules.Load(ctx, deviceID)

	if _, err := e.available(deviceID); err == nil {
		e.logBusy(e.requestSchedules(deviceID))
		e.logBusy(e.requestNextRun(deviceID))
	}
	return table, nil
}

// Selected returns the current device, or ""
func (e *Engine) Selected() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selected
}

// SaveSlot publishes one slot, applies it locally ahead of confirmation and
// schedules a refresh that lets the device's answer supersede the local copy
func (e *Engine) SaveSlot(ctx context.Context, deviceID string, slot models.ScheduleSlot) (schedule.Table, error) {
	e.mu.Lock()
	defer e.unlock()
	return e.writeSlot(ctx, deviceID, slot)
}

// DeleteSlot clears a slot by writing the empty default to its index
func (e *Engine) DeleteSlot(ctx context.Context, deviceID string, index int) (schedule.Table, error) {
	if index < 0 || index >= models.SlotCount {
		return schedule.Table{}, fmt.Errorf("%w: index %d", ErrInvalidSlot, index)
	}
	e.mu.Lock()
	defer e.unlock()
	return e.writeSlot(ctx, deviceID, models.EmptySlot(index))
}

func (e *Engine) writeSlot(ctx context.Context, deviceID string, slot models.ScheduleSlot) (schedule.Table, error) {
	if _, err := e.available(deviceID); err != nil {
		return schedule.Table{}, err
	}
	if !slot.Valid() {
		return schedule.Table{}, fmt.Errorf("%w: %+v", ErrInvalidSlot, slot)
	}

	e.transport.Publish(topics.Topic(deviceID, topics.SetSchedule), []byte(codec.EncodeSchedule(slot)))
	table, err := e.schedules.ApplyLocalEdit(ctx, deviceID, slot)
	if err != nil {
		return schedule.Table{}, err
	}
	e.scheduleRefresh(deviceID)
	e.emit(Event{Type: EventSchedules, DeviceID: deviceID, Schedules: table[:]})
	return table, nil
}

// scheduleRefresh arms the delayed schedule request following a write.
// Consecutive writes push the refresh back instead of stacking requests.
func (e *Engine) scheduleRefresh(deviceID string) {
	if t, ok := e.refreshes[deviceID]; ok {
		t.Stop()
	}
	var t *clock.Timer
	t = e.clock.AfterFunc(e.opts.RefreshDelay, func() {
		e.mu.Lock()
		defer e.unlock()
		if e.refreshes[deviceID] != t {
			return
		}
		delete(e.refreshes, deviceID)
		if _, err := e.device(deviceID); err != nil {
			return
		}
		e.logBusy(e.requestSchedules(deviceID))
	})
	e.refreshes[deviceID] = t
}

// RequestSchedules asks a device for its schedule table. It returns
// correlator.ErrBusy while a previous request is unanswered.
func (e *Engine) RequestSchedules(deviceID string) error {
	e.mu.Lock()
	defer e.unlock()
	if _, err := e.device(deviceID); err != nil {
		return err
	}
	return e.requestSchedules(deviceID)
}

func (e *Engine) requestSchedules(deviceID string) error {
	return e.correlator.Request(deviceID, models.GetSchedules, func() {
		e.transport.Publish(topics.Topic(deviceID, topics.GetSchedules), nil)
	}, e.opts.SchedulesTimeout)
}

// RequestNextRun asks a device for the start time of its next run
func (e *Engine) RequestNextRun(deviceID string) error {
	e.mu.Lock()
	defer e.unlock()
	if _, err := e.device(deviceID); err != nil {
		return err
	}
	return e.requestNextRun(deviceID)
}

func (e *Engine) requestNextRun(deviceID string) error {
	return e.correlator.Request(deviceID, models.GetNextRun, func() {
		e.transport.Publish(topics.Topic(deviceID, topics.GetNextScheduleDue), nil)
	}, e.opts.NextRunTimeout)
}

func (e *Engine) logBusy(err error) {
	if errors.Is(err, correlator.ErrBusy) {
		return
	}
	if err != nil {
		log.Printf("ENGINE: Request failed: %v", err)
	}
}

// TriggerPump starts the pump of a device for the given run time
func (e *Engine) TriggerPump(deviceID string, duration time.Duration) error {
	seconds := int(duration / time.Second)
	if seconds <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidDuration, duration)
	}
	e.mu.Lock()
	defer e.unlock()
	if _, err := e.available(deviceID); err != nil {
		return err
	}
	e.transport.Publish(topics.Topic(deviceID, topics.PumpTrigger), []byte(strconv.Itoa(seconds)))
	log.Printf("ENGINE: Pump of %s triggered for %ds", deviceID, seconds)
	return nil
}

// Status returns the liveness of a device
func (e *Engine) Status(deviceID string) models.DeviceStatus {
	return e.liveness.Status(deviceID)
}

// IsAvailable reports whether writes to a device are allowed
func (e *Engine) IsAvailable(deviceID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.available(deviceID)
	return err == nil
}

// Schedules returns the cached table of a device
func (e *Engine) Schedules(ctx context.Context, deviceID string) (schedule.Table, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.device(deviceID); err != nil {
		return schedule.Table{}, err
	}
	return e.schedules.Load(ctx, deviceID), nil
}

// ActiveCount counts the non-empty slots of a device
func (e *Engine) ActiveCount(ctx context.Context, deviceID string) int {
	table, err := e.Schedules(ctx, deviceID)
	if err != nil {
		return 0
	}
	return models.ActiveCount(table)
}

// NextRun returns the device-reported next run, or models.NextRunUnknown
func (e *Engine) NextRun(deviceID string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if next, ok := e.nextRun[deviceID]; ok {
		return next
	}
	return models.NextRunUnknown
}

// EstimatedNextRun computes the next run from the cached table
func (e *Engine) EstimatedNextRun(ctx context.Context, deviceID string) (time.Time, bool) {
	table, err := e.Schedules(ctx, deviceID)
	if err != nil {
		return time.Time{}, false
	}
	return scheduler.EstimateNextRun(table[:], e.clock.Now())
}

// PumpOn returns the last reported pump state; known is false before any report
func (e *Engine) PumpOn(deviceID string) (on, known bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	on, known = e.pump[deviceID]
	return on, known
}

// Devices returns the device snapshot in provisioning order
func (e *Engine) Devices() []models.Device {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.Device, 0, len(e.devices))
	for _, d := range e.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].AddedAt.Before(out[j].AddedAt)
	})
	return out
}

// Device returns one device of the snapshot
func (e *Engine) Device(deviceID string) (models.Device, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.device(deviceID)
}

// ActiveDeviceIDs lists the active devices, sorted
func (e *Engine) ActiveDeviceIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeIDs()
}

// Pending lists the unanswered requests
func (e *Engine) Pending() []models.PendingRequest {
	return e.correlator.Outstanding()
}
