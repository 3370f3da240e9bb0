package engine

import (
	"log"

	"beegreen/internal/codec"
	"beegreen/internal/models"
	"beegreen/internal/notify"
	"beegreen/internal/topics"
	"beegreen/internal/utils"
)

// HandleMessage routes one inbound message by topic suffix. It is the only
// entry point for bus traffic and is safe to call from transport callbacks.
func (e *Engine) HandleMessage(topic string, payload []byte) {
	deviceID, ok := topics.ParseDeviceID(topic)
	if !ok {
		log.Printf("ENGINE: Ignoring message on malformed topic %q", topic)
		return
	}
	suffix, _ := topics.ParseSuffix(topic)

	e.mu.Lock()
	defer e.unlock()

	if _, known := e.devices[deviceID]; !known {
		utils.Debugf("ENGINE: Ignoring %s from unknown device %s", suffix, deviceID)
		return
	}

	switch suffix {
	case topics.Status:
		e.handleStatus(deviceID, payload)
	case topics.GetSchedulesResponse:
		e.handleSchedules(deviceID, payload)
	case topics.NextScheduleDue:
		e.handleNextRun(deviceID, payload)
	case topics.Version:
		e.handleVersion(deviceID, payload)
	case topics.PumpStatus:
		e.handlePump(deviceID, payload)
	default:
		utils.Debugf("ENGINE: No handler for %s", topic)
	}
}

func (e *Engine) recent(payload []byte) bool {
	ts, ok := codec.ParseTimestamp(payload)
	return codec.IsRecent(ts, ok, e.opts.StaleAfter, e.clock.Now())
}

// Liveness follows every status message. Only fresh online transitions
// notify, so retained messages replayed on subscribe stay quiet. Offline
// transitions notify regardless of age, but only for an explicit offline
// value; anything unrecognised demotes the device silently.
func (e *Engine) handleStatus(deviceID string, payload []byte) {
	prev, cur := e.liveness.Observe(deviceID, codec.DecodeStatus(payload))
	if prev == cur {
		return
	}
	e.emit(Event{Type: EventStatus, DeviceID: deviceID, Status: cur.String()})

	switch cur {
	case models.StatusOnline:
		if e.recent(payload) {
			e.notify(notify.DeviceOnline, deviceID)
		}
	case models.StatusOffline:
		if codec.IsFalsy(codec.ExtractValue(payload)) {
			e.notify(notify.DeviceOffline, deviceID)
		}
	}
}

// An undecodable or empty response carries no usable data and leaves the
// cached table as it is. Anything else replaces the table.
func (e *Engine) handleSchedules(deviceID string, payload []byte) {
	e.correlator.Complete(deviceID, models.GetSchedules)

	slots, ok := codec.DecodeScheduleResponse(payload)
	if !ok || len(slots) == 0 {
		log.Printf("ENGINE: No usable schedule data from %s, keeping cached table", deviceID)
		return
	}
	ctx, cancel := storeContext()
	defer cancel()
	table := e.schedules.Reconcile(ctx, deviceID, slots)
	e.emit(Event{Type: EventSchedules, DeviceID: deviceID, Schedules: table[:]})
}

func (e *Engine) handleNextRun(deviceID string, payload []byte) {
	e.correlator.Complete(deviceID, models.GetNextRun)

	next := codec.DecodeNextRun(payload)
	if next == "" {
		delete(e.nextRun, deviceID)
		next = models.NextRunUnknown
	} else {
		e.nextRun[deviceID] = next
	}
	e.emit(Event{Type: EventNextRun, DeviceID: deviceID, NextRun: next})
}

func (e *Engine) handleVersion(deviceID string, payload []byte) {
	version := codec.DecodeVersion(payload)
	d := e.devices[deviceID]
	if version == "" || version == d.FirmwareVersion {
		return
	}
	d.FirmwareVersion = version
	e.devices[deviceID] = d

	ctx, cancel := storeContext()
	defer cancel()
	if err := e.registry.UpdateFirmware(ctx, deviceID, version); err != nil {
		log.Printf("ENGINE: Failed to record firmware %s for %s: %v", version, deviceID, err)
	}
	log.Printf("ENGINE: Device %s runs firmware %s", deviceID, version)
	e.emit(Event{Type: EventFirmware, DeviceID: deviceID, Firmware: version})
}

func (e *Engine) handlePump(deviceID string, payload []byte) {
	on, known := codec.DecodePumpStatus(payload)
	if !known {
		log.Printf("ENGINE: Unrecognised pump status from %s: %q", deviceID, payload)
		return
	}
	prev, seen := e.pump[deviceID]
	e.pump[deviceID] = on
	if seen && prev == on {
		return
	}
	e.emit(Event{Type: EventPump, DeviceID: deviceID, PumpOn: &on})

	if !e.recent(payload) {
		return
	}
	if on {
		e.notify(notify.PumpStart, deviceID)
	} else {
		e.notify(notify.PumpStop, deviceID)
	}
}

func (e *Engine) onRequestTimeout(deviceID string, kind models.RequestKind) {
	e.mu.Lock()
	defer e.unlock()
	e.emit(Event{Type: EventNoResponse, DeviceID: deviceID, Request: kind.String()})
}
