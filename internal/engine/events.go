package engine

import (
	"time"

	"beegreen/internal/models"
)

// EventType names a state change pushed to listeners
type EventType string

const (
	EventStatus     EventType = "status"
	EventSchedules  EventType = "schedules"
	EventNextRun    EventType = "next_run"
	EventNoResponse EventType = "no_response"
	EventPump       EventType = "pump"
	EventFirmware   EventType = "firmware"
	EventDevices    EventType = "devices"
)

// Event describes a change of the engine state
type Event struct {
	Type      EventType             `json:"type"`
	DeviceID  string                `json:"device_id,omitempty"`
	Status    string                `json:"status,omitempty"`
	Schedules []models.ScheduleSlot `json:"schedules,omitempty"`
	NextRun   string                `json:"next_run,omitempty"`
	Request   string                `json:"request,omitempty"`
	PumpOn    *bool                 `json:"pump_on,omitempty"`
	Firmware  string                `json:"firmware,omitempty"`
	At        time.Time             `json:"at"`
}
