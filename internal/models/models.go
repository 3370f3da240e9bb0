package models

import (
	"strings"
	"time"
)

// SlotCount is the fixed number of schedule slots held by every controller
const SlotCount = 10

// Day-of-week mask covering every day (bit0=Sunday .. bit6=Saturday)
const EveryDay = 0x7f

// NextRunUnknown is reported until a device answers a next-run request
const NextRunUnknown = "unknown"

// Device represents a provisioned irrigation controller
type Device struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	FirmwareVersion string    `json:"firmware_version"`
	Active          bool      `json:"active"`
	AddedAt         time.Time `json:"added_at"`
}

// DeviceStatus is the liveness classification of a device
type DeviceStatus int

const (
	StatusUnknown DeviceStatus = iota
	StatusOnline
	StatusOffline
)

func (s DeviceStatus) String() string {
	switch s {
	case StatusOnline:
		return "online"
	case StatusOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// MarshalText lets statuses render as strings in JSON responses
func (s DeviceStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ScheduleSlot is one entry of a controller's schedule table
type ScheduleSlot struct {
	Index   int  `json:"index"`
	Hour    int  `json:"hour"`
	Min     int  `json:"min"`
	Dur     int  `json:"dur"` // seconds
	Dow     int  `json:"dow"`
	Enabled bool `json:"enabled"`
}

// EmptySlot returns the default value of an unused slot
func EmptySlot(index int) ScheduleSlot {
	return ScheduleSlot{Index: index}
}

// EmptyTable returns a table with every slot set to its empty default
func EmptyTable() [SlotCount]ScheduleSlot {
	var table [SlotCount]ScheduleSlot
	for i := range table {
		table[i] = EmptySlot(i)
	}
	return table
}

// IsEmpty reports whether the slot holds the empty sentinel.
// Enabled and Dow do not take part: an empty slot is recognised structurally.
func (s ScheduleSlot) IsEmpty() bool {
	return s.Dur == 0 && s.Hour == 0 && s.Min == 0
}

// Valid checks field ranges
func (s ScheduleSlot) Valid() bool {
	return s.Index >= 0 && s.Index < SlotCount &&
		s.Hour >= 0 && s.Hour <= 23 &&
		s.Min >= 0 && s.Min <= 59 &&
		s.Dur >= 0 &&
		s.Dow >= 0 && s.Dow <= EveryDay
}

// RunsOn reports whether day d (0=Sunday) is set in the mask
func (s ScheduleSlot) RunsOn(d time.Weekday) bool {
	return s.Dow&(1<<uint(d)) != 0
}

// ActiveCount counts the slots that are not empty
func ActiveCount(table [SlotCount]ScheduleSlot) int {
	n := 0
	for _, s := range table {
		if !s.IsEmpty() {
			n++
		}
	}
	return n
}

// ToggleDay flips day d in a dow mask
func ToggleDay(mask int, d time.Weekday) int {
	return (mask ^ (1 << uint(d))) & EveryDay
}

var dayNames = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// FormatDays renders a dow mask for display
func FormatDays(mask int) string {
	mask &= EveryDay
	switch mask {
	case EveryDay:
		return "every day"
	case 0:
		return "never"
	case 0x3e:
		return "weekdays"
	case 0x41:
		return "weekends"
	}
	var days []string
	for d := 0; d < 7; d++ {
		if mask&(1<<uint(d)) != 0 {
			days = append(days, dayNames[d])
		}
	}
	return strings.Join(days, ", ")
}

// RequestKind identifies a request/response pair on the bus
type RequestKind int

const (
	GetSchedules RequestKind = iota
	GetNextRun
)

func (k RequestKind) String() string {
	if k == GetNextRun {
		return "get_next_run"
	}
	return "get_schedules"
}

// PendingRequest is an outstanding request awaiting its response topic
type PendingRequest struct {
	DeviceID string      `json:"device_id"`
	Kind     RequestKind `json:"kind"`
	Deadline time.Time   `json:"deadline"`
}
