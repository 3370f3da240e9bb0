package topics

import "strings"

// Topic suffixes used on the device bus
const (
	Status               = "status"
	GetSchedules         = "get_schedules"
	GetSchedulesResponse = "get_schedules_response"
	SetSchedule          = "set_schedule"
	GetNextScheduleDue   = "get_next_schedule_due"
	NextScheduleDue      = "next_schedule_due"
	PumpTrigger          = "pump_trigger"
	PumpStatus           = "pump_status"
	Version              = "version"
)

// Per-page subscription sets. Brokers enforcing per-device ACLs reject
// wildcards, so each device gets its own subscribe call per suffix.
var (
	ControlSuffixes    = []string{Status, PumpStatus}
	SchedulingSuffixes = []string{Status, GetSchedulesResponse, NextScheduleDue}
	RegistrySuffixes   = []string{Version}
)

// Topic builds "<deviceID>/<suffix>"
func Topic(deviceID, suffix string) string {
	return deviceID + "/" + suffix
}

// ParseDeviceID returns the segment before the first separator
func ParseDeviceID(topic string) (string, bool) {
	i := strings.IndexByte(topic, '/')
	if i < 0 {
		return "", false
	}
	return topic[:i], true
}

// ParseSuffix returns everything after the first separator
func ParseSuffix(topic string) (string, bool) {
	i := strings.IndexByte(topic, '/')
	if i < 0 {
		return "", false
	}
	return topic[i+1:], true
}

// ForDevice expands a suffix set into the topics of one device
func ForDevice(deviceID string, suffixes []string) []string {
	out := make([]string, 0, len(suffixes))
	for _, s := range suffixes {
		out = append(out, Topic(deviceID, s))
	}
	return out
}
