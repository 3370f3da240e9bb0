package liveness

import (
	"log"
	"sync"

	"beegreen/internal/models"
)

// Tracker holds the online/offline classification of every known device.
// A device only leaves Online on an explicit offline status or when the
// transport connection is lost; silence alone never demotes it.
type Tracker struct {
	mu       sync.RWMutex
	statuses map[string]models.DeviceStatus
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{statuses: make(map[string]models.DeviceStatus)}
}

// Track registers a device as Unknown if it has not been seen yet
func (t *Tracker) Track(deviceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.statuses[deviceID]; !ok {
		t.statuses[deviceID] = models.StatusUnknown
	}
}

// Forget drops a removed device
func (t *Tracker) Forget(deviceID string) {
	t.mu.Lock()
	delete(t.statuses, deviceID)
	t.mu.Unlock()
}

// Observe applies a decoded status message and returns the previous and new state
func (t *Tracker) Observe(deviceID string, online bool) (prev, cur models.DeviceStatus) {
	cur = models.StatusOffline
	if online {
		cur = models.StatusOnline
	}
	t.mu.Lock()
	prev = t.statuses[deviceID]
	t.statuses[deviceID] = cur
	t.mu.Unlock()
	if prev != cur {
		log.Printf("LIVENESS: Device %s %s -> %s", deviceID, prev, cur)
	}
	return prev, cur
}

// MarkAllOffline demotes every known device, used when the connection drops.
// It returns the devices that were Online before the call.
func (t *Tracker) MarkAllOffline() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var demoted []string
	for id, s := range t.statuses {
		if s == models.StatusOnline {
			demoted = append(demoted, id)
		}
		t.statuses[id] = models.StatusOffline
	}
	log.Printf("LIVENESS: Connection lost, %d devices marked offline (%d were online)", len(t.statuses), len(demoted))
	return demoted
}

// Status returns the current state of a device, Unknown if never seen
func (t *Tracker) Status(deviceID string) models.DeviceStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.statuses[deviceID]
}

// IsAvailable gates every write-capable operation
func (t *Tracker) IsAvailable(device models.Device) bool {
	return device.Active && t.Status(device.ID) == models.StatusOnline
}
