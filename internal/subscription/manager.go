package subscription

import (
	"log"
	"sort"
	"sync"
)

// Manager tracks which devices a page is subscribed for. Every device has
// its own subscribe call; the manager only issues calls for the difference
// between the desired and the current set.
type Manager struct {
	name       string
	suffixes   []string
	mu         sync.Mutex
	subscribed map[string]struct{}
}

// NewManager creates a manager for a page owning the given topic suffixes
func NewManager(name string, suffixes []string) *Manager {
	return &Manager{
		name:       name,
		suffixes:   append([]string(nil), suffixes...),
		subscribed: make(map[string]struct{}),
	}
}

// Name returns the page name
func (m *Manager) Name() string { return m.name }

// Suffixes returns the topic suffixes subscribed per device
func (m *Manager) Suffixes() []string { return append([]string(nil), m.suffixes...) }

// Add marks a device as subscribed and reports whether it was new
func (m *Manager) Add(deviceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subscribed[deviceID]; ok {
		return false
	}
	m.subscribed[deviceID] = struct{}{}
	return true
}

// Remove unmarks a device and reports whether it was subscribed
func (m *Manager) Remove(deviceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subscribed[deviceID]; !ok {
		return false
	}
	delete(m.subscribed, deviceID)
	return true
}

// Diff computes the devices to subscribe and to unsubscribe for a desired set
func (m *Manager) Diff(desired []string) (toAdd, toRemove []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[string]struct{}, len(desired))
	for _, id := range desired {
		if id == "" {
			continue
		}
		want[id] = struct{}{}
		if _, ok := m.subscribed[id]; !ok {
			toAdd = append(toAdd, id)
		}
	}
	for id := range m.subscribed {
		if _, ok := want[id]; !ok {
			toRemove = append(toRemove, id)
		}
	}
	toAdd = dedupe(toAdd)
	sort.Strings(toRemove)
	return toAdd, toRemove
}

// Sync brings the subscribed set to desired. Calling it again with the same
// set issues no further calls.
func (m *Manager) Sync(desired []string, subscribe, unsubscribe func(deviceID string)) {
	toAdd, toRemove := m.Diff(desired)
	for _, id := range toRemove {
		if m.Remove(id) {
			unsubscribe(id)
		}
	}
	for _, id := range toAdd {
		if m.Add(id) {
			subscribe(id)
		}
	}
	if len(toAdd) > 0 || len(toRemove) > 0 {
		log.Printf("SUBSCRIPTION: %s page +%d -%d devices", m.name, len(toAdd), len(toRemove))
	}
}

// Subscribed returns the current set, sorted
func (m *Manager) Subscribed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.subscribed))
	for id := range m.subscribed {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Reset forgets every subscription without issuing calls. Used after a
// fresh broker session, which does not keep subscriptions.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.subscribed = make(map[string]struct{})
	m.mu.Unlock()
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
