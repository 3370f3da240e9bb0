package schedule

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"beegreen/internal/models"
	"beegreen/internal/storage"
)

// ErrInvalidSlot is returned for slots outside the documented ranges
var ErrInvalidSlot = errors.New("invalid schedule slot")

const deviceListKey = "scheduler:devices"

// Table is the fixed schedule table of one controller
type Table = [models.SlotCount]models.ScheduleSlot

func scheduleKey(deviceID string) string {
	return "schedules:" + deviceID
}

// Store keeps one schedule table per device, in memory and in the KV store
type Store struct {
	mu    sync.RWMutex
	kv    storage.KV
	cache map[string]Table
}

// NewStore creates a schedule store persisting to kv
func NewStore(kv storage.KV) *Store {
	return &Store{
		kv:    kv,
		cache: make(map[string]Table),
	}
}

// Load returns the cached table of a device, reading the persisted copy on
// first access. Missing slots are filled with the empty default.
func (s *Store) Load(ctx context.Context, deviceID string) Table {
	s.mu.RLock()
	table, ok := s.cache[deviceID]
	s.mu.RUnlock()
	if ok {
		return table
	}

	table = models.EmptyTable()
	var persisted []models.ScheduleSlot
	if err := storage.GetJSON(ctx, s.kv, scheduleKey(deviceID), &persisted); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("SCHEDULE: Failed to read cached schedules for %s: %v", deviceID, err)
		}
	} else {
		for _, slot := range persisted {
			if slot.Valid() {
				table[slot.Index] = slot
			}
		}
	}

	s.mu.Lock()
	// another caller may have reconciled while we were reading
	if cur, ok := s.cache[deviceID]; ok {
		table = cur
	} else {
		s.cache[deviceID] = table
	}
	s.mu.Unlock()
	return table
}

// Reconcile replaces the table of a device with a remote response. Indices
// absent from entries are reset to empty: the device is authoritative.
func (s *Store) Reconcile(ctx context.Context, deviceID string, entries []models.ScheduleSlot) Table {
	table := models.EmptyTable()
	for _, e := range entries {
		if e.Valid() {
			table[e.Index] = e
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.persist(ctx, deviceID, table)
	s.cache[deviceID] = table
	log.Printf("SCHEDULE: Reconciled %s, %d active slots", deviceID, models.ActiveCount(table))
	return table
}

// ApplyLocalEdit writes one slot optimistically, ahead of the device
// confirming it. A later Reconcile supersedes it.
func (s *Store) ApplyLocalEdit(ctx context.Context, deviceID string, slot models.ScheduleSlot) (Table, error) {
	if !slot.Valid() {
		return Table{}, fmt.Errorf("%w: %+v", ErrInvalidSlot, slot)
	}
	table := s.Load(ctx, deviceID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.cache[deviceID]; ok {
		table = cur
	}
	table[slot.Index] = slot
	s.persist(ctx, deviceID, table)
	s.cache[deviceID] = table
	return table, nil
}

// Remove drops the table of a deleted device
func (s *Store) Remove(ctx context.Context, deviceID string) {
	s.mu.Lock()
	delete(s.cache, deviceID)
	s.mu.Unlock()
	if err := s.kv.Delete(ctx, scheduleKey(deviceID)); err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.Printf("SCHEDULE: Failed to delete cached schedules for %s: %v", deviceID, err)
	}
}

// CacheDeviceList remembers the device ids shown on the scheduling page
func (s *Store) CacheDeviceList(ctx context.Context, ids []string) error {
	return storage.SetJSON(ctx, s.kv, deviceListKey, ids)
}

// CachedDeviceList returns the ids stored by CacheDeviceList
func (s *Store) CachedDeviceList(ctx context.Context) ([]string, error) {
	var ids []string
	if err := storage.GetJSON(ctx, s.kv, deviceListKey, &ids); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return ids, nil
}

// persist must be called with s.mu held. Failures keep the in-memory
// table authoritative and are only logged.
func (s *Store) persist(ctx context.Context, deviceID string, table Table) {
	if err := storage.SetJSON(ctx, s.kv, scheduleKey(deviceID), table[:]); err != nil {
		log.Printf("SCHEDULE: Failed to persist schedules for %s: %v", deviceID, err)
	}
}
