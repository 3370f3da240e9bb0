package scheduler

import (
	"log"
	"sync"

	"github.com/robfig/cron/v3"
)

// DefaultPollSpec is how often each scheduled device is asked for its next run
const DefaultPollSpec = "@every 15m"

// Scheduler periodically asks devices for their next due run so the cached
// value does not go stale while nobody looks at the scheduling page
type Scheduler struct {
	cron      *cron.Cron
	spec      string
	refresh   func(deviceID string)
	jobMap    map[string]cron.EntryID // Maps device ID to cron entry ID
	jobMapMux sync.RWMutex            // Protects jobMap
}

// NewScheduler creates a scheduler calling refresh for every device on spec
func NewScheduler(spec string, refresh func(deviceID string)) *Scheduler {
	if spec == "" {
		spec = DefaultPollSpec
	}
	return &Scheduler{
		cron:    cron.New(),
		spec:    spec,
		refresh: refresh,
		jobMap:  make(map[string]cron.EntryID),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Println("SCHEDULER: Cron scheduler started")
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("SCHEDULER: Cron scheduler stopped")
}

// AddOrUpdateDevice (re)registers the periodic refresh of one device
func (s *Scheduler) AddOrUpdateDevice(deviceID string) error {
	s.RemoveDevice(deviceID)

	entryID, err := s.cron.AddFunc(s.spec, func() {
		log.Printf("SCHEDULER: Periodic next-run refresh for device %s", deviceID)
		s.refresh(deviceID)
	})
	if err != nil {
		log.Printf("SCHEDULER: Failed to schedule device %s with '%s': %v", deviceID, s.spec, err)
		return err
	}

	s.jobMapMux.Lock()
	s.jobMap[deviceID] = entryID
	s.jobMapMux.Unlock()

	log.Printf("SCHEDULER: Scheduled device %s with '%s' (entry ID: %d)", deviceID, s.spec, entryID)
	return nil
}

// RemoveDevice removes the periodic refresh of a device
func (s *Scheduler) RemoveDevice(deviceID string) {
	s.jobMapMux.Lock()
	defer s.jobMapMux.Unlock()

	if entryID, exists := s.jobMap[deviceID]; exists {
		s.cron.Remove(entryID)
		delete(s.jobMap, deviceID)
		log.Printf("SCHEDULER: Removed device %s (entry ID: %d)", deviceID, entryID)
	}
}

// SyncDevices makes the scheduled set equal to deviceIDs
func (s *Scheduler) SyncDevices(deviceIDs []string) {
	want := make(map[string]bool, len(deviceIDs))
	for _, id := range deviceIDs {
		want[id] = true
	}
	for _, id := range s.Devices() {
		if !want[id] {
			s.RemoveDevice(id)
		}
	}
	for id := range want {
		s.jobMapMux.RLock()
		_, exists := s.jobMap[id]
		s.jobMapMux.RUnlock()
		if exists {
			continue
		}
		if err := s.AddOrUpdateDevice(id); err != nil {
			log.Printf("SCHEDULER: Failed to sync device %s: %v", id, err)
		}
	}
}

// Devices lists the devices currently scheduled
func (s *Scheduler) Devices() []string {
	s.jobMapMux.RLock()
	defer s.jobMapMux.RUnlock()
	ids := make([]string, 0, len(s.jobMap))
	for id := range s.jobMap {
		ids = append(ids, id)
	}
	return ids
}

// RunNow executes the job of a device immediately, bypassing cron timing
func (s *Scheduler) RunNow(deviceID string) bool {
	s.jobMapMux.RLock()
	entryID, ok := s.jobMap[deviceID]
	s.jobMapMux.RUnlock()
	if !ok {
		return false
	}
	entry := s.cron.Entry(entryID)
	if !entry.Valid() {
		return false
	}
	entry.Job.Run()
	return true
}
