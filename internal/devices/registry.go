package devices

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"beegreen/internal/models"
	"beegreen/internal/storage"
)

// ErrNotFound is returned for unknown device ids
var ErrNotFound = errors.New("device not found")

// ErrInvalidID is returned for ids that cannot be used as a topic segment
var ErrInvalidID = errors.New("invalid device id")

// Registry is the store of provisioned devices
type Registry interface {
	ListDevices(ctx context.Context) ([]models.Device, error)
	GetDevice(ctx context.Context, id string) (models.Device, error)
	UpsertDevice(ctx context.Context, d models.Device) error
	UpdateFirmware(ctx context.Context, id, version string) error
	SetActive(ctx context.Context, id string, active bool) error
	Rename(ctx context.Context, id, name string) error
	DeleteDevice(ctx context.Context, id string) error
}

// ValidateID rejects ids that would break topic naming
func ValidateID(id string) error {
	if id == "" || strings.ContainsAny(id, "/+#") {
		return ErrInvalidID
	}
	return nil
}

const registryKey = "devices"

// KVRegistry keeps the device list as a single JSON entry in a KV store
type KVRegistry struct {
	mu sync.Mutex
	kv storage.KV
}

// NewKVRegistry creates a registry persisted to kv
func NewKVRegistry(kv storage.KV) *KVRegistry {
	return &KVRegistry{kv: kv}
}

func (r *KVRegistry) load(ctx context.Context) ([]models.Device, error) {
	var list []models.Device
	if err := storage.GetJSON(ctx, r.kv, registryKey, &list); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return list, nil
}

func (r *KVRegistry) save(ctx context.Context, list []models.Device) error {
	sort.Slice(list, func(i, j int) bool { return list[i].AddedAt.Before(list[j].AddedAt) })
	return storage.SetJSON(ctx, r.kv, registryKey, list)
}

// ListDevices returns every device in provisioning order
func (r *KVRegistry) ListDevices(ctx context.Context) ([]models.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(ctx)
}

// GetDevice returns one device
func (r *KVRegistry) GetDevice(ctx context.Context, id string) (models.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list, err := r.load(ctx)
	if err != nil {
		return models.Device{}, err
	}
	for _, d := range list {
		if d.ID == id {
			return d, nil
		}
	}
	return models.Device{}, ErrNotFound
}

// UpsertDevice adds a device or replaces the stored copy
func (r *KVRegistry) UpsertDevice(ctx context.Context, d models.Device) error {
	if err := ValidateID(d.ID); err != nil {
		return err
	}
	if d.Name == "" {
		d.Name = d.ID
	}
	if d.AddedAt.IsZero() {
		d.AddedAt = time.Now()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	list, err := r.load(ctx)
	if err != nil {
		return err
	}
	for i := range list {
		if list[i].ID == d.ID {
			d.AddedAt = list[i].AddedAt
			list[i] = d
			return r.save(ctx, list)
		}
	}
	log.Printf("DEVICES: Added device %s (%s)", d.ID, d.Name)
	return r.save(ctx, append(list, d))
}

func (r *KVRegistry) update(ctx context.Context, id string, fn func(*models.Device)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list, err := r.load(ctx)
	if err != nil {
		return err
	}
	for i := range list {
		if list[i].ID == id {
			fn(&list[i])
			return r.save(ctx, list)
		}
	}
	return ErrNotFound
}

// UpdateFirmware records the version a device reported
func (r *KVRegistry) UpdateFirmware(ctx context.Context, id, version string) error {
	return r.update(ctx, id, func(d *models.Device) { d.FirmwareVersion = version })
}

// SetActive enables or disables a device
func (r *KVRegistry) SetActive(ctx context.Context, id string, active bool) error {
	return r.update(ctx, id, func(d *models.Device) { d.Active = active })
}

// Rename changes the user facing name
func (r *KVRegistry) Rename(ctx context.Context, id, name string) error {
	return r.update(ctx, id, func(d *models.Device) { d.Name = name })
}

// DeleteDevice removes a device
func (r *KVRegistry) DeleteDevice(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list, err := r.load(ctx)
	if err != nil {
		return err
	}
	for i := range list {
		if list[i].ID == id {
			log.Printf("DEVICES: Deleted device %s", id)
			return r.save(ctx, append(list[:i], list[i+1:]...))
		}
	}
	return ErrNotFound
}

// ActiveIDs returns the ids of the active devices of list
func ActiveIDs(list []models.Device) []string {
	var ids []string
	for _, d := range list {
		if d.Active {
			ids = append(ids, d.ID)
		}
	}
	return ids
}
