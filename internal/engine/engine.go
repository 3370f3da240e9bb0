package engine

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"beegreen/internal/correlator"
	"beegreen/internal/devices"
	"beegreen/internal/liveness"
	"beegreen/internal/models"
	"beegreen/internal/notify"
	"beegreen/internal/schedule"
	"beegreen/internal/subscription"
	"beegreen/internal/topics"

	"github.com/benbjohnson/clock"
)

var (
	// ErrUnavailable rejects writes to devices that are inactive or not online
	ErrUnavailable = errors.New("device unavailable")
	// ErrUnknownDevice is returned for ids missing from the registry
	ErrUnknownDevice = errors.New("unknown device")
	// ErrInvalidSlot is returned for slots outside the documented ranges
	ErrInvalidSlot = schedule.ErrInvalidSlot
	// ErrInvalidDuration is returned for non-positive pump run times
	ErrInvalidDuration = errors.New("invalid pump duration")
)

// Defaults for Options
const (
	DefaultRefreshDelay = time.Second
	DefaultStaleAfter   = 60 * time.Second
	storeTimeout        = 5 * time.Second
)

// Transport is the broker connection. Calls are fire-and-forget.
type Transport interface {
	Publish(topic string, payload []byte)
	Subscribe(topic string)
	Unsubscribe(topic string)
}

// Options tunes the engine; zero values pick the defaults
type Options struct {
	Clock            clock.Clock
	Notifier         notify.Notifier
	RefreshDelay     time.Duration // delay between a write and the follow-up schedule refresh
	StaleAfter       time.Duration // messages older than this do not notify
	NextRunTimeout   time.Duration
	SchedulesTimeout time.Duration
}

// Engine keeps the local view of every device in sync with the bus. All
// inbound messages, operations and timer callbacks are serialised by mu.
type Engine struct {
	mu        sync.Mutex
	transport Transport
	clock     clock.Clock
	notifier  notify.Notifier
	registry  devices.Registry
	opts      Options

	liveness   *liveness.Tracker
	schedules  *schedule.Store
	correlator *correlator.Correlator
	pages      []*subscription.Manager
	refs       *subscription.TopicRefs

	devices   map[string]models.Device
	nextRun   map[string]string
	pump      map[string]bool
	refreshes map[string]*clock.Timer
	selected  string
	connected bool

	listeners []func(Event)
	queued    []Event
	pushes    []push
}

type push struct {
	kind     notify.Kind
	deviceID string
}

// New creates an engine publishing through t and caching schedules in store
func New(t Transport, store *schedule.Store, registry devices.Registry, opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.RefreshDelay <= 0 {
		opts.RefreshDelay = DefaultRefreshDelay
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.NextRunTimeout <= 0 {
		opts.NextRunTimeout = correlator.NextRunTimeout
	}
	if opts.SchedulesTimeout <= 0 {
		opts.SchedulesTimeout = correlator.SchedulesTimeout
	}

	e := &Engine{
		transport: t,
		clock:     opts.Clock,
		notifier:  opts.Notifier,
		registry:  registry,
		opts:      opts,
		liveness:  liveness.NewTracker(),
		schedules: store,
		refs:      subscription.NewTopicRefs(),
		pages: []*subscription.Manager{
			subscription.NewManager("control", topics.ControlSuffixes),
			subscription.NewManager("scheduling", topics.SchedulingSuffixes),
			subscription.NewManager("registry", topics.RegistrySuffixes),
		},
		devices:   make(map[string]models.Device),
		nextRun:   make(map[string]string),
		pump:      make(map[string]bool),
		refreshes: make(map[string]*clock.Timer),
	}
	e.correlator = correlator.New(e.clock, e.onRequestTimeout)
	return e
}

// OnEvent registers a listener. Listeners run after the engine lock is
// released and may call back into the engine.
func (e *Engine) OnEvent(fn func(Event)) {
	e.mu.Lock()
	e.listeners = append(e.listeners, fn)
	e.mu.Unlock()
}

func (e *Engine) emit(ev Event) {
	ev.At = e.clock.Now()
	e.queued = append(e.queued, ev)
}

func (e *Engine) notify(kind notify.Kind, deviceID string) {
	e.pushes = append(e.pushes, push{kind: kind, deviceID: deviceID})
}

// unlock releases mu, then delivers the events and notifications queued
// while it was held
func (e *Engine) unlock() {
	events := e.queued
	pushes := e.pushes
	e.queued, e.pushes = nil, nil
	listeners := e.listeners
	e.mu.Unlock()
	for _, ev := range events {
		for _, fn := range listeners {
			fn(ev)
		}
	}
	for _, p := range pushes {
		e.notifier.Notify(notify.Build(p.kind, p.deviceID))
	}
}

func storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), storeTimeout)
}

// OnConnect resubscribes every page after a fresh broker session
func (e *Engine) OnConnect() {
	e.mu.Lock()
	defer e.unlock()
	e.connected = true
	for _, p := range e.pages {
		p.Reset()
	}
	e.refs.Reset()
	e.syncPages()
	log.Printf("ENGINE: Connected, subscriptions restored for %d devices", len(e.devices))
}

// OnConnectionLost demotes every device to offline
func (e *Engine) OnConnectionLost(err error) {
	e.mu.Lock()
	defer e.unlock()
	e.connected = false
	e.demoteAll()
	log.Printf("ENGINE: Connection lost (%v), all devices offline", err)
}

// OnTransportError demotes every device after a failed publish or
// subscribe. Devices come back with their next online status.
func (e *Engine) OnTransportError(err error) {
	e.mu.Lock()
	defer e.unlock()
	e.demoteAll()
	log.Printf("ENGINE: Transport failure (%v), all devices offline", err)
}

func (e *Engine) demoteAll() {
	for _, id := range e.liveness.MarkAllOffline() {
		e.emit(Event{Type: EventStatus, DeviceID: id, Status: models.StatusOffline.String()})
	}
}

// Connected reports whether the transport session is up
func (e *Engine) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connected
}

// SetDevices replaces the device snapshot and syncs subscriptions to it:
// active devices for the control and scheduling pages, every device for
// the registry page.
func (e *Engine) SetDevices(list []models.Device) {
	e.mu.Lock()
	defer e.unlock()
	e.setDevices(list)
}

func (e *Engine) setDevices(list []models.Device) {
	next := make(map[string]models.Device, len(list))
	for _, d := range list {
		if devices.ValidateID(d.ID) != nil {
			log.Printf("ENGINE: Ignoring device with invalid id %q", d.ID)
			continue
		}
		next[d.ID] = d
		e.liveness.Track(d.ID)
	}
	for id := range e.devices {
		if _, ok := next[id]; !ok {
			e.liveness.Forget(id)
			delete(e.nextRun, id)
			delete(e.pump, id)
			if t, ok := e.refreshes[id]; ok {
				t.Stop()
				delete(e.refreshes, id)
			}
			if e.selected == id {
				e.selected = ""
			}
		}
	}
	e.devices = next
	e.syncPages()

	ctx, cancel := storeContext()
	defer cancel()
	if err := e.schedules.CacheDeviceList(ctx, e.activeIDs()); err != nil {
		log.Printf("ENGINE: Failed to cache scheduler device list: %v", err)
	}
	e.emit(Event{Type: EventDevices})
}

// RefreshDevices reloads the registry and syncs subscriptions. When the
// registry cannot be read the last cached list of active devices is used,
// so a registry outage at startup still brings the bus up.
func (e *Engine) RefreshDevices(ctx context.Context) error {
	list, err := e.registry.ListDevices(ctx)
	if err != nil {
		ids, cacheErr := e.schedules.CachedDeviceList(ctx)
		if cacheErr != nil || len(ids) == 0 {
			return err
		}
		log.Printf("ENGINE: Registry unavailable (%v), using %d cached devices", err, len(ids))
		list = make([]models.Device, 0, len(ids))
		for _, id := range ids {
			list = append(list, models.Device{ID: id, Name: id, Active: true})
		}
	}
	e.SetDevices(list)
	return nil
}

func (e *Engine) activeIDs() []string {
	var ids []string
	for id, d := range e.devices {
		if d.Active {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (e *Engine) allIDs() []string {
	ids := make([]string, 0, len(e.devices))
	for id := range e.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// syncPages must be called with mu held
func (e *Engine) syncPages() {
	active, all := e.activeIDs(), e.allIDs()
	for _, p := range e.pages {
		desired := active
		if p.Name() == "registry" {
			desired = all
		}
		suffixes := p.Suffixes()
		p.Sync(desired,
			func(id string) {
				for _, topic := range topics.ForDevice(id, suffixes) {
					if e.refs.Acquire(topic) {
						e.transport.Subscribe(topic)
					}
				}
			},
			func(id string) {
				for _, topic := range topics.ForDevice(id, suffixes) {
					if e.refs.Release(topic) {
						e.transport.Unsubscribe(topic)
					}
				}
			})
	}
}

// SubscribedTopics lists the broker topics currently held, sorted
func (e *Engine) SubscribedTopics() []string {
	out := e.refs.Topics()
	sort.Strings(out)
	return out
}
