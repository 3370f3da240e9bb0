package correlator

import (
	"errors"
	"log"
	"sync"
	"time"

	"beegreen/internal/models"

	"github.com/benbjohnson/clock"
)

// ErrBusy is returned while a request of the same kind is outstanding
var ErrBusy = errors.New("request already pending")

// Default response deadlines
const (
	NextRunTimeout   = 3 * time.Second
	SchedulesTimeout = 5 * time.Second
)

type key struct {
	deviceID string
	kind     models.RequestKind
}

type entry struct {
	req   models.PendingRequest
	timer *clock.Timer
}

// Correlator pairs requests with responses on a bus that has no request
// ids. Responses are recognised by topic, so only one request per device
// and kind may be outstanding.
type Correlator struct {
	mu        sync.Mutex
	clock     clock.Clock
	pending   map[key]*entry
	onTimeout func(deviceID string, kind models.RequestKind)
}

// New creates a correlator. onTimeout is called once for every request
// that expires without a response; it may be nil.
func New(clk clock.Clock, onTimeout func(deviceID string, kind models.RequestKind)) *Correlator {
	if clk == nil {
		clk = clock.New()
	}
	return &Correlator{
		clock:     clk,
		pending:   make(map[key]*entry),
		onTimeout: onTimeout,
	}
}

// Request registers a pending request, publishes it and arms its deadline.
// It returns ErrBusy without publishing if one is already outstanding.
func (c *Correlator) Request(deviceID string, kind models.RequestKind, publish func(), timeout time.Duration) error {
	k := key{deviceID, kind}

	c.mu.Lock()
	if _, ok := c.pending[k]; ok {
		c.mu.Unlock()
		return ErrBusy
	}
	e := &entry{req: models.PendingRequest{
		DeviceID: deviceID,
		Kind:     kind,
		Deadline: c.clock.Now().Add(timeout),
	}}
	c.pending[k] = e
	e.timer = c.clock.AfterFunc(timeout, func() { c.expire(k, e) })
	c.mu.Unlock()

	publish()
	return nil
}

// Complete clears a pending request when its response arrives. It reports
// whether a request was outstanding.
func (c *Correlator) Complete(deviceID string, kind models.RequestKind) bool {
	k := key{deviceID, kind}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.pending[k]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(c.pending, k)
	return true
}

// Pending reports whether a request is outstanding
func (c *Correlator) Pending(deviceID string, kind models.RequestKind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[key{deviceID, kind}]
	return ok
}

// Outstanding lists every pending request
func (c *Correlator) Outstanding() []models.PendingRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.PendingRequest, 0, len(c.pending))
	for _, e := range c.pending {
		out = append(out, e.req)
	}
	return out
}

func (c *Correlator) expire(k key, e *entry) {
	c.mu.Lock()
	// a response or a newer request may have replaced this entry
	if cur, ok := c.pending[k]; !ok || cur != e {
		c.mu.Unlock()
		return
	}
	delete(c.pending, k)
	c.mu.Unlock()

	log.Printf("CORRELATOR: No response to %s from %s", k.kind, k.deviceID)
	if c.onTimeout != nil {
		c.onTimeout(k.deviceID, k.kind)
	}
}
