package correlator

import (
	"errors"
	"testing"
	"time"

	"beegreen/internal/models"

	"github.com/benbjohnson/clock"
)

type timeoutEvent struct {
	deviceID string
	kind     models.RequestKind
}

func newTestCorrelator() (*Correlator, *clock.Mock, chan timeoutEvent) {
	mock := clock.NewMock()
	events := make(chan timeoutEvent, 8)
	c := New(mock, func(id string, kind models.RequestKind) {
		events <- timeoutEvent{id, kind}
	})
	return c, mock, events
}

func expectNoEvent(t *testing.T, events chan timeoutEvent) {
	t.Helper()
	select {
	case ev := <-events:
		t.Fatalf("unexpected timeout event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTimeoutEmitsExactlyOneNoResponse(t *testing.T) {
	c, mock, events := newTestCorrelator()
	published := 0
	if err := c.Request("D1", models.GetNextRun, func() { published++ }, 3000*time.Millisecond); err != nil {
		t.Fatalf("request: %v", err)
	}
	if published != 1 {
		t.Fatalf("expected one publish, got %d", published)
	}

	mock.Add(2999 * time.Millisecond)
	expectNoEvent(t, events)
	if !c.Pending("D1", models.GetNextRun) {
		t.Fatalf("request should still be pending at 2999ms")
	}

	mock.Add(2 * time.Millisecond)
	select {
	case ev := <-events:
		if ev.deviceID != "D1" || ev.kind != models.GetNextRun {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected no-response notification at 3001ms")
	}
	if c.Pending("D1", models.GetNextRun) {
		t.Fatalf("pending entry not cleared after timeout")
	}

	mock.Add(10 * time.Second)
	expectNoEvent(t, events)
}

func TestBusyWhilePending(t *testing.T) {
	c, _, _ := newTestCorrelator()
	noop := func() {}
	if err := c.Request("D1", models.GetSchedules, noop, SchedulesTimeout); err != nil {
		t.Fatalf("first request: %v", err)
	}
	published := false
	err := c.Request("D1", models.GetSchedules, func() { published = true }, SchedulesTimeout)
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if published {
		t.Fatalf("busy request must not publish")
	}
	// other kinds and other devices are independent
	if err := c.Request("D1", models.GetNextRun, noop, NextRunTimeout); err != nil {
		t.Fatalf("other kind: %v", err)
	}
	if err := c.Request("D2", models.GetSchedules, noop, SchedulesTimeout); err != nil {
		t.Fatalf("other device: %v", err)
	}
	if got := len(c.Outstanding()); got != 3 {
		t.Fatalf("expected 3 outstanding, got %d", got)
	}
}

func TestCompleteCancelsTimer(t *testing.T) {
	c, mock, events := newTestCorrelator()
	if err := c.Request("D1", models.GetSchedules, func() {}, SchedulesTimeout); err != nil {
		t.Fatalf("request: %v", err)
	}
	if !c.Complete("D1", models.GetSchedules) {
		t.Fatalf("expected pending request to complete")
	}
	if c.Complete("D1", models.GetSchedules) {
		t.Fatalf("second completion must report false")
	}
	mock.Add(SchedulesTimeout * 2)
	expectNoEvent(t, events)

	// a new request can be issued right away
	if err := c.Request("D1", models.GetSchedules, func() {}, SchedulesTimeout); err != nil {
		t.Fatalf("re-request: %v", err)
	}
}

func TestUnsolicitedResponseIsIgnored(t *testing.T) {
	c, _, _ := newTestCorrelator()
	if c.Complete("D9", models.GetNextRun) {
		t.Fatalf("completion without request must report false")
	}
}
