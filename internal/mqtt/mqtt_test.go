package mqtt

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestBrokerURL(t *testing.T) {
	cases := []struct {
		broker string
		tls    bool
		want   string
	}{
		{"localhost", false, "tcp://localhost:1883"},
		{"broker.local:1884", false, "tcp://broker.local:1884"},
		{"mqtt.example.com", true, "ssl://mqtt.example.com:8883"},
		{"ws://10.0.0.2:9001", true, "ws://10.0.0.2:9001"},
	}
	for _, tc := range cases {
		if got := BrokerURL(tc.broker, tc.tls); got != tc.want {
			t.Fatalf("BrokerURL(%q, %v) = %q, want %q", tc.broker, tc.tls, got, tc.want)
		}
	}
}

func TestNewClientIDUnique(t *testing.T) {
	a, b := NewClientID("app"), NewClientID("app")
	if a == b || !strings.HasPrefix(a, "app-") {
		t.Fatalf("unexpected ids %q %q", a, b)
	}
	if !strings.HasPrefix(NewClientID(""), "beegreen-") {
		t.Fatalf("expected default prefix")
	}
}

func TestClientOptions(t *testing.T) {
	opts := clientOptions(Options{
		Broker:         "broker",
		Username:       "user",
		Password:       "secret",
		TLS:            true,
		ConnectTimeout: 2 * time.Second,
	}, Handlers{}, nil)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://broker:8883" {
		t.Fatalf("unexpected servers %v", opts.Servers)
	}
	if opts.Username != "user" || opts.Password != "secret" {
		t.Fatalf("credentials not applied")
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Fatalf("expected auto reconnect with clean session")
	}
	if opts.TLSConfig == nil {
		t.Fatalf("expected TLS config")
	}
	if !strings.HasPrefix(opts.ClientID, "beegreen-") {
		t.Fatalf("expected generated client id, got %q", opts.ClientID)
	}
}

type doneToken struct {
	err  error
	done chan struct{}
}

func newDoneToken(err error) *doneToken {
	t := &doneToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Done() <-chan struct{}          { return t.done }
func (t *doneToken) Error() error                   { return t.err }

func TestWatchReportsFailures(t *testing.T) {
	errs := make(chan error, 4)
	c := &Client{onError: func(err error) { errs <- err }}

	c.watch("Publish", "D1/pump_trigger", newDoneToken(errors.New("not connected")), true)
	select {
	case err := <-errs:
		if !strings.Contains(err.Error(), "publish D1/pump_trigger") {
			t.Fatalf("unexpected error %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("publish failure not reported")
	}

	c.watch("Unsubscribe", "D1/status", newDoneToken(errors.New("not connected")), false)
	c.watch("Publish", "D1/status", newDoneToken(nil), true)
	select {
	case err := <-errs:
		t.Fatalf("unexpected report %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}
