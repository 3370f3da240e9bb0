package notify

import (
	"context"
	"log"
	"time"
)

// Notifier is the push side effect used by the engine
type Notifier interface {
	Notify(title, body string)
}

// Sender delivers a single notification and reports failures, so queue
// workers can retry
type Sender interface {
	Send(ctx context.Context, title, body string) error
}

// Kind names an entry of the notification catalogue
type Kind string

const (
	PumpStart     Kind = "pump_start"
	PumpStop      Kind = "pump_stop"
	DeviceOnline  Kind = "device_online"
	DeviceOffline Kind = "device_offline"
)

type message struct {
	title string
	body  string
}

var catalogue = map[Kind]message{
	PumpStart:     {"Pump Started", "Your irrigation pump has started"},
	PumpStop:      {"Pump Stopped", "Your irrigation pump has stopped"},
	DeviceOnline:  {"Device Online", "Your device is now connected"},
	DeviceOffline: {"Device Offline", "Your device has disconnected"},
}

// Build returns the title and body for kind, naming the device when given
func Build(kind Kind, deviceID string) (title, body string) {
	m, ok := catalogue[kind]
	if !ok {
		return string(kind), deviceID
	}
	body = m.body
	if deviceID != "" {
		body += " (Device: " + deviceID + ")"
	}
	return m.title, body
}

// LogSender writes notifications to the log
type LogSender struct{}

func (LogSender) Send(_ context.Context, title, body string) error {
	log.Printf("NOTIFY: %s - %s", title, body)
	return nil
}

// Async adapts a Sender to a Notifier, delivering in the background
type Async struct {
	Sender  Sender
	Timeout time.Duration
}

func (a Async) Notify(title, body string) {
	timeout := a.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := a.Sender.Send(ctx, title, body); err != nil {
			log.Printf("NOTIFY: Failed to deliver %q: %v", title, err)
		}
	}()
}

// Nop discards notifications
type Nop struct{}

func (Nop) Notify(string, string) {}
