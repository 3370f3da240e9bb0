package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestBuild(t *testing.T) {
	title, body := Build(DeviceOffline, "D1")
	if title != "Device Offline" || body != "Your device has disconnected (Device: D1)" {
		t.Fatalf("unexpected message %q %q", title, body)
	}
	title, body = Build(PumpStart, "")
	if title != "Pump Started" || body != "Your irrigation pump has started" {
		t.Fatalf("unexpected message %q %q", title, body)
	}
}

func TestBarkSender(t *testing.T) {
	var got barkPush
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bark/push" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Write([]byte(`{"code":200,"message":"success"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	sender, err := NewBarkSender(srv.URL+"/bark/", "key1", "beegreen", time.Second)
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}
	if err := sender.Send(context.Background(), "Pump Started", "body"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.DeviceKey != "key1" || got.Title != "Pump Started" || got.Group != "beegreen" {
		t.Fatalf("unexpected push %+v", got)
	}
}

func TestBarkSenderReportsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":400,"message":"failed to get device token"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	sender, err := NewBarkSender(srv.URL, "key1", "", time.Second)
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}
	if err := sender.Send(context.Background(), "t", "b"); err == nil {
		t.Fatalf("expected error for rejected push")
	}
}

func TestNewBarkSenderValidates(t *testing.T) {
	if _, err := NewBarkSender("", "k", "", time.Second); err == nil {
		t.Fatalf("expected error for empty url")
	}
	if _, err := NewBarkSender("example.com/bark", "k", "", time.Second); err == nil {
		t.Fatalf("expected error for url without scheme")
	}
	if _, err := NewBarkSender("http://x", "", "", time.Second); err == nil {
		t.Fatalf("expected error for empty key")
	}
}
