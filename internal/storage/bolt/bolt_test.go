package bolt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"beegreen/internal/storage"
)

func TestBoltPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "cache.db")

	store, err := New(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Set(ctx, "schedules:D1", []byte("payload")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store, err = New(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer store.Close() //nolint:errcheck

	got, err := store.Get(ctx, "schedules:D1")
	if err != nil || string(got) != "payload" {
		t.Fatalf("get after reopen: %q %v", got, err)
	}
	if err := store.Delete(ctx, "schedules:D1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "schedules:D1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBoltHonoursCancelledContext(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := store.Set(ctx, "k", []byte("v")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
