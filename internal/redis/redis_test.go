package redis

import (
	"context"
	"errors"
	"testing"

	"beegreen/internal/storage"

	"github.com/alicebob/miniredis/v2"
)

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	store := NewStore(NewRedisClient(mr.Addr()))
	defer store.Close() //nolint:errcheck

	if _, err := store.Get(ctx, "devices"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Set(ctx, "devices", []byte(`["D1"]`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !mr.Exists("beegreen:devices") {
		t.Fatalf("expected prefixed key in redis")
	}
	got, err := store.Get(ctx, "devices")
	if err != nil || string(got) != `["D1"]` {
		t.Fatalf("get: %q %v", got, err)
	}
	if err := store.Delete(ctx, "devices"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists("beegreen:devices") {
		t.Fatalf("expected key removed")
	}
}
