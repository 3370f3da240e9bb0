package schedule

import (
	"context"
	"errors"
	"testing"

	"beegreen/internal/models"
	"beegreen/internal/storage"
)

func fullTable() Table {
	var table Table
	for i := range table {
		table[i] = models.ScheduleSlot{Index: i, Hour: i + 1, Min: 10, Dur: 60, Dow: models.EveryDay, Enabled: true}
	}
	return table
}

func TestLoadFillsMissingSlots(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	persisted := []models.ScheduleSlot{
		{Index: 2, Hour: 7, Min: 30, Dur: 45, Dow: 62, Enabled: true},
		{Index: 42, Hour: 1},
	}
	if err := storage.SetJSON(ctx, kv, "schedules:D1", persisted); err != nil {
		t.Fatalf("seed: %v", err)
	}

	table := NewStore(kv).Load(ctx, "D1")
	for i, slot := range table {
		if slot.Index != i {
			t.Fatalf("slot %d has index %d", i, slot.Index)
		}
		if i == 2 {
			if slot != persisted[0] {
				t.Fatalf("slot 2 = %+v", slot)
			}
			continue
		}
		if !slot.IsEmpty() {
			t.Fatalf("slot %d should be empty, got %+v", i, slot)
		}
	}
}

func TestLoadUnknownDeviceIsEmpty(t *testing.T) {
	table := NewStore(storage.NewMemory()).Load(context.Background(), "nobody")
	if models.ActiveCount(table) != 0 {
		t.Fatalf("expected empty table, got %+v", table)
	}
}

func TestReconcileReplacesInsteadOfMerging(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	store := NewStore(kv)
	for _, slot := range fullTable() {
		if _, err := store.ApplyLocalEdit(ctx, "D1", slot); err != nil {
			t.Fatalf("seed slot: %v", err)
		}
	}
	if got := models.ActiveCount(store.Load(ctx, "D1")); got != 10 {
		t.Fatalf("expected 10 active slots, got %d", got)
	}

	remote := models.ScheduleSlot{Index: 3, Hour: 6, Min: 15, Dur: 300, Dow: 1, Enabled: false}
	table := store.Reconcile(ctx, "D1", []models.ScheduleSlot{remote})
	for i, slot := range table {
		if i == 3 {
			if slot != remote {
				t.Fatalf("slot 3 = %+v", slot)
			}
			continue
		}
		if slot != models.EmptySlot(i) {
			t.Fatalf("slot %d not reset: %+v", i, slot)
		}
	}

	// persisted copy matches memory
	fresh := NewStore(kv).Load(ctx, "D1")
	if fresh != table {
		t.Fatalf("persisted table differs from memory")
	}
}

func TestApplyLocalEdit(t *testing.T) {
	ctx := context.Background()
	store := NewStore(storage.NewMemory())
	slot := models.ScheduleSlot{Index: 0, Hour: 8, Dur: 60, Dow: 62, Enabled: true}
	table, err := store.ApplyLocalEdit(ctx, "D1", slot)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if table[0] != slot || models.ActiveCount(table) != 1 {
		t.Fatalf("unexpected table %+v", table)
	}

	if _, err := store.ApplyLocalEdit(ctx, "D1", models.ScheduleSlot{Index: 11}); !errors.Is(err, ErrInvalidSlot) {
		t.Fatalf("expected ErrInvalidSlot, got %v", err)
	}

	// later reconcile supersedes the optimistic value
	table = store.Reconcile(ctx, "D1", nil)
	if models.ActiveCount(table) != 0 {
		t.Fatalf("expected reconcile to clear optimistic edit")
	}
}

type failingKV struct{ storage.KV }

func (failingKV) Set(context.Context, string, []byte) error { return errors.New("disk full") }

func TestPersistFailureKeepsMemory(t *testing.T) {
	ctx := context.Background()
	store := NewStore(failingKV{storage.NewMemory()})
	slot := models.ScheduleSlot{Index: 1, Hour: 5, Dur: 10}
	if _, err := store.ApplyLocalEdit(ctx, "D1", slot); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if store.Load(ctx, "D1")[1] != slot {
		t.Fatalf("in-memory table lost after persist failure")
	}
}

func TestRemoveAndDeviceListCache(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	store := NewStore(kv)
	store.Reconcile(ctx, "D1", []models.ScheduleSlot{{Index: 0, Hour: 1, Dur: 1}})
	store.Remove(ctx, "D1")
	if _, err := kv.Get(ctx, "schedules:D1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected persisted table removed, got %v", err)
	}

	ids, err := store.CachedDeviceList(ctx)
	if err != nil || ids != nil {
		t.Fatalf("expected empty device list, got %v %v", ids, err)
	}
	if err := store.CacheDeviceList(ctx, []string{"D1", "D2"}); err != nil {
		t.Fatalf("cache list: %v", err)
	}
	ids, err = store.CachedDeviceList(ctx)
	if err != nil || len(ids) != 2 {
		t.Fatalf("unexpected list %v %v", ids, err)
	}
}
