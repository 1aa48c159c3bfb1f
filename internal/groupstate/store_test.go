package groupstate

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	logx "groupcast/pkg/logx"
)

func storeDrivers(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := OpenStore(StoreConfig{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "state.db"),
		BusyTimeout: time.Second,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sq,
	}
}

func TestStoreConditionalUpdate(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for name, store := range storeDrivers(t) {
		t.Run(name, func(t *testing.T) {
			st := NewGroupState("g1", "a1", t0, DefaultRampUp())
			if err := store.Create(ctx, st); err != nil {
				t.Fatalf("create: %v", err)
			}
			if err := store.Create(ctx, st); !errors.Is(err, ErrExists) {
				t.Fatalf("expected ErrExists on duplicate create, got %v", err)
			}

			got, v1, err := store.Get(ctx, "g1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.GroupID != "g1" || !got.HasAccount("a1") || got.RampUntil == nil {
				t.Fatalf("unexpected state after round-trip: %+v", got)
			}

			got.pushPostTime(t0.Add(time.Hour))
			if err := store.Update(ctx, got, v1); err != nil {
				t.Fatalf("update: %v", err)
			}

			// Stale version must lose cleanly: no partial growth.
			got.pushPostTime(t0.Add(2 * time.Hour))
			if err := store.Update(ctx, got, v1); !errors.Is(err, ErrConflict) {
				t.Fatalf("expected ErrConflict on stale write, got %v", err)
			}
			cur, v2, err := store.Get(ctx, "g1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if v2 == v1 {
				t.Fatal("version must advance after a successful update")
			}
			if len(cur.LastPostTimes) != 1 {
				t.Fatalf("lost-update protection failed: %v", cur.LastPostTimes)
			}

			if _, _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestStoreList(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for name, store := range storeDrivers(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"g1", "g2", "g3"} {
				if err := store.Create(ctx, NewGroupState(id, "a1", t0, RampUpConfig{})); err != nil {
					t.Fatalf("create %s: %v", id, err)
				}
			}
			all, err := store.List(ctx)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(all) != 3 {
				t.Fatalf("expected 3 states, got %d", len(all))
			}
		})
	}
}

func TestMemoryStoreIsolation(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()

	st := NewGroupState("g1", "a1", t0, RampUpConfig{})
	if err := store.Create(ctx, st); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Mutating a handed-out copy must not leak into the store.
	got, _, _ := store.Get(ctx, "g1")
	got.AssignedAccounts = append(got.AssignedAccounts, "rogue")
	again, _, _ := store.Get(ctx, "g1")
	if again.HasAccount("rogue") {
		t.Fatal("store must hand out isolated copies")
	}
}
