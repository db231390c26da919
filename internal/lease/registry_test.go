package lease

import (
	"context"
	"testing"
	"time"

	pebblestore "github.com/rzbill/labeld/internal/storage/pebble"
)

func openTestRegistry(t *testing.T, ttl time.Duration) (*Registry, *int64) {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	r := New(db, Options{TTL: ttl, ScanInterval: 5 * time.Millisecond}, nil)
	now := int64(1_000_000)
	r.NowMs = func() int64 { return now }
	return r, &now
}

func TestAcquireReleaseHeld(t *testing.T) {
	r, _ := openTestRegistry(t, time.Minute)
	ctx := context.Background()

	if err := r.Acquire(ctx, "mcq/a"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	held, err := r.Held(ctx, "mcq/a")
	if err != nil || !held {
		t.Fatalf("held: %v %v", held, err)
	}
	if err := r.Release(ctx, "mcq/a"); err != nil {
		t.Fatalf("release: %v", err)
	}
	held, err = r.Held(ctx, "mcq/a")
	if err != nil || held {
		t.Fatalf("still held after release")
	}
	// Releasing an absent key is a no-op.
	if err := r.Release(ctx, "mcq/a"); err != nil {
		t.Fatalf("double release: %v", err)
	}
}

func TestExpiryNotification(t *testing.T) {
	r, now := openTestRegistry(t, time.Minute)
	ctx := context.Background()

	if err := r.Acquire(ctx, "txt/a#0"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	r.Start()
	defer r.Stop()

	*now += time.Minute.Milliseconds() + 1

	select {
	case key := <-r.Expirations():
		if key != "txt/a#0" {
			t.Fatalf("expired key = %q", key)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no expiry notification")
	}

	held, err := r.Held(ctx, "txt/a#0")
	if err != nil || held {
		t.Fatalf("marker should be gone after expiry")
	}
}

func TestRefreshRestartsTTL(t *testing.T) {
	r, now := openTestRegistry(t, time.Minute)
	ctx := context.Background()

	if err := r.Acquire(ctx, "mcq/a"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	*now += 30_000
	if err := r.Acquire(ctx, "mcq/a"); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	*now += 45_000 // 75s after first acquire, 45s after refresh
	held, err := r.Held(ctx, "mcq/a")
	if err != nil || !held {
		t.Fatalf("refreshed marker should still be held")
	}
	if err := r.sweepExpired(); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	select {
	case key := <-r.Expirations():
		t.Fatalf("unexpected expiry for %q", key)
	default:
	}
}
