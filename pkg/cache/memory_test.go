package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeClock lets tests advance cache time deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(maxEntries int) (*MemoryStore, *fakeClock) {
	store := NewMemoryStore(maxEntries)
	clock := newFakeClock()
	store.now = clock.Now
	return store, clock
}

func TestMemoryStore_SetThenGet(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(10)

	if err := store.Set(ctx, "active:limit=50", []byte(`["a"]`), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := store.Get(ctx, "active:limit=50")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != `["a"]` {
		t.Errorf("Get() = %q, want %q", got, `["a"]`)
	}
}

func TestMemoryStore_MissOnUnknownKey(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(10)

	if _, err := store.Get(ctx, "nope"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() error = %v, want ErrCacheMiss", err)
	}
}

func TestMemoryStore_ExpiryPurgesEntry(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(10)

	if err := store.Set(ctx, "market:id=abc", []byte(`{}`), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	// Just before the TTL elapses the entry is still served.
	clock.Advance(59 * time.Second)
	if _, err := store.Get(ctx, "market:id=abc"); err != nil {
		t.Fatalf("Get() before expiry error = %v", err)
	}

	// At exactly now - creation >= ttl the entry is expired.
	clock.Advance(1 * time.Second)
	if _, err := store.Get(ctx, "market:id=abc"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() after expiry error = %v, want ErrCacheMiss", err)
	}

	// The expired entry was removed, not just hidden.
	n, err := store.Len(ctx)
	if err != nil {
		t.Fatalf("Len() error = %v", err)
	}
	if n != 0 {
		t.Errorf("Len() after expiry purge = %d, want 0", n)
	}
}

func TestMemoryStore_InsertionOrderEviction(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(2)

	for _, key := range []string{"k1", "k2", "k3"} {
		if err := store.Set(ctx, key, []byte(key), time.Minute); err != nil {
			t.Fatalf("Set(%q) error = %v", key, err)
		}
	}

	// k1 was the oldest insertion and must have been evicted.
	if _, err := store.Get(ctx, "k1"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get(k1) error = %v, want ErrCacheMiss", err)
	}
	for _, key := range []string{"k2", "k3"} {
		if _, err := store.Get(ctx, key); err != nil {
			t.Errorf("Get(%q) error = %v, want hit", key, err)
		}
	}
}

func TestMemoryStore_ReplaceCountsAsFreshInsertion(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(2)

	mustSet := func(key, val string) {
		t.Helper()
		if err := store.Set(ctx, key, []byte(val), time.Minute); err != nil {
			t.Fatalf("Set(%q) error = %v", key, err)
		}
	}

	mustSet("k1", "v1")
	mustSet("k2", "v2")
	mustSet("k1", "v1b") // re-insert moves k1 to the back of the order
	mustSet("k3", "v3")  // k2 is now the oldest and gets evicted

	if _, err := store.Get(ctx, "k2"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get(k2) error = %v, want ErrCacheMiss", err)
	}
	got, err := store.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get(k1) error = %v", err)
	}
	if string(got) != "v1b" {
		t.Errorf("Get(k1) = %q, want replaced value %q", got, "v1b")
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(10)

	if err := store.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() after delete error = %v, want ErrCacheMiss", err)
	}

	// Deleting an absent key is a no-op.
	if err := store.Delete(ctx, "missing"); err != nil {
		t.Errorf("Delete(missing) error = %v", err)
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(64)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = store.Set(ctx, "shared", []byte("value"), time.Minute)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				v, err := store.Get(ctx, "shared")
				if err == nil && string(v) != "value" {
					t.Errorf("Get() observed partial value %q", v)
					return
				}
			}
		}()
	}
	wg.Wait()
}
