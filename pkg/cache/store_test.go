package cache

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/kiosk-proxy/internal/testutil"
)

var testStart = time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC)

func TestNewStore_DefaultClock(t *testing.T) {
	store := NewStore[string]("test", nil)
	if store.now == nil {
		t.Fatal("NewStore should fall back to time.Now")
	}
	if store.Name() != "test" {
		t.Errorf("Name() = %q, want %q", store.Name(), "test")
	}
}

func TestStore_SetAndGet(t *testing.T) {
	clock := testutil.NewClock(testStart)
	store := NewStore[string]("test", clock.Now)

	store.Set("k", "v1")

	got, ok := store.Get("k", 20*time.Second)
	if !ok {
		t.Fatal("Get() miss, want hit")
	}
	if got != "v1" {
		t.Errorf("Get() = %q, want %q", got, "v1")
	}
}

func TestStore_Get_Missing(t *testing.T) {
	store := NewStore[int]("test", nil)

	got, ok := store.Get("absent", time.Minute)
	if ok {
		t.Error("Get() hit on empty store")
	}
	if got != 0 {
		t.Errorf("Get() = %d, want zero value", got)
	}
}

func TestStore_Get_TTL(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		ttl     time.Duration
		wantHit bool
	}{
		{name: "fresh", elapsed: 5 * time.Second, ttl: 20 * time.Second, wantHit: true},
		{name: "exactly at ttl", elapsed: 20 * time.Second, ttl: 20 * time.Second, wantHit: true},
		{name: "just past ttl", elapsed: 20*time.Second + time.Millisecond, ttl: 20 * time.Second, wantHit: false},
		{name: "daily fresh", elapsed: 89 * time.Second, ttl: 90 * time.Second, wantHit: true},
		{name: "daily stale", elapsed: 91 * time.Second, ttl: 90 * time.Second, wantHit: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := testutil.NewClock(testStart)
			store := NewStore[string]("test", clock.Now)
			store.Set("k", "v")

			clock.Advance(tt.elapsed)

			if _, ok := store.Get("k", tt.ttl); ok != tt.wantHit {
				t.Errorf("Get() hit = %v, want %v", ok, tt.wantHit)
			}
		})
	}
}

func TestStore_TTLIsPerRead(t *testing.T) {
	clock := testutil.NewClock(testStart)
	store := NewStore[string]("test", clock.Now)
	store.Set("k", "v")
	clock.Advance(30 * time.Second)

	if _, ok := store.Get("k", 20*time.Second); ok {
		t.Error("Get() with 20s TTL should miss after 30s")
	}
	if _, ok := store.Get("k", 90*time.Second); !ok {
		t.Error("Get() with 90s TTL should hit after 30s")
	}
}

func TestStore_StaleEntryNotPurged(t *testing.T) {
	clock := testutil.NewClock(testStart)
	store := NewStore[string]("test", clock.Now)
	store.Set("k", "v")
	clock.Advance(time.Hour)

	if _, ok := store.Get("k", time.Second); ok {
		t.Fatal("Get() should miss on stale entry")
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (stale entries are kept)", store.Len())
	}
	entry, ok := store.Peek("k")
	if !ok || entry.Value != "v" {
		t.Errorf("Peek() = %+v, %v, want stale value kept", entry, ok)
	}
}

func TestStore_SetRefreshesCapturedAt(t *testing.T) {
	clock := testutil.NewClock(testStart)
	store := NewStore[string]("test", clock.Now)
	store.Set("k", "old")
	clock.Advance(time.Minute)
	store.Set("k", "new")

	got, ok := store.Get("k", 20*time.Second)
	if !ok || got != "new" {
		t.Errorf("Get() = %q, %v, want %q, true", got, ok, "new")
	}
}

func TestStore_KeysIndependent(t *testing.T) {
	clock := testutil.NewClock(testStart)
	store := NewStore[string]("test", clock.Now)
	store.Set(DailyKey("AAPL"), "aapl")
	clock.Advance(60 * time.Second)
	store.Set(DailyKey("MSFT"), "msft")
	clock.Advance(60 * time.Second)

	if _, ok := store.Get(DailyKey("AAPL"), 90*time.Second); ok {
		t.Error("AAPL should be stale")
	}
	if got, ok := store.Get(DailyKey("MSFT"), 90*time.Second); !ok || got != "msft" {
		t.Errorf("MSFT Get() = %q, %v, want fresh", got, ok)
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	store := NewStore[int]("test", nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := "k" + strconv.Itoa(i%5)
			store.Set(key, i)
			store.Get(key, time.Minute)
		}(i)
	}
	wg.Wait()

	if store.Len() != 5 {
		t.Errorf("Len() = %d, want 5", store.Len())
	}
}
