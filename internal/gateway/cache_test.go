package gateway

import (
	"fmt"
	"testing"
	"time"

	"github.com/talgya/electorate/internal/analysis"
)

func TestCacheRoundTrip(t *testing.T) {
	c := NewCache(10, time.Hour)
	now := time.Now()
	res := analysis.Result{Stance: "reform", ConfidenceDelta: 0.05}

	c.Put("k1", res, now)

	got, ok := c.Get("k1", now.Add(time.Minute))
	if !ok {
		t.Fatal("fresh entry missed")
	}
	if got != res {
		t.Errorf("got %+v, want %+v", got, res)
	}
}

func TestCacheNeverServesExpiredEntries(t *testing.T) {
	c := NewCache(10, time.Minute)
	now := time.Now()
	c.Put("k1", analysis.Result{Stance: "reform"}, now)

	if _, ok := c.Get("k1", now.Add(time.Minute)); ok {
		t.Error("entry served exactly at TTL")
	}
	if _, ok := c.Get("k1", now.Add(2*time.Minute)); ok {
		t.Error("entry served past TTL")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry still resident, Len = %d", c.Len())
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(2, time.Hour)
	now := time.Now()

	c.Put("a", analysis.Result{Stance: "a"}, now)
	c.Put("b", analysis.Result{Stance: "b"}, now)

	// Touch "a" so "b" becomes the eviction candidate.
	c.Get("a", now)
	c.Put("c", analysis.Result{Stance: "c"}, now)

	if _, ok := c.Get("b", now); ok {
		t.Error("least-recently-used entry survived eviction")
	}
	if _, ok := c.Get("a", now); !ok {
		t.Error("recently-used entry was evicted")
	}
	if _, ok := c.Get("c", now); !ok {
		t.Error("new entry missing after eviction")
	}
}

func TestCacheNeverStoresFallbackResults(t *testing.T) {
	c := NewCache(10, time.Hour)
	now := time.Now()

	c.Put("k1", analysis.Result{Fallback: true, Stance: "undetermined"}, now)

	if _, ok := c.Get("k1", now); ok {
		t.Error("fallback result was cached")
	}
}

func TestCachePutUpdatesExistingEntry(t *testing.T) {
	c := NewCache(10, time.Minute)
	now := time.Now()

	c.Put("k1", analysis.Result{Stance: "old"}, now)
	c.Put("k1", analysis.Result{Stance: "new"}, now.Add(30*time.Second))

	// The refresh also restarts the TTL clock.
	got, ok := c.Get("k1", now.Add(80*time.Second))
	if !ok {
		t.Fatal("refreshed entry missed")
	}
	if got.Stance != "new" {
		t.Errorf("stance = %q, want %q", got.Stance, "new")
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d after in-place update, want 1", c.Len())
	}
}

func TestCacheHitRate(t *testing.T) {
	c := NewCache(10, time.Hour)
	now := time.Now()
	c.Put("k1", analysis.Result{Stance: "x"}, now)

	c.Get("k1", now)     // hit
	c.Get("k1", now)     // hit
	c.Get("absent", now) // miss

	if got := c.HitRate(); got < 0.66 || got > 0.67 {
		t.Errorf("hit rate = %v, want 2/3", got)
	}
}

func TestCacheCapacityBound(t *testing.T) {
	c := NewCache(5, time.Hour)
	now := time.Now()

	for i := 0; i < 20; i++ {
		c.Put(fmt.Sprintf("k%d", i), analysis.Result{}, now)
	}
	if c.Len() != 5 {
		t.Errorf("Len = %d, want capacity 5", c.Len())
	}
}
