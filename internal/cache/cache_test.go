package cache

import (
	"fmt"
	"testing"
)

func TestCache_SetGet(t *testing.T) {
	c := New(Options{MaxBytes: 1024})
	if err := c.Set("a", "hello"); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	v, ok := c.Get("a")
	if !ok || v != "hello" {
		t.Fatalf("Get = %v, %v want hello, true", v, ok)
	}
}

func TestCache_MissDoesNotMutateRecency(t *testing.T) {
	c := New(Options{MaxBytes: 4})
	c.Set("a", "xx")
	c.Set("b", "xx")
	if _, ok := c.Get("missing"); ok {
		t.Fatalf("expected miss")
	}
	stats := c.Stats()
	if stats.Misses != 1 {
		t.Fatalf("misses=%d want 1", stats.Misses)
	}
	// "a" is still least recently used, so the next insert evicts it.
	c.Set("c", "xx")
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected a to be evicted")
	}
	if _, ok := c.Get("b"); !ok {
		t.Fatalf("expected b to remain")
	}
}

func TestCache_OversizedValueRejected(t *testing.T) {
	c := New(Options{MaxBytes: 4})
	err := c.Set("a", "too big for four bytes")
	if err != ErrOversizedValue {
		t.Fatalf("err = %v want ErrOversizedValue", err)
	}
	if c.Len() != 0 {
		t.Fatalf("len=%d want 0, oversized value must not be stored", c.Len())
	}
}

// P1: current_size never exceeds max_bytes after any Set whose individual
// size is within budget.
func TestCache_BoundInvariant(t *testing.T) {
	c := New(Options{MaxBytes: 256})
	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("k%d", i)
		if err := c.Set(key, "0123456789"); err != nil {
			t.Fatalf("Set(%s): %v", key, err)
		}
		if c.Stats().CurrentSize > 256 {
			t.Fatalf("current_size exceeded max_bytes after Set(%s)", key)
		}
	}
}

// P2: accessing k1 via Get before the next evicting Set must protect it
// from eviction ahead of later-inserted, not-yet-accessed keys.
func TestCache_LRU_RecencyProtectsAccessedKey(t *testing.T) {
	c := New(Options{MaxBytes: 30}) // fits 3 entries of 10 bytes each
	c.Set("k1", "0123456789")
	c.Set("k2", "0123456789")
	c.Set("k3", "0123456789")

	// k1 is now least-recently-used. Touch it.
	if _, ok := c.Get("k1"); !ok {
		t.Fatalf("expected k1 present")
	}

	// Insert k4, forcing one eviction. k2 is now LRU, not k1.
	c.Set("k4", "0123456789")

	if _, ok := c.Get("k1"); !ok {
		t.Fatalf("k1 was evicted before a later, untouched key")
	}
	if _, ok := c.Get("k2"); ok {
		t.Fatalf("expected k2 to have been evicted instead of k1")
	}
}

func TestCache_EvictionUnderLoad(t *testing.T) {
	c := New(Options{MaxBytes: 4096})
	val := make([]byte, 64)
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("k%d", i)
		if err := c.Set(key, val); err != nil {
			t.Fatalf("Set(%s): %v", key, err)
		}
	}
	stats := c.Stats()
	if c.Len() >= 100 {
		t.Fatalf("len=%d want < 100 under byte pressure", c.Len())
	}
	if stats.CurrentSize > 4096 {
		t.Fatalf("current_size=%d want <= 4096", stats.CurrentSize)
	}
	if stats.Evictions == 0 {
		t.Fatalf("expected evictions > 0")
	}
	if _, ok := c.Get("k99"); !ok {
		t.Fatalf("expected last-inserted key k99 to still be present")
	}
}

func TestCache_Delete(t *testing.T) {
	c := New(Options{MaxBytes: 1024})
	c.Set("a", "x")
	if !c.Delete("a") {
		t.Fatalf("expected Delete to report found")
	}
	if c.Delete("a") {
		t.Fatalf("expected second Delete to report not found")
	}
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected a absent after delete")
	}
}

func TestCache_Clear(t *testing.T) {
	c := New(Options{MaxBytes: 1024})
	c.Set("a", "x")
	c.Set("b", "y")
	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("len=%d want 0 after Clear", c.Len())
	}
	if c.Stats().CurrentSize != 0 {
		t.Fatalf("current_size not reset after Clear")
	}
}

func TestCache_ResetStatistics(t *testing.T) {
	c := New(Options{MaxBytes: 8})
	c.Set("a", "xxxxxxxx")
	c.Get("a")
	c.Get("missing")
	c.ResetStatistics()
	stats := c.Stats()
	if stats.Hits != 0 || stats.Misses != 0 || stats.Evictions != 0 {
		t.Fatalf("counters not reset: %+v", stats)
	}
	if c.Len() != 1 {
		t.Fatalf("ResetStatistics must not clear entries")
	}
}

func TestCache_Utilization(t *testing.T) {
	c := New(Options{MaxBytes: 100})
	c.Set("a", "0123456789") // 10 bytes
	stats := c.Stats()
	if stats.Utilization != 0.1 {
		t.Fatalf("utilization=%v want 0.1", stats.Utilization)
	}
}
