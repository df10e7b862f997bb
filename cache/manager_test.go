package cache

import "testing"

// TestLRUEvictionOrder exercises basic LRU eviction ordering.
func TestLRUEvictionOrder(t *testing.T) {
	c := NewLRU[int, string](3)

	c.Insert(1, "a")
	c.Insert(2, "b")
	c.Insert(3, "c")
	if _, ok := c.Lookup(1); !ok {
		t.Fatalf("expected hit on 1")
	}
	if !c.Insert(4, "d") {
		t.Fatalf("expected insert of 4 to succeed")
	}

	if v, ok := c.Lookup(1); !ok || v != "a" {
		t.Errorf("1 should still hit with value a, got %v/%v", v, ok)
	}
	if _, ok := c.Lookup(2); ok {
		t.Errorf("2 should have been evicted")
	}
	if v, ok := c.Lookup(3); !ok || v != "c" {
		t.Errorf("3 should still hit with value c, got %v/%v", v, ok)
	}
	if v, ok := c.Lookup(4); !ok || v != "d" {
		t.Errorf("4 should hit with value d, got %v/%v", v, ok)
	}

	stats := c.Stats()
	if stats.UsedEntries != 3 {
		t.Errorf("expected used=3, got %d", stats.UsedEntries)
	}
	if stats.Evictions != 1 {
		t.Errorf("expected evictions=1, got %d", stats.Evictions)
	}
}

// TestLFUTieBreak exercises LFU's tie-breaking behavior.
func TestLFUTieBreak(t *testing.T) {
	c := NewLFU[int, string](2)

	c.Insert(1, "a")
	c.Insert(2, "b")
	c.Lookup(1) // bumps 1's freq to 2
	c.Insert(3, "c")

	if v, ok := c.Lookup(1); !ok || v != "a" {
		t.Errorf("1 should hit (freq 2), got %v/%v", v, ok)
	}
	if _, ok := c.Lookup(2); ok {
		t.Errorf("2 should have been evicted (freq 1, min bucket)")
	}
	if v, ok := c.Lookup(3); !ok || v != "c" {
		t.Errorf("3 should hit, got %v/%v", v, ok)
	}
}

// TestPinBlocksEviction is scenario 3.
func TestPinBlocksEviction(t *testing.T) {
	c := NewLRU[int, int](2)

	c.Insert(1, 100)
	c.Insert(2, 200)
	c.Pin(1)

	if !c.Insert(3, 300) {
		t.Fatalf("insert of 3 should succeed by evicting 2")
	}
	if _, ok := c.Lookup(2); ok {
		t.Errorf("2 should have been evicted")
	}

	if !c.Insert(4, 400) {
		t.Fatalf("insert of 4 should succeed by evicting 3")
	}
	if _, ok := c.Lookup(3); ok {
		t.Errorf("3 should have been evicted since 1 is pinned")
	}
	if _, ok := c.Lookup(1); !ok {
		t.Errorf("1 should still be resident (pinned)")
	}
}

// TestDirtyBlocksEviction is scenario 4.
func TestDirtyBlocksEviction(t *testing.T) {
	c := NewFIFO[int, int](2)

	c.Insert(1, 10)
	c.MarkDirty(1)
	c.Insert(2, 20)
	if !c.Insert(3, 30) {
		t.Fatalf("insert of 3 should succeed by evicting 2")
	}
	if _, ok := c.Lookup(1); !ok {
		t.Errorf("1 should still be resident (dirty)")
	}
	if _, ok := c.Lookup(2); ok {
		t.Errorf("2 should have been evicted")
	}

	if !c.Insert(4, 40) {
		t.Fatalf("insert of 4 should succeed by evicting 3")
	}
	if _, ok := c.Lookup(1); !ok {
		t.Errorf("1 should still hit")
	}
	if _, ok := c.Lookup(2); ok {
		t.Errorf("2 should still miss")
	}
}

func TestInsertDuplicateKeyKeepsOldValue(t *testing.T) {
	c := NewLRU[int, string](2)
	c.Insert(1, "a")
	if c.Insert(1, "b") {
		t.Errorf("re-inserting an existing key should return false")
	}
	if v, _ := c.Lookup(1); v != "a" {
		t.Errorf("value should be unchanged, got %q", v)
	}
}

func TestInsertFailsWhenFullAndNothingEvictable(t *testing.T) {
	c := NewLRU[int, int](2)
	c.Insert(1, 1)
	c.Insert(2, 2)
	c.Pin(1)
	c.MarkDirty(2)

	if c.Insert(3, 3) {
		t.Errorf("insert should fail: no evictable slot")
	}
	if _, ok := c.Lookup(3); ok {
		t.Errorf("3 must not be resident after a failed insert")
	}
}

func TestInvalidateRemovesKey(t *testing.T) {
	c := NewLRU[int, int](2)
	c.Insert(1, 1)
	c.Invalidate(1)
	if _, ok := c.Lookup(1); ok {
		t.Errorf("expected miss after invalidate")
	}
	// invalidate on an absent key is a no-op
	c.Invalidate(1)
}

func TestPinUnpinBalanced(t *testing.T) {
	c := NewLRU[int, int](2)
	c.Insert(1, 1)
	c.Pin(1)
	c.Pin(1)
	c.Unpin(1)
	c.Unpin(1)
	// a third, unmatched unpin must not underflow
	c.Unpin(1)

	c.Insert(2, 2)
	// 1 is no longer pinned, so it can be evicted by a subsequent insert
	c.Insert(3, 3)
	if _, ok := c.Lookup(1); ok {
		t.Errorf("1 should have become evictable again once unpinned")
	}
}

func TestMarkDirtyMarkClean(t *testing.T) {
	c := NewFIFO[int, int](2)
	c.Insert(1, 1)
	c.MarkDirty(1)
	c.MarkDirty(1) // idempotent
	c.MarkClean(1)

	c.Insert(2, 2)
	c.Insert(3, 3) // 1 is clean again, so it is now evictable
	if _, ok := c.Lookup(1); ok {
		t.Errorf("1 should have become evictable again once cleaned")
	}
}

func TestGetDirtyReturnsDirtyKeysUpToLimit(t *testing.T) {
	c := NewLRU[int, int](4)
	c.Insert(1, 1)
	c.Insert(2, 2)
	c.Insert(3, 3)
	c.MarkDirty(1)
	c.MarkDirty(3)

	dirty := c.GetDirty(10)
	if len(dirty) != 2 {
		t.Fatalf("expected 2 dirty keys, got %v", dirty)
	}
	seen := map[int]bool{}
	for _, k := range dirty {
		seen[k] = true
	}
	if !seen[1] || !seen[3] {
		t.Errorf("expected dirty keys {1,3}, got %v", dirty)
	}

	if got := c.GetDirty(1); len(got) != 1 {
		t.Errorf("expected GetDirty(1) to return exactly one key, got %v", got)
	}
}

func TestResizeGrow(t *testing.T) {
	c := NewLRU[int, int](2)
	c.Insert(1, 1)
	c.Insert(2, 2)
	c.Resize(4)
	c.Insert(3, 3)
	c.Insert(4, 4)

	for _, k := range []int{1, 2, 3, 4} {
		if _, ok := c.Lookup(k); !ok {
			t.Errorf("expected %d to be resident after growing capacity", k)
		}
	}
	if got := c.Stats().Capacity; got != 4 {
		t.Errorf("expected capacity 4, got %d", got)
	}
}

func TestResizeShrinkEvicts(t *testing.T) {
	c := NewLRU[int, int](4)
	c.Insert(1, 1)
	c.Insert(2, 2)
	c.Insert(3, 3)
	c.Insert(4, 4)
	// 1 is LRU-oldest, 4 is MRU
	c.Resize(2)

	if got := c.Stats().UsedEntries; got != 2 {
		t.Errorf("expected used=2 after shrink, got %d", got)
	}
	if _, ok := c.Lookup(4); !ok {
		t.Errorf("expected most-recently-used entry to survive shrink")
	}
}

func TestResizeShrinkEnforcesNewCapacityOnSubsequentInserts(t *testing.T) {
	c := NewLRU[int, int](4)
	c.Insert(1, 1)
	c.Insert(2, 2)
	c.Insert(3, 3)
	c.Insert(4, 4)
	c.Resize(2)
	if got := c.Stats().UsedEntries; got != 2 {
		t.Fatalf("expected used=2 after shrink, got %d", got)
	}

	// Two more inserts must each evict rather than silently growing back
	// toward the arena's stale, larger physical capacity.
	c.Insert(5, 5)
	if got := c.Stats().UsedEntries; got != 2 {
		t.Errorf("expected used to stay at the shrunk capacity 2, got %d", got)
	}
	c.Insert(6, 6)
	if got := c.Stats().UsedEntries; got != 2 {
		t.Errorf("expected used to stay at the shrunk capacity 2 after a second insert, got %d", got)
	}
	if got := c.Stats().Evictions; got != 4 {
		t.Errorf("expected 4 total evictions (2 from the shrink, 2 from the inserts), got %d", got)
	}
}

func TestResizeShrinkStopsWhenNothingEvictable(t *testing.T) {
	c := NewLRU[int, int](3)
	c.Insert(1, 1)
	c.Insert(2, 2)
	c.Pin(1)
	c.Pin(2)
	c.Resize(1)

	if got := c.Stats().UsedEntries; got != 2 {
		t.Errorf("expected shrink to stop at 2 pinned entries, got %d", got)
	}
}

func TestClearResetsEverything(t *testing.T) {
	c := NewLRU[int, int](2)
	c.Insert(1, 1)
	c.Lookup(1)
	c.Lookup(99)
	c.Clear()

	stats := c.Stats()
	if stats.UsedEntries != 0 || stats.Hits != 0 || stats.Misses != 0 || stats.Evictions != 0 {
		t.Errorf("expected zeroed stats after Clear, got %+v", stats)
	}
	if _, ok := c.Lookup(1); ok {
		t.Errorf("expected miss after Clear")
	}

	// the cache must be fully usable again after Clear
	c.Insert(1, 1)
	c.Insert(2, 2)
	if !c.Insert(3, 3) {
		t.Errorf("expected eviction machinery to still work after Clear")
	}
}

func TestHitRatio(t *testing.T) {
	c := NewLRU[int, int](2)
	if r := c.Stats().HitRatio(); r != 0 {
		t.Errorf("expected hit ratio 0 with no lookups, got %f", r)
	}
	c.Insert(1, 1)
	c.Lookup(1)
	c.Lookup(2)
	if r := c.Stats().HitRatio(); r != 0.5 {
		t.Errorf("expected hit ratio 0.5, got %f", r)
	}
}

func TestEvictionListenerFiresOnEviction(t *testing.T) {
	c := NewLRU[int, int](2)
	var evicted []int
	c.SetEvictionListener(func(key, value int) {
		evicted = append(evicted, key)
	})

	c.Insert(1, 1)
	c.Insert(2, 2)
	c.Insert(3, 3) // evicts 1

	if len(evicted) != 1 || evicted[0] != 1 {
		t.Fatalf("expected listener to fire once for key 1, got %v", evicted)
	}

	c.Invalidate(2) // not an eviction, must not fire the listener
	if len(evicted) != 1 {
		t.Errorf("invalidate must not trigger the eviction listener, got %v", evicted)
	}
}

func TestUsedEntriesInvariant(t *testing.T) {
	c := NewLRU[int, int](3)
	for i := 0; i < 10; i++ {
		c.Insert(i, i)
		if got := c.Stats().UsedEntries; got > 3 {
			t.Fatalf("used entries exceeded capacity: %d", got)
		}
	}
}
