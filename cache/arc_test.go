package cache

import "testing"

func newARCForTest[K comparable, V any](capacity int) (*Manager[K, V, arcExt], *arcPolicy[K, V]) {
	p := newARCPolicy[K, V](capacity)
	m := newManager[K, V, arcExt](capacity, p)
	return m, p
}

// TestARCGhostDrivenAdaptation exercises ARC's ghost-driven adaptation
// scenarios.
func TestARCGhostDrivenAdaptation(t *testing.T) {
	c, p := newARCForTest[int, int](2)

	c.Insert(1, 100)
	c.Insert(2, 200)
	c.Insert(3, 300) // evicts 1 into B1, T1 was over p(=0)

	if !p.b1.contains(1) {
		t.Fatalf("expected 1 to be a B1 ghost after eviction")
	}
	if got := p.P(); got != 0 {
		t.Fatalf("expected p=0 before any ghost hit, got %d", got)
	}

	c.Insert(1, 101) // 1 was in B1: p must increase, 1 moves to T2
	if got := p.P(); got < 1 {
		t.Errorf("expected p to increase on a B1 hit, got %d", got)
	}
	if p.b1.contains(1) {
		t.Errorf("1 should have been removed from B1 once promoted")
	}

	c.Insert(4, 400)
	if got := c.Stats().UsedEntries; got != 2 {
		t.Errorf("expected used entries to stay at capacity, got %d", got)
	}
	if p.t1count+p.t2count > p.capacity {
		t.Errorf("t1+t2 exceeded capacity: %d+%d", p.t1count, p.t2count)
	}
}

func TestARCInvariants(t *testing.T) {
	c, p := newARCForTest[int, int](4)
	for i := 0; i < 20; i++ {
		c.Insert(i, i)
		if i%3 == 0 {
			c.Lookup(i)
		}
		if p.p < 0 || p.p > p.capacity {
			t.Fatalf("p out of range: %d (capacity %d)", p.p, p.capacity)
		}
		if p.t1count+p.t2count > p.capacity {
			t.Fatalf("t1+t2 exceeds capacity: %d+%d > %d", p.t1count, p.t2count, p.capacity)
		}
		if int32(p.b1.len()) > p.capacity || int32(p.b2.len()) > p.capacity {
			t.Fatalf("ghost list exceeded capacity: |B1|=%d |B2|=%d", p.b1.len(), p.b2.len())
		}
	}
}

func TestARCGhostHitOnB2DecreasesP(t *testing.T) {
	c, p := newARCForTest[int, int](2)

	c.Insert(1, 1)
	c.Insert(2, 2)
	c.Insert(3, 3) // t1=2 > p=0: evicts key1 from T1 into B1
	c.Insert(1, 1) // evicts key2 into B1; the B1 hit raises p to 1 and places key1 in T2
	c.Insert(4, 4)
	// With t1=1(key3), t2=1(key1), p=1: t1==p and t2>0, so evict from T2 tail (key1) into B2.
	if !p.b2.contains(1) {
		t.Fatalf("expected 1 to be evicted into B2, b1=%v b2=%v", p.b1.nodes, p.b2.nodes)
	}

	before := p.P()
	c.Insert(1, 11) // hit on B2: p must decrease (or stay at the floor of 0)
	if before > 0 && p.P() >= before {
		t.Errorf("expected p to decrease on a B2 hit, got %d (was %d)", p.P(), before)
	}
}
