// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package cache

// arcExt is the per-slot extension for ARC: list neighbours within
// whichever of T1/T2 currently holds the entry, plus inT1 recording which of
// the two it is (needed on eviction to know which ghost list receives the
// key).
type arcExt struct {
	prev, next int32
	inT1       bool
}

// NewARC constructs a Manager bound to the Adaptive Replacement Cache
// policy: two resident LRU lists T1/T2 and two ghost key sets
// B1/B2, with a self-tuning target p controlling how much of the capacity is
// reserved for single-touch entries (T1) versus the rest (T2).
func NewARC[K comparable, V any](capacity int) *Manager[K, V, arcExt] {
	return newManager[K, V, arcExt](capacity, newARCPolicy[K, V](capacity))
}

type arcPolicy[K comparable, V any] struct {
	t1head, t1tail int32
	t2head, t2tail int32
	t1count, t2count int32

	p        int32
	capacity int32

	b1, b2 *ghostList[K]
}

func newARCPolicy[K comparable, V any](capacity int) *arcPolicy[K, V] {
	return &arcPolicy[K, V]{
		t1head: noneSlot, t1tail: noneSlot,
		t2head: noneSlot, t2tail: noneSlot,
		capacity: int32(capacity),
		b1:       newGhostList[K](capacity),
		b2:       newGhostList[K](capacity),
	}
}

// P reports ARC's current adaptive target size of T1 (0 <= P() <= capacity).
// Exposed for diagnostics and for the testable property that a ghost hit
// moves p.
func (p *arcPolicy[K, V]) P() int32 { return p.p }

func (p *arcPolicy[K, V]) pushHead(a *arena[K, V, arcExt], head, tail *int32, slot int32) {
	e := a.at(slot)
	e.ext.prev = noneSlot
	e.ext.next = *head
	if *head != noneSlot {
		a.at(*head).ext.prev = slot
	}
	*head = slot
	if *tail == noneSlot {
		*tail = slot
	}
}

func (p *arcPolicy[K, V]) unlink(a *arena[K, V, arcExt], head, tail *int32, slot int32) {
	e := a.at(slot)
	if e.ext.prev != noneSlot {
		a.at(e.ext.prev).ext.next = e.ext.next
	} else if *head == slot {
		*head = e.ext.next
	}
	if e.ext.next != noneSlot {
		a.at(e.ext.next).ext.prev = e.ext.prev
	} else if *tail == slot {
		*tail = e.ext.prev
	}
	e.ext.prev, e.ext.next = noneSlot, noneSlot
}

func (p *arcPolicy[K, V]) onAccess(a *arena[K, V, arcExt], slot int32) {
	e := a.at(slot)
	if e.ext.inT1 {
		p.unlink(a, &p.t1head, &p.t1tail, slot)
		p.t1count--
	} else {
		p.unlink(a, &p.t2head, &p.t2tail, slot)
		p.t2count--
	}
	p.pushHead(a, &p.t2head, &p.t2tail, slot)
	e.ext.inT1 = false
	p.t2count++
}

func max32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}

func min32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}

func (p *arcPolicy[K, V]) onInsert(a *arena[K, V, arcExt], slot int32) {
	e := a.at(slot)
	key := e.key

	switch {
	case p.b1.contains(key):
		p.p = min32(p.p+max32(1, int32(p.b2.len())/int32(p.b1.len())), p.capacity)
		p.b1.remove(key)
		p.pushHead(a, &p.t2head, &p.t2tail, slot)
		e.ext.inT1 = false
		p.t2count++
	case p.b2.contains(key):
		p.p = max32(p.p-max32(1, int32(p.b1.len())/int32(p.b2.len())), 0)
		p.b2.remove(key)
		p.pushHead(a, &p.t2head, &p.t2tail, slot)
		e.ext.inT1 = false
		p.t2count++
	default:
		p.pushHead(a, &p.t1head, &p.t1tail, slot)
		e.ext.inT1 = true
		p.t1count++
	}
}

func (p *arcPolicy[K, V]) onRemove(a *arena[K, V, arcExt], slot int32) {
	e := a.at(slot)
	key := e.key
	if e.ext.inT1 {
		p.unlink(a, &p.t1head, &p.t1tail, slot)
		p.t1count--
		p.b1.pushHead(key)
	} else {
		p.unlink(a, &p.t2head, &p.t2tail, slot)
		p.t2count--
		p.b2.pushHead(key)
	}
}

func (p *arcPolicy[K, V]) scan(a *arena[K, V, arcExt], tail int32, evictable func(int32) bool) (int32, bool) {
	for cur := tail; cur != noneSlot; cur = a.at(cur).ext.prev {
		if evictable(cur) {
			return cur, true
		}
	}
	return noneSlot, false
}

func (p *arcPolicy[K, V]) pickVictim(a *arena[K, V, arcExt], evictable func(int32) bool) (int32, bool) {
	preferT1 := true
	if p.t1count > p.p {
		preferT1 = true
	} else if p.t1count == p.p && p.t2count > 0 {
		preferT1 = false
	} else {
		preferT1 = true
	}

	if preferT1 {
		if v, ok := p.scan(a, p.t1tail, evictable); ok {
			return v, true
		}
		return p.scan(a, p.t2tail, evictable)
	}
	if v, ok := p.scan(a, p.t2tail, evictable); ok {
		return v, true
	}
	return p.scan(a, p.t1tail, evictable)
}

func (p *arcPolicy[K, V]) onReset() {
	capacity := int(p.capacity)
	p.t1head, p.t1tail = noneSlot, noneSlot
	p.t2head, p.t2tail = noneSlot, noneSlot
	p.t1count, p.t2count = 0, 0
	p.p = 0
	p.b1 = newGhostList[K](capacity)
	p.b2 = newGhostList[K](capacity)
}

func (p *arcPolicy[K, V]) name() string { return "arc" }
