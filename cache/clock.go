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

// clockExt is the per-slot extension for the CLOCK policy: ring
// neighbours plus the second-chance reference bit.
type clockExt struct {
	prev, next int32
	ref        bool
}

// NewClock constructs a Manager bound to the CLOCK policy: a
// circular doubly-linked list with a hand cursor. New entries start with
// ref_bit set; an access sets it; eviction clears bits on its way around,
// evicting the first evictable entry it finds with a clear bit, giving up
// after two full revolutions.
func NewClock[K comparable, V any](capacity int) *Manager[K, V, clockExt] {
	return newManager[K, V, clockExt](capacity, &clockPolicy[K, V]{tail: noneSlot, hand: noneSlot})
}

type clockPolicy[K comparable, V any] struct {
	tail int32 // most recently inserted entry; tail.next is the oldest
	hand int32
}

func (p *clockPolicy[K, V]) onInsert(a *arena[K, V, clockExt], slot int32) {
	e := a.at(slot)
	e.ext.ref = true
	if p.tail == noneSlot {
		e.ext.prev, e.ext.next = slot, slot
		p.tail = slot
		p.hand = slot
		return
	}
	head := a.at(p.tail).ext.next
	e.ext.prev = p.tail
	e.ext.next = head
	a.at(p.tail).ext.next = slot
	a.at(head).ext.prev = slot
	p.tail = slot
}

func (p *clockPolicy[K, V]) onAccess(a *arena[K, V, clockExt], slot int32) {
	a.at(slot).ext.ref = true
}

func (p *clockPolicy[K, V]) onRemove(a *arena[K, V, clockExt], slot int32) {
	e := a.at(slot)
	if e.ext.next == slot {
		// last entry in the ring
		p.tail, p.hand = noneSlot, noneSlot
		return
	}
	if p.hand == slot {
		p.hand = e.ext.next
	}
	if p.tail == slot {
		p.tail = e.ext.prev
	}
	a.at(e.ext.prev).ext.next = e.ext.next
	a.at(e.ext.next).ext.prev = e.ext.prev
}

func (p *clockPolicy[K, V]) pickVictim(a *arena[K, V, clockExt], evictable func(int32) bool) (int32, bool) {
	n := a.used()
	if n == 0 {
		return noneSlot, false
	}
	cur := p.hand
	for step, limit := 0, 2*n; step < limit; step++ {
		next := a.at(cur).ext.next
		if evictable(cur) {
			e := a.at(cur)
			if !e.ext.ref {
				p.hand = next
				return cur, true
			}
			e.ext.ref = false
		}
		cur = next
	}
	p.hand = cur
	return noneSlot, false
}

func (p *clockPolicy[K, V]) onReset() {
	p.tail, p.hand = noneSlot, noneSlot
}

func (p *clockPolicy[K, V]) name() string { return "clock" }
