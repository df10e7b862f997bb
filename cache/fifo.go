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

// NewFIFO constructs a Manager bound to the FIFO policy: a plain
// doubly-linked list where head is the oldest resident entry and tail is the
// newest. Access never reorders the list; only insertion appends at tail.
// Pinning and dirty marks never move entries either — they only make them
// un-evictable.
func NewFIFO[K comparable, V any](capacity int) *Manager[K, V, linkExt] {
	return newManager[K, V, linkExt](capacity, &fifoPolicy[K, V]{head: noneSlot, tail: noneSlot})
}

type fifoPolicy[K comparable, V any] struct {
	head, tail int32
}

func (p *fifoPolicy[K, V]) onAccess(a *arena[K, V, linkExt], slot int32) {
	// FIFO ignores access entirely: order is purely insertion order.
}

func (p *fifoPolicy[K, V]) onInsert(a *arena[K, V, linkExt], slot int32) {
	e := a.at(slot)
	e.ext.prev = p.tail
	e.ext.next = noneSlot
	if p.tail != noneSlot {
		a.at(p.tail).ext.next = slot
	}
	p.tail = slot
	if p.head == noneSlot {
		p.head = slot
	}
}

func (p *fifoPolicy[K, V]) onRemove(a *arena[K, V, linkExt], slot int32) {
	e := a.at(slot)
	if e.ext.prev != noneSlot {
		a.at(e.ext.prev).ext.next = e.ext.next
	} else if p.head == slot {
		p.head = e.ext.next
	}
	if e.ext.next != noneSlot {
		a.at(e.ext.next).ext.prev = e.ext.prev
	} else if p.tail == slot {
		p.tail = e.ext.prev
	}
	e.ext.prev, e.ext.next = noneSlot, noneSlot
}

func (p *fifoPolicy[K, V]) pickVictim(a *arena[K, V, linkExt], evictable func(int32) bool) (int32, bool) {
	for cur := p.head; cur != noneSlot; cur = a.at(cur).ext.next {
		if evictable(cur) {
			return cur, true
		}
	}
	return noneSlot, false
}

func (p *fifoPolicy[K, V]) onReset() {
	p.head, p.tail = noneSlot, noneSlot
}

func (p *fifoPolicy[K, V]) name() string { return "fifo" }
