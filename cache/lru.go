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

// linkExt is the per-slot extension for the two plain doubly-linked-list
// policies, LRU and FIFO: just the intrusive prev/next indices.
type linkExt struct {
	prev, next int32
}

// NewLRU constructs a Manager bound to the LRU policy: head is
// most-recently-used, insertion and access both move the entry to head, and
// the victim is the first evictable entry found scanning from tail to head.
func NewLRU[K comparable, V any](capacity int) *Manager[K, V, linkExt] {
	return newManager[K, V, linkExt](capacity, &lruPolicy[K, V]{head: noneSlot, tail: noneSlot})
}

type lruPolicy[K comparable, V any] struct {
	head, tail int32
}

func (p *lruPolicy[K, V]) onAccess(a *arena[K, V, linkExt], slot int32) {
	p.moveToHead(a, slot)
}

func (p *lruPolicy[K, V]) onInsert(a *arena[K, V, linkExt], slot int32) {
	p.pushHead(a, slot)
}

func (p *lruPolicy[K, V]) onRemove(a *arena[K, V, linkExt], slot int32) {
	p.unlink(a, slot)
}

func (p *lruPolicy[K, V]) pickVictim(a *arena[K, V, linkExt], evictable func(int32) bool) (int32, bool) {
	for cur := p.tail; cur != noneSlot; cur = a.at(cur).ext.prev {
		if evictable(cur) {
			return cur, true
		}
	}
	return noneSlot, false
}

func (p *lruPolicy[K, V]) onReset() {
	p.head, p.tail = noneSlot, noneSlot
}

func (p *lruPolicy[K, V]) name() string { return "lru" }

// moveToHead unlinks slot and re-links it at the head of the list, promoting
// an entry on access. Fresh inserts go through pushHead instead.
func (p *lruPolicy[K, V]) moveToHead(a *arena[K, V, linkExt], slot int32) {
	if p.head == slot {
		return
	}
	p.unlink(a, slot)
	p.pushHead(a, slot)
}

func (p *lruPolicy[K, V]) pushHead(a *arena[K, V, linkExt], slot int32) {
	e := a.at(slot)
	e.ext.prev = noneSlot
	e.ext.next = p.head
	if p.head != noneSlot {
		a.at(p.head).ext.prev = slot
	}
	p.head = slot
	if p.tail == noneSlot {
		p.tail = slot
	}
}

// unlink removes slot from wherever it currently sits in the list, fixing up
// the head/tail anchors and its neighbours' links. Callers only unlink slots
// known to be in the list: a slot fresh from the arena has zeroed links,
// not noneSlot, so unlinking it would rewrite slot 0's neighbours.
func (p *lruPolicy[K, V]) unlink(a *arena[K, V, linkExt], slot int32) {
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
