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

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// lfuExt is the per-slot extension for the LFU policy: the
// entry's current frequency counter and its neighbours within that
// frequency's bucket list.
type lfuExt struct {
	freq       int32
	prevBucket int32
	nextBucket int32
}

// lfuBucket is the doubly-linked list of all entries sharing one frequency
// count. Bucket lists are ordered oldest (head) to newest (tail), so the
// tie-break rule (older entries preferred for eviction) falls out of
// scanning head to tail.
type lfuBucket struct {
	head, tail int32
}

// NewLFU constructs a Manager bound to the LFU policy: entries
// are kept in frequency buckets, min_freq tracks the lowest-frequency
// non-empty bucket, and eviction prefers the oldest entry in the lowest
// populated bucket.
func NewLFU[K comparable, V any](capacity int) *Manager[K, V, lfuExt] {
	return newManager[K, V, lfuExt](capacity, &lfuPolicy[K, V]{buckets: map[int32]*lfuBucket{}})
}

type lfuPolicy[K comparable, V any] struct {
	buckets map[int32]*lfuBucket
	minFreq int32
}

func (p *lfuPolicy[K, V]) bucket(f int32) *lfuBucket {
	b, ok := p.buckets[f]
	if !ok {
		b = &lfuBucket{head: noneSlot, tail: noneSlot}
		p.buckets[f] = b
	}
	return b
}

func (p *lfuPolicy[K, V]) appendToBucket(a *arena[K, V, lfuExt], f, slot int32) {
	b := p.bucket(f)
	e := a.at(slot)
	e.ext.freq = f
	e.ext.prevBucket = b.tail
	e.ext.nextBucket = noneSlot
	if b.tail != noneSlot {
		a.at(b.tail).ext.nextBucket = slot
	}
	b.tail = slot
	if b.head == noneSlot {
		b.head = slot
	}
}

// unlinkFromBucket removes slot from its current frequency bucket and
// reports whether that bucket became empty (and its frequency, so the
// caller can fix up minFreq).
func (p *lfuPolicy[K, V]) unlinkFromBucket(a *arena[K, V, lfuExt], slot int32) (emptiedFreq int32, emptied bool) {
	e := a.at(slot)
	f := e.ext.freq
	b := p.buckets[f]
	if e.ext.prevBucket != noneSlot {
		a.at(e.ext.prevBucket).ext.nextBucket = e.ext.nextBucket
	} else {
		b.head = e.ext.nextBucket
	}
	if e.ext.nextBucket != noneSlot {
		a.at(e.ext.nextBucket).ext.prevBucket = e.ext.prevBucket
	} else {
		b.tail = e.ext.prevBucket
	}
	e.ext.prevBucket, e.ext.nextBucket = noneSlot, noneSlot
	if b.head == noneSlot {
		delete(p.buckets, f)
		return f, true
	}
	return f, false
}

func (p *lfuPolicy[K, V]) onInsert(a *arena[K, V, lfuExt], slot int32) {
	p.appendToBucket(a, 1, slot)
	p.minFreq = 1
}

func (p *lfuPolicy[K, V]) onAccess(a *arena[K, V, lfuExt], slot int32) {
	oldFreq, emptied := p.unlinkFromBucket(a, slot)
	newFreq := oldFreq + 1
	p.appendToBucket(a, newFreq, slot)
	if emptied && oldFreq == p.minFreq {
		// freq only ever grows by one step, so the only bucket that can now
		// be the minimum is the one the entry just moved into.
		p.minFreq = newFreq
	}
}

func (p *lfuPolicy[K, V]) onRemove(a *arena[K, V, lfuExt], slot int32) {
	oldFreq, emptied := p.unlinkFromBucket(a, slot)
	if emptied && oldFreq == p.minFreq {
		p.advanceMinFreq(a)
	}
}

// advanceMinFreq scans upward for the next populated bucket, per the
// resolution: a bare ++min_freq is only
// correct if the next bucket happens to be non-empty).
func (p *lfuPolicy[K, V]) advanceMinFreq(a *arena[K, V, lfuExt]) {
	if len(p.buckets) == 0 {
		p.minFreq = 0
		return
	}
	f := p.minFreq + 1
	for {
		if b, ok := p.buckets[f]; ok && b.head != noneSlot {
			p.minFreq = f
			return
		}
		f++
	}
}

func (p *lfuPolicy[K, V]) pickVictim(a *arena[K, V, lfuExt], evictable func(int32) bool) (int32, bool) {
	if len(p.buckets) == 0 {
		return noneSlot, false
	}
	freqs := maps.Keys(p.buckets)
	slices.Sort(freqs)
	for _, f := range freqs {
		if f < p.minFreq {
			continue
		}
		for cur := p.buckets[f].head; cur != noneSlot; cur = a.at(cur).ext.nextBucket {
			if evictable(cur) {
				return cur, true
			}
		}
	}
	return noneSlot, false
}

func (p *lfuPolicy[K, V]) onReset() {
	p.buckets = map[int32]*lfuBucket{}
	p.minFreq = 0
}

func (p *lfuPolicy[K, V]) name() string { return "lfu" }
