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
	"sync"

	"golang.org/x/exp/maps"
)

// Manager is the public, concurrency-safe
// entry point binding a slot arena to one eviction policy. It is the
// concurrency anchor of the whole engine: every exported method
// acquires mu for its entire body, so policies and the arena they operate on
// never need their own synchronization.
//
// K is the caller's key type, V the stored value (for the cached block
// device front-end, the mapped physical sector number), and X the
// policy-specific per-slot extension layout threaded through the arena.
// Manager is not constructed directly; use one of the per-policy
// constructors (NewLRU, NewFIFO, NewLFU, NewClock, NewSieve, NewARC).
type Manager[K comparable, V any, X any] struct {
	mu      sync.Mutex
	arena   *arena[K, V, X]
	policy  policy[K, V, X]
	stats   Stats
	onEvict func(key K, value V)
}

func newManager[K comparable, V any, X any](capacity int, p policy[K, V, X]) *Manager[K, V, X] {
	if capacity < 1 {
		capacity = 1
	}
	return &Manager[K, V, X]{
		arena:  newArena[K, V, X](capacity),
		policy: p,
		stats:  Stats{Capacity: capacity},
	}
}

// Lookup returns the value stored for key and true on a hit, recording an
// access with the bound policy. It returns the zero value and false on a
// miss. Every call increments either Hits or Misses.
func (m *Manager[K, V, X]) Lookup(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot, ok := m.arena.lookup(key)
	if !ok {
		m.stats.Misses++
		var zero V
		return zero, false
	}
	m.stats.Hits++
	m.policy.onAccess(m.arena, slot)
	return m.arena.at(slot).value, true
}

// Insert associates key with value. It returns true if a new entry was
// created (possibly evicting another key to make room), and false if key was
// already present (its value is left unchanged, but an access is recorded)
// or if the cache is full and no entry satisfies the eviction predicate.
func (m *Manager[K, V, X]) Insert(key K, value V) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if slot, ok := m.arena.lookup(key); ok {
		m.policy.onAccess(m.arena, slot)
		return false
	}

	if m.arena.used() >= m.stats.Capacity {
		if !m.evictOne() {
			return false
		}
	}

	slot := m.arena.allocate(key, value)
	m.policy.onInsert(m.arena, slot)
	return true
}

// evictOne asks the bound policy for its preferred victim under the
// eviction predicate and, if found, removes it. Returns false if no slot is
// currently evictable.
func (m *Manager[K, V, X]) evictOne() bool {
	victim, ok := m.policy.pickVictim(m.arena, func(slot int32) bool {
		return m.arena.at(slot).evictable()
	})
	if !ok {
		return false
	}
	e := m.arena.at(victim)
	key, value := e.key, e.value
	m.policy.onRemove(m.arena, victim)
	m.arena.release(victim)
	m.stats.Evictions++
	if m.onEvict != nil {
		m.onEvict(key, value)
	}
	return true
}

// SetEvictionListener registers fn to be called, synchronously and while
// still holding the Manager's lock, whenever Insert or Resize evicts an
// entry. Callers that need to reclaim a resource addressed by the evicted
// value (the Front-End's physical cache sectors, notably) use this instead
// of polling. fn must not call back into this Manager.
func (m *Manager[K, V, X]) SetEvictionListener(fn func(key K, value V)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEvict = fn
}

// Invalidate removes key from the cache if present. It is a no-op otherwise.
func (m *Manager[K, V, X]) Invalidate(key K) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidateLocked(key)
}

func (m *Manager[K, V, X]) invalidateLocked(key K) {
	slot, ok := m.arena.lookup(key)
	if !ok {
		return
	}
	m.policy.onRemove(m.arena, slot)
	m.arena.release(slot)
}

// Pin increments key's pin count if present. A pinned entry (pin_count > 0)
// is never chosen as an eviction victim.
func (m *Manager[K, V, X]) Pin(key K) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slot, ok := m.arena.lookup(key); ok {
		m.arena.at(slot).pinCount++
	}
}

// Unpin decrements key's pin count if present and positive. It is a silent
// no-op if key is absent or already unpinned; it never underflows.
func (m *Manager[K, V, X]) Unpin(key K) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slot, ok := m.arena.lookup(key); ok {
		e := m.arena.at(slot)
		if e.pinCount > 0 {
			e.pinCount--
		}
	}
}

// MarkDirty sets key's dirty bit if present. It is a no-op otherwise.
func (m *Manager[K, V, X]) MarkDirty(key K) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slot, ok := m.arena.lookup(key); ok {
		m.arena.at(slot).dirty = true
	}
}

// MarkClean clears key's dirty bit if present. It is a no-op otherwise.
func (m *Manager[K, V, X]) MarkClean(key K) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slot, ok := m.arena.lookup(key); ok {
		m.arena.at(slot).dirty = false
	}
}

// GetDirty returns up to n keys currently marked dirty. Iteration order is
// unspecified; callers needing a stable order should sort the result.
func (m *Manager[K, V, X]) GetDirty(n int) []K {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]K, 0, n)
	for _, slot := range maps.Values(m.arena.index) {
		if len(keys) >= n {
			break
		}
		if e := m.arena.at(slot); e.dirty {
			keys = append(keys, e.key)
		}
	}
	return keys
}

// Resize changes the cache's logical capacity. Growing appends fresh free
// slots to the arena; shrinking repeatedly evicts via the bound policy
// until used entries fit the new capacity, stopping early if no further
// entry is evictable, but does not shrink the arena's backing slice — the
// arena's physical capacity is only ever a non-decreasing upper bound.
// Insert's admission check is against stats.Capacity (the logical bound
// set here), never against the arena's own, possibly-larger, capacity, so
// a shrink is enforced immediately rather than only once used climbs back
// up to the arena's stale physical size.
func (m *Manager[K, V, X]) Resize(newCapacity int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if newCapacity < 1 {
		newCapacity = 1
	}
	if newCapacity > m.arena.capacity() {
		m.arena.growTo(newCapacity)
		m.stats.Capacity = newCapacity
		return
	}
	for m.arena.used() > newCapacity {
		if !m.evictOne() {
			break
		}
	}
	m.stats.Capacity = newCapacity
}

// Clear returns the cache to its empty initial state and zeroes statistics.
func (m *Manager[K, V, X]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	capacity := m.stats.Capacity
	m.arena.reset(capacity)
	m.policy.onReset()
	m.stats = Stats{Capacity: capacity}
}

// Stats returns a snapshot of the cache's running counters.
func (m *Manager[K, V, X]) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.UsedEntries = m.arena.used()
	return s
}

// Name returns the diagnostic tag of the bound policy, e.g. "lru".
func (m *Manager[K, V, X]) Name() string {
	return m.policy.name()
}
