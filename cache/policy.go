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

// policy is the uniform interface every eviction strategy
// implements over a shared arena. A policy is stateless with respect to Go
// receiver semantics in the sense that it keeps no reference to any one
// entry across calls; all of its bookkeeping either lives in the arena's
// per-slot extension fields (ext) or in the policy value itself (list
// anchors, hand position, ghost sets, ...).
//
// on_access/on_insert/on_remove must run in O(1). pickVictim may scan, but
// each policy bounds its scan at two full traversals of its tracked set.
type policy[K comparable, V any, X any] interface {
	// onAccess is invoked on every cache hit, and on a duplicate insert of an
	// already-present key.
	onAccess(a *arena[K, V, X], slot int32)

	// onInsert is invoked exactly once, right after a brand-new entry has
	// been installed into the arena (slot is already valid, clean, unpinned).
	onInsert(a *arena[K, V, X], slot int32)

	// onRemove is invoked right before a valid entry is handed back to the
	// arena's free stack, whether by eviction or explicit invalidation. The
	// entry's fields (including ext) are still intact when this runs.
	onRemove(a *arena[K, V, X], slot int32)

	// pickVictim returns the slot this policy prefers to evict among those
	// satisfying evictable, or (noneSlot, false) if none qualifies.
	pickVictim(a *arena[K, V, X], evictable func(slot int32) bool) (int32, bool)

	// onReset clears any policy-owned state not attached to an arena slot
	// (list anchors, hand position, ghost sets, min_freq, ...), called by
	// Manager.Clear after the arena itself has been reset.
	onReset()

	// name is a short diagnostic tag, e.g. "lru", "arc".
	name() string
}
