// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package blockdevice implements the cached block device front-end of
// a per-I/O lookup against a cache.Manager whose value type is
// the physical sector number in a local cache file, a background fetcher
// that populates misses from a remote page server, and dirty write-back
// accounting.
package blockdevice

import (
	"fmt"
	"sync"
)

// SectorSize is the fixed sector granularity the front-end fetches and
// writes in. The page server accepts any request length and reports its
// own page size (4096 by default) separately.
const SectorSize = 512

// sectorAllocator is the Front-End's own free-index stack over the cache
// file's physical sectors (the open question of what the cache's value
// type): independent of the slot arena's internal free stack, since the
// arena only ever frees *its own* slot indices, not the physical byte
// ranges that a policy's evicted value pointed into.
type sectorAllocator struct {
	mu       sync.Mutex
	free     []int64
	capacity int64
	next     int64 // next never-yet-issued sector, handed out once free is empty
}

func newSectorAllocator(capacity int64) *sectorAllocator {
	return &sectorAllocator{capacity: capacity}
}

// alloc returns a physical sector index to place a newly fetched sector
// into, preferring a freed (evicted) sector over growing into virgin space.
func (a *sectorAllocator) alloc() (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n := len(a.free); n > 0 {
		s := a.free[n-1]
		a.free = a.free[:n-1]
		return s, nil
	}
	if a.next >= a.capacity {
		return 0, fmt.Errorf("blockdevice: cache file exhausted (%d physical sectors)", a.capacity)
	}
	s := a.next
	a.next++
	return s, nil
}

// release returns sector to the pool, making it eligible for the next
// alloc. Called when the cache.Manager evicts the logical sector it backed.
func (a *sectorAllocator) release(sector int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.free = append(a.free, sector)
}
