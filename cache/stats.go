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

// Stats is the snapshot returned by Manager.Stats.
type Stats struct {
	Hits        uint64
	Misses      uint64
	Evictions   uint64
	UsedEntries int
	Capacity    int
}

// HitRatio is Hits/(Hits+Misses), or zero when no lookup has occurred yet.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
