// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package blockdevice

import (
	"log"

	"github.com/fantom-foundation/cachekit/common/ticker"
)

// DefaultWriteBackBatch bounds how many dirty sectors one sweep flushes.
const DefaultWriteBackBatch = 256

// StartWriteBackLoop runs WriteBack every tick delivered by t until stop is
// called, logging (but not otherwise acting on) any error a sweep returns:
// a failed write-back leaves the sector dirty and eligible for
// the next sweep, it does not fail any in-flight foreground I/O.
func (d *Device[X]) StartWriteBackLoop(t ticker.Ticker) (stop func()) {
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-t.C():
				if err := d.WriteBack(DefaultWriteBackBatch); err != nil {
					log.Printf("blockdevice: write-back sweep: %v", err)
				}
			case <-done:
				t.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}
