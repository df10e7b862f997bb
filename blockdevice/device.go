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
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fantom-foundation/cachekit/cache"
)

// Config describes a Device's storage and remote collaborator.
type Config struct {
	CacheFile       string        // local cache-file path (created if missing)
	RemoteAddr      string        // page-server "host:port"
	DialTimeout     time.Duration // default 5s if zero
	StartOffset     uint64        // byte offset into the remote device this Device's logical sector 0 maps to
	CapacitySectors int64         // cache capacity in sectors; the physical-sector pool holds one more, where a fetch lands before its Insert evicts
	FetchWorkers    int           // default 1
	FetchQueueDepth int           // default 64, mirroring the original fetch queue's depth
}

// Device is the cached block device front-end. X is the
// per-slot extension of whichever eviction policy backs mgr (pass any
// Manager constructed by the cache package's NewLRU/NewARC/etc. family with
// K=uint64 (logical sector), V=int64 (physical sector)).
type Device[X any] struct {
	mgr   *cache.Manager[uint64, int64, X]
	file  *cacheFile
	alloc *sectorAllocator
	fetch *fetcher

	fileMu   sync.Mutex
	clientMu sync.Mutex
	client   Client

	startOffset uint64
}

// NewDevice opens cfg.CacheFile, connects to the page server, and starts the
// background fetcher. mgr must be freshly constructed (not yet used) with
// capacity equal to cfg.CapacitySectors; Device registers its own eviction
// listener on it to reclaim physical sectors. The physical-sector pool has
// one spare sector: fetchSector writes a new sector before its Insert
// evicts, so a full cache still needs a free sector to land in.
func NewDevice[X any](cfg Config, mgr *cache.Manager[uint64, int64, X]) (*Device[X], error) {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.FetchQueueDepth == 0 {
		cfg.FetchQueueDepth = 64
	}

	file, err := openCacheFile(cfg.CacheFile, cfg.CapacitySectors)
	if err != nil {
		return nil, err
	}

	client, err := Dial(cfg.RemoteAddr, cfg.DialTimeout)
	if err != nil {
		file.close()
		return nil, err
	}

	d := &Device[X]{
		mgr:         mgr,
		file:        file,
		alloc:       newSectorAllocator(cfg.CapacitySectors + 1),
		client:      client,
		startOffset: cfg.StartOffset,
	}
	mgr.SetEvictionListener(func(_ uint64, physical int64) {
		d.alloc.release(physical)
	})
	d.fetch = newFetcher(d, cfg.FetchWorkers, cfg.FetchQueueDepth)
	return d, nil
}

// Close stops the fetcher, closes the remote connection, and closes the
// cache file.
func (d *Device[X]) Close() error {
	d.fetch.stop()
	d.clientMu.Lock()
	clientErr := d.client.Close()
	d.clientMu.Unlock()
	return errors.Join(clientErr, d.file.close())
}

func (d *Device[X]) remoteOffset(logical uint64) uint64 {
	return d.startOffset + logical*SectorSize
}

// Read dispatches a read of one logical sector, fetching it from the remote
// page server first if it is not already cached.
func (d *Device[X]) Read(logical uint64, dst []byte) error {
	physical, err := d.resolve(logical)
	if err != nil {
		return err
	}
	d.fileMu.Lock()
	defer d.fileMu.Unlock()
	return d.file.readSector(physical, dst)
}

// Write dispatches a write of one logical sector. The sector is resolved
// (fetched on a miss) exactly as Read does, then overwritten and marked
// dirty for the write-back sweep.
func (d *Device[X]) Write(logical uint64, src []byte) error {
	physical, err := d.resolve(logical)
	if err != nil {
		return err
	}
	d.fileMu.Lock()
	err = d.file.writeSector(physical, src)
	d.fileMu.Unlock()
	if err != nil {
		return err
	}
	d.mgr.MarkDirty(logical)
	return nil
}

// resolve returns the physical sector logical is cached at, fetching it
// from the remote page server on a miss and blocking until that fetch (or
// one already in flight for the same sector) completes.
func (d *Device[X]) resolve(logical uint64) (int64, error) {
	if physical, ok := d.mgr.Lookup(logical); ok {
		return physical, nil
	}
	if err := <-d.fetch.request(logical); err != nil {
		return 0, err
	}
	physical, ok := d.mgr.Lookup(logical)
	if !ok {
		return 0, fmt.Errorf("blockdevice: sector %d missing immediately after a successful fetch", logical)
	}
	return physical, nil
}

// fetchSector implements sectorFetcher: read logical from the remote page
// server into a freshly allocated physical sector and register the mapping.
func (d *Device[X]) fetchSector(logical uint64) error {
	d.clientMu.Lock()
	data, err := d.client.Read(d.remoteOffset(logical), SectorSize)
	d.clientMu.Unlock()
	if err != nil {
		return err
	}
	if len(data) < SectorSize {
		padded := make([]byte, SectorSize)
		copy(padded, data)
		data = padded
	}

	physical, err := d.alloc.alloc()
	if err != nil {
		return err
	}

	d.fileMu.Lock()
	err = d.file.writeSector(physical, data)
	d.fileMu.Unlock()
	if err != nil {
		d.alloc.release(physical)
		return err
	}

	if !d.mgr.Insert(logical, physical) {
		// Not registered (already cached, or nothing evictable): hand the
		// sector back so it does not leak.
		d.alloc.release(physical)
	}
	return nil
}

// Flush flushes the local cache file and forwards FLUSH to the remote
// server.
func (d *Device[X]) Flush() error {
	d.fileMu.Lock()
	err := d.file.flush()
	d.fileMu.Unlock()
	if err != nil {
		return err
	}
	d.clientMu.Lock()
	defer d.clientMu.Unlock()
	return d.client.Flush()
}

// Discard punches a hole over logical's cached region (if resident),
// invalidates its cache entry, and forwards DISCARD to the remote server.
func (d *Device[X]) Discard(logical uint64) error {
	if physical, ok := d.mgr.Lookup(logical); ok {
		d.fileMu.Lock()
		err := d.file.discard(physical)
		d.fileMu.Unlock()
		if err != nil {
			return err
		}
		d.mgr.Invalidate(logical)
		d.alloc.release(physical)
	}
	d.clientMu.Lock()
	defer d.clientMu.Unlock()
	return d.client.Discard(d.remoteOffset(logical), SectorSize)
}

// WriteBack flushes up to n dirty sectors to the remote server, marking
// each clean only once its WRITE has been acknowledged. Intended to be
// driven periodically (see Device.StartWriteBackLoop).
func (d *Device[X]) WriteBack(n int) error {
	var firstErr error
	for _, logical := range d.mgr.GetDirty(n) {
		physical, ok := d.mgr.Lookup(logical)
		if !ok {
			continue
		}
		buf := make([]byte, SectorSize)
		d.fileMu.Lock()
		err := d.file.readSector(physical, buf)
		d.fileMu.Unlock()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		d.clientMu.Lock()
		err = d.client.Write(d.remoteOffset(logical), buf)
		d.clientMu.Unlock()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		d.mgr.MarkClean(logical)
	}
	return firstErr
}
