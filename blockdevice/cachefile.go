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
	"fmt"
	"os"
	"syscall"

	"github.com/fantom-foundation/cachekit/backend/utils"
	"github.com/fantom-foundation/cachekit/common"
)

// ErrBackingIO reports a failure against the local cache file.
const ErrBackingIO = common.ConstError("blockdevice: cache file I/O error")

// cacheFile is the local, sector-addressed file the Front-End dispatches
// hits against and the fetcher populates on a miss, built on the same
// buffered file wrapper the page server uses for its own backing store.
type cacheFile struct {
	buf *utils.BufferedFile
}

func openCacheFile(path string, capacitySectors int64) (*cacheFile, error) {
	f, err := utils.OpenBufferedFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrBackingIO, path, err)
	}
	size := capacitySectors * SectorSize
	if f.Size() < size {
		zero := make([]byte, SectorSize)
		for pos := f.Size(); pos < size; pos += SectorSize {
			if _, err := f.WriteAt(zero, pos); err != nil {
				f.Close()
				return nil, fmt.Errorf("%w: sizing %s: %v", ErrBackingIO, path, err)
			}
		}
	}
	return &cacheFile{buf: f}, nil
}

func (c *cacheFile) readSector(physical int64, dst []byte) error {
	if _, err := c.buf.ReadAt(dst, physical*SectorSize); err != nil {
		return fmt.Errorf("%w: reading physical sector %d: %v", ErrBackingIO, physical, err)
	}
	return nil
}

func (c *cacheFile) writeSector(physical int64, src []byte) error {
	if _, err := c.buf.WriteAt(src, physical*SectorSize); err != nil {
		return fmt.Errorf("%w: writing physical sector %d: %v", ErrBackingIO, physical, err)
	}
	return nil
}

func (c *cacheFile) flush() error {
	if err := c.buf.Flush(); err != nil {
		return fmt.Errorf("%w: flushing: %v", ErrBackingIO, err)
	}
	return nil
}

// discard punches a hole over the given physical sector, falling back to a
// zero-fill write where hole punching is unavailable.
func (c *cacheFile) discard(physical int64) error {
	if err := c.flush(); err != nil {
		return err
	}
	if raw, ok := c.buf.RawFile().(*os.File); ok {
		const flags = 0x02 | 0x01 // FALLOC_FL_PUNCH_HOLE | FALLOC_FL_KEEP_SIZE
		if err := syscall.Fallocate(int(raw.Fd()), flags, physical*SectorSize, SectorSize); err == nil {
			return nil
		}
	}
	return c.writeSector(physical, make([]byte, SectorSize))
}

func (c *cacheFile) close() error {
	if err := c.buf.Close(); err != nil {
		return fmt.Errorf("%w: closing: %v", ErrBackingIO, err)
	}
	return nil
}
