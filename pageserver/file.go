// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package pageserver

import (
	"fmt"
	"os"
	"syscall"

	"github.com/fantom-foundation/cachekit/backend/utils"
	"github.com/fantom-foundation/cachekit/common"
)

// writeChunk is the largest single write BufferedFile accepts; larger
// requests are split into chunks of this size.
const writeChunk = 1 << 12

// ErrBackingIO reports a failure to read, write, flush, or discard against
// the backing file.
const ErrBackingIO = common.ConstError("pageserver: backing I/O error")

// backingFile is the flat, superblock-free region a Server reads and
// writes, built on the teacher's buffered, seek-tracking file wrapper and
// extended with fixed-size-on-open semantics and hole punching.
type backingFile struct {
	buf      *utils.BufferedFile
	path     string
	pageSize uint32
}

// openBackingFile opens path, creating it and sizing it to size bytes if it
// does not already exist. If it exists, size must be zero (the CLI layer is
// responsible for enforcing the "-s forbidden if file exists" rule; this
// function only refuses to shrink or grow an existing file).
func openBackingFile(path string, size int64, pageSize uint32) (*backingFile, error) {
	_, statErr := os.Stat(path)
	existed := statErr == nil

	f, err := utils.OpenBufferedFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrBackingIO, path, err)
	}

	if !existed && size > 0 {
		if err := growTo(f, size); err != nil {
			f.Close()
			return nil, err
		}
	}

	return &backingFile{buf: f, path: path, pageSize: pageSize}, nil
}

func growTo(f *utils.BufferedFile, size int64) error {
	if size <= 0 {
		return nil
	}
	zero := make([]byte, writeChunk)
	for pos := int64(0); pos < size; pos += writeChunk {
		n := size - pos
		if n > writeChunk {
			n = writeChunk
		}
		if _, err := f.WriteAt(zero[:n], pos); err != nil {
			return fmt.Errorf("%w: sizing %d bytes: %v", ErrBackingIO, size, err)
		}
	}
	return f.Flush()
}

func (b *backingFile) totalSize() int64 {
	return b.buf.Size()
}

// readAt fills dst from the backing file, chunked at writeChunk boundaries.
// A short read (request extends past end of file) is reported
// to the caller as (n, true) where n < len(dst); the caller turns that into
// an EOF status.
func (b *backingFile) readAt(dst []byte, offset int64) (int, bool, error) {
	total := b.totalSize()
	if offset >= total {
		return 0, true, nil
	}
	n := len(dst)
	short := false
	if offset+int64(n) > total {
		n = int(total - offset)
		short = true
	}
	for pos := 0; pos < n; pos += writeChunk {
		end := pos + writeChunk
		if end > n {
			end = n
		}
		if _, err := b.buf.ReadAt(dst[pos:end], offset+int64(pos)); err != nil {
			return 0, false, fmt.Errorf("%w: reading at %d: %v", ErrBackingIO, offset, err)
		}
	}
	return n, short, nil
}

func (b *backingFile) writeAt(src []byte, offset int64) error {
	for pos := 0; pos < len(src); pos += writeChunk {
		end := pos + writeChunk
		if end > len(src) {
			end = len(src)
		}
		if _, err := b.buf.WriteAt(src[pos:end], offset+int64(pos)); err != nil {
			return fmt.Errorf("%w: writing at %d: %v", ErrBackingIO, offset, err)
		}
	}
	return nil
}

func (b *backingFile) flush() error {
	if err := b.buf.Flush(); err != nil {
		return fmt.Errorf("%w: flushing %s: %v", ErrBackingIO, b.path, err)
	}
	return nil
}

// discard punches a hole in [offset, offset+length), preserving the file's
// total size. Falls back to zero-filling the range when
// the platform or filesystem rejects FALLOC_FL_PUNCH_HOLE.
func (b *backingFile) discard(offset int64, length int64) error {
	if length <= 0 {
		return nil
	}
	if err := b.flush(); err != nil {
		return err
	}
	if raw, ok := b.buf.RawFile().(*os.File); ok {
		const flags = unix_FALLOC_FL_PUNCH_HOLE | unix_FALLOC_FL_KEEP_SIZE
		if err := syscall.Fallocate(int(raw.Fd()), flags, offset, length); err == nil {
			return nil
		}
	}
	return b.zeroFill(offset, length)
}

// unix_FALLOC_FL_PUNCH_HOLE / unix_FALLOC_FL_KEEP_SIZE mirror the Linux
// fallocate(2) flags; named locally to avoid an x/sys/unix dependency for
// two constants.
const (
	unix_FALLOC_FL_PUNCH_HOLE = 0x02
	unix_FALLOC_FL_KEEP_SIZE  = 0x01
)

func (b *backingFile) zeroFill(offset, length int64) error {
	zero := make([]byte, writeChunk)
	for pos := int64(0); pos < length; pos += writeChunk {
		n := length - pos
		if n > writeChunk {
			n = writeChunk
		}
		if err := b.writeAt(zero[:n], offset+pos); err != nil {
			return err
		}
	}
	return b.flush()
}

func (b *backingFile) close() error {
	if err := b.buf.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %v", ErrBackingIO, b.path, err)
	}
	return nil
}
