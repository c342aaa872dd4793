/*
Copyright (C) 2024-2026  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package diskblock implements the fixed-size block file a Stratum spills
// its overflow entries to. Slots are tracked with the lock-free growable
// bitmap from third_party/NonLockingReadMap; the file I/O of every Write
// and Read is serialized by one mutex.
package diskblock

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"os"
	"sync"

	"github.com/launix-de/NonLockingReadMap"
	"github.com/pierrec/lz4/v4"
)

// Buffer is a single append-mostly file of fixed-size, lz4-compressed
// blocks. A block occupies exactly one slot; Read frees the slot it reads.
type Buffer struct {
	file      *os.File
	blockSize int64
	used      NonLockingReadMap.NonBlockingBitMap
	// fileMu serializes the actual pwrite/pread calls; the bitmap above is
	// what makes slot *allocation* lock-free, not the I/O itself.
	fileMu sync.Mutex
	maxSlot uint32
}

// Open creates (or truncates) path as the backing store for a disk block
// buffer. blockSize must be large enough to hold the lz4-compressed form of
// any block this buffer will ever be asked to store; Write returns an error
// if a compressed block would overflow it.
func Open(path string, blockSize int64) (*Buffer, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("diskblock: open %s: %w", path, err)
	}
	return &Buffer{file: f, blockSize: blockSize}, nil
}

// Close releases the backing file.
func (b *Buffer) Close() error {
	return b.file.Close()
}

// Write compresses payload and stores it in a free slot, returning that
// slot's index for a later Read. It returns an error when the compressed
// payload cannot fit in one block, or when encoding or the file write fails.
func (b *Buffer) Write(payload any) (uint32, error) {
	var raw bytes.Buffer
	if err := gob.NewEncoder(&raw).Encode(payload); err != nil {
		return 0, fmt.Errorf("diskblock: encode: %w", err)
	}

	var compressed bytes.Buffer
	zw := lz4.NewWriter(&compressed)
	if _, err := zw.Write(raw.Bytes()); err != nil {
		return 0, fmt.Errorf("diskblock: compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("diskblock: compress flush: %w", err)
	}
	if int64(compressed.Len())+8 > b.blockSize {
		return 0, fmt.Errorf("diskblock: block full: payload %d bytes exceeds block size %d", compressed.Len(), b.blockSize)
	}

	slot := b.allocSlot()

	block := make([]byte, b.blockSize)
	binary.LittleEndian.PutUint64(block, uint64(compressed.Len()))
	copy(block[8:], compressed.Bytes())

	b.fileMu.Lock()
	_, err := b.file.WriteAt(block, int64(slot)*b.blockSize)
	b.fileMu.Unlock()
	if err != nil {
		b.used.Set(slot, false)
		return 0, fmt.Errorf("diskblock: write slot %d: %w", slot, err)
	}
	return slot, nil
}

// Read decompresses and decodes the block at slot into out (a pointer),
// then frees the slot. out must be the same concrete type passed to Write.
func (b *Buffer) Read(slot uint32, out any) error {
	block := make([]byte, b.blockSize)
	b.fileMu.Lock()
	_, err := b.file.ReadAt(block, int64(slot)*b.blockSize)
	b.fileMu.Unlock()
	if err != nil {
		return fmt.Errorf("diskblock: read slot %d: %w", slot, err)
	}
	n := binary.LittleEndian.Uint64(block)
	if n+8 > uint64(b.blockSize) {
		return fmt.Errorf("diskblock: corrupt length prefix in slot %d", slot)
	}

	zr := lz4.NewReader(bytes.NewReader(block[8 : 8+n]))
	var raw bytes.Buffer
	if _, err := raw.ReadFrom(zr); err != nil {
		return fmt.Errorf("diskblock: decompress slot %d: %w", slot, err)
	}
	if err := gob.NewDecoder(&raw).Decode(out); err != nil {
		return fmt.Errorf("diskblock: decode slot %d: %w", slot, err)
	}

	b.used.Set(slot, false)
	return nil
}

func (b *Buffer) allocSlot() uint32 {
	for slot := uint32(0); ; slot++ {
		if !b.used.Get(slot) {
			b.used.Set(slot, true)
			if slot > b.maxSlot {
				b.maxSlot = slot
			}
			return slot
		}
	}
}

// InUse returns the number of slots currently occupied.
func (b *Buffer) InUse() uint {
	return b.used.Count()
}
