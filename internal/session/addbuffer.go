package session

import (
	"fmt"
	"sync"
)

// addBlockSize is the size of each add buffer block.
const addBlockSize = 64 * 1024

// addBuffer is the append-only store for inserted and overwritten bytes.
// Bytes are kept in fixed-size blocks so that growth never copies earlier
// content. Appended bytes are never modified.
type addBuffer struct {
	mu     sync.RWMutex
	blocks [][]byte
	size   int64
}

// Append stores data and returns its physical offset.
func (b *addBuffer) Append(data []byte) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	off := b.size
	for len(data) > 0 {
		if len(b.blocks) == 0 || len(b.blocks[len(b.blocks)-1]) == addBlockSize {
			b.blocks = append(b.blocks, make([]byte, 0, addBlockSize))
		}
		last := len(b.blocks) - 1
		room := addBlockSize - len(b.blocks[last])
		n := min(room, len(data))
		b.blocks[last] = append(b.blocks[last], data[:n]...)
		data = data[n:]
		b.size += int64(n)
	}
	return off
}

// Fetch fills p with the bytes at physical offset off.
func (b *addBuffer) Fetch(p []byte, off int64) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if off < 0 || off+int64(len(p)) > b.size {
		return fmt.Errorf("add buffer read %d+%d beyond %d", off, len(p), b.size)
	}
	for len(p) > 0 {
		blk := b.blocks[off/addBlockSize]
		n := copy(p, blk[off%addBlockSize:])
		p = p[n:]
		off += int64(n)
	}
	return nil
}

// reset drops all stored bytes.
func (b *addBuffer) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blocks = nil
	b.size = 0
}
