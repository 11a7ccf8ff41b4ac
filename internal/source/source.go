package source

import (
	"io"
	"sync/atomic"
)

// Source is a read-only, random access byte source.
type Source interface {
	io.ReaderAt

	// Len returns the number of bytes in the source.
	Len() int64

	// Close releases the underlying resources. It is safe to call more
	// than once.
	Close() error
}

// Memory is a Source backed by a byte slice.
type Memory struct {
	data   []byte
	closed atomic.Bool
}

// NewMemory creates a Source holding a copy of data.
func NewMemory(data []byte) *Memory {
	cp := make([]byte, len(data))
	copy(cp, data)
	return &Memory{data: cp}
}

// Empty returns a zero-length Source.
func Empty() *Memory {
	return &Memory{}
}

// Len returns the number of bytes.
func (m *Memory) Len() int64 {
	return int64(len(m.data))
}

// ReadAt implements io.ReaderAt.
func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	if m.closed.Load() {
		return 0, ErrClosed
	}
	return readSlice(m.data, p, off)
}

// Close marks the source closed.
func (m *Memory) Close() error {
	m.closed.Store(true)
	return nil
}

// readSlice copies from data at off into p with io.ReaderAt semantics.
func readSlice(data, p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, ErrOutOfRange
	}
	if off >= int64(len(data)) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
