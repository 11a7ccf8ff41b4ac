//go:build unix

package source

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// Mmap is a Source backed by a read-only shared memory mapping.
type Mmap struct {
	mu     sync.RWMutex
	data   []byte
	path   string
	closed bool
}

// OpenMmap maps path read-only. Empty files cannot be mapped and are
// returned as an empty Memory source instead.
func OpenMmap(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s: is a directory", path)
	}
	size := info.Size()
	if size == 0 {
		return Empty(), nil
	}
	if int64(int(size)) != size {
		return nil, fmt.Errorf("%s: too large to map", path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return &Mmap{data: data, path: path}, nil
}

// Path returns the mapped file's path.
func (m *Mmap) Path() string {
	return m.path
}

// Len returns the mapped length.
func (m *Mmap) Len() int64 {
	return int64(len(m.data))
}

// ReadAt implements io.ReaderAt.
func (m *Mmap) ReadAt(p []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrClosed
	}
	return readSlice(m.data, p, off)
}

// Close unmaps the file.
func (m *Mmap) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	err := unix.Munmap(m.data)
	m.data = nil
	return err
}
