package source

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// File is a Source that reads an open file on demand.
// The file size is captured when the source is opened.
type File struct {
	mu     sync.RWMutex
	f      *os.File
	path   string
	size   int64
	closed bool
}

// OpenFile opens path read-only as a Source.
func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%s: is a directory", path)
	}
	return &File{f: f, path: path, size: info.Size()}, nil
}

// Path returns the path the source was opened from.
func (s *File) Path() string {
	return s.path
}

// Len returns the file size captured at open.
func (s *File) Len() int64 {
	return s.size
}

// ReadAt implements io.ReaderAt. Reads never extend past the size captured
// at open, even if the file has grown since.
func (s *File) ReadAt(p []byte, off int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, ErrOutOfRange
	}
	if off >= s.size {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}

	want := p
	if rem := s.size - off; int64(len(want)) > rem {
		want = want[:rem]
	}
	n, err := s.f.ReadAt(want, off)
	if err == nil && n < len(p) {
		err = io.EOF
	}
	return n, err
}

// Close closes the file.
func (s *File) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.f.Close()
}
