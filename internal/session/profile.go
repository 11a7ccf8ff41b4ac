package session

import (
	"fmt"
)

// ByteProfile is a byte frequency histogram.
type ByteProfile [256]int64

// Total returns the number of bytes profiled.
func (p *ByteProfile) Total() int64 {
	var n int64
	for _, c := range p {
		n += c
	}
	return n
}

// ASCII returns the number of profiled bytes below 0x80.
func (p *ByteProfile) ASCII() int64 {
	var n int64
	for _, c := range p[:0x80] {
		n += c
	}
	return n
}

// Profile counts byte values over [offset, offset+length). A zero length
// profiles to the end of the document.
func (s *Session) Profile(offset, length int64) (ByteProfile, error) {
	var prof ByteProfile

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return prof, ErrSessionClosed
	}
	snap := snapshot{tree: s.tree, fetch: s.fetcher()}
	s.mu.Unlock()

	size := snap.tree.Len()
	if offset < 0 || length < 0 || offset > size {
		return prof, fmt.Errorf("%w: profile %d+%d of %d", ErrInvalidRange, offset, length, size)
	}
	end := size
	if length > 0 && length < size-offset {
		end = offset + length
	}

	buf := make([]byte, min(int64(s.chunkSize), max(end-offset, 1)))
	for pos := offset; pos < end; {
		n := min(int64(len(buf)), end-pos)
		if _, err := snap.ReadAt(buf[:n], pos); err != nil {
			return prof, fmt.Errorf("%w: read %d+%d: %v", ErrIO, pos, n, err)
		}
		for _, b := range buf[:n] {
			prof[b]++
		}
		pos += n
	}
	return prof, nil
}

// Counts summarizes a session's state.
type Counts struct {
	ComputedSize   int64 // current document length
	SourceSize     int64
	ChangeCount    int
	UndoCount      int // changes available to redo
	ViewportCount  int
	DirtyViewports int
	Transactions   int // distinct transactions in the change log
	ChangesPaused  bool

	Callbacks        uint64 // viewport callbacks run
	CallbackFailures uint64 // callbacks that panicked or returned an error
}

// Counts returns a summary of the session's state.
func (s *Session) Counts() (Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Counts{}, ErrSessionClosed
	}

	c := Counts{
		ComputedSize:  s.tree.Len(),
		SourceSize:    s.base.Len(),
		ChangeCount:   len(s.log),
		UndoCount:     len(s.redo),
		ViewportCount: len(s.viewports),
		ChangesPaused: s.changesPaused,
	}
	stats := s.dispatcher.Stats()
	c.Callbacks = stats.Dispatched
	c.CallbackFailures = stats.Panicked + stats.Failed
	for _, st := range s.viewports {
		if st.dirty {
			c.DirtyViewports++
		}
	}
	var last int64
	for _, ch := range s.log {
		if ch.Transaction != 0 && ch.Transaction != last {
			c.Transactions++
		}
		last = ch.Transaction
	}
	return c, nil
}
