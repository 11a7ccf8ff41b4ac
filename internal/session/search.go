package session

import (
	"bytes"
	"fmt"
)

// SearchOptions limits a search.
type SearchOptions struct {
	// Offset is where the search starts.
	Offset int64

	// Length is the number of bytes searched. Zero searches to the end.
	Length int64

	// CaseInsensitive folds ASCII letters before comparing.
	CaseInsensitive bool

	// Limit stops the search after this many matches. Zero is unlimited.
	Limit int
}

// Search returns the offsets of non-overlapping occurrences of pattern,
// in ascending order. Content is streamed in chunks; the document is
// never materialized whole. An empty pattern matches nothing.
func (s *Session) Search(pattern []byte, opts SearchOptions) ([]int64, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	snap := snapshot{tree: s.tree, fetch: s.fetcher()}
	s.mu.Unlock()

	return s.search(snap, pattern, opts)
}

// ReplaceAll replaces every non-overlapping occurrence of pattern within
// the searched range and returns the number replaced. Matches are
// replaced from last to first in a single transaction so that the whole
// operation undoes at once.
func (s *Session) ReplaceAll(pattern, replacement []byte, opts SearchOptions) (int, error) {
	var count int
	_, err := s.mutate(func() (Result, error) {
		snap := snapshot{tree: s.tree, fetch: s.fetcher()}
		matches, err := s.search(snap, pattern, opts)
		if err != nil || len(matches) == 0 {
			return Result{}, err
		}

		if s.txn == 0 {
			s.beginTxnLocked()
			defer func() { s.txn = 0 }()
		}
		for i := len(matches) - 1; i >= 0; i-- {
			if _, err := s.replaceLocked(matches[i], int64(len(pattern)), replacement); err != nil {
				return Result{}, err
			}
			count++
		}
		return Result{}, nil
	})
	return count, err
}

// ReplaceOne replaces the first occurrence of pattern within the searched
// range. It returns whether a replacement was made and the offset just
// past the replacement, suitable as the Offset of the next search.
func (s *Session) ReplaceOne(pattern, replacement []byte, opts SearchOptions) (replaced bool, next int64, err error) {
	_, err = s.mutate(func() (Result, error) {
		opts.Limit = 1
		snap := snapshot{tree: s.tree, fetch: s.fetcher()}
		matches, err := s.search(snap, pattern, opts)
		if err != nil || len(matches) == 0 {
			return Result{}, err
		}
		res, err := s.replaceLocked(matches[0], int64(len(pattern)), replacement)
		if err != nil {
			return Result{}, err
		}
		replaced = true
		next = matches[0] + int64(len(replacement))
		return res, nil
	})
	return replaced, next, err
}

func (s *Session) search(snap snapshot, pattern []byte, opts SearchOptions) ([]int64, error) {
	size := snap.tree.Len()
	if opts.Offset < 0 || opts.Length < 0 || opts.Offset > size {
		return nil, fmt.Errorf("%w: search %d+%d of %d", ErrInvalidRange, opts.Offset, opts.Length, size)
	}
	if len(pattern) == 0 {
		return nil, nil
	}

	end := size
	if opts.Length > 0 && opts.Length < size-opts.Offset {
		end = opts.Offset + opts.Length
	}
	if end-opts.Offset < int64(len(pattern)) {
		return nil, nil
	}

	needle := pattern
	if opts.CaseInsensitive {
		needle = asciiLower(bytes.Clone(pattern))
	}

	overlap := int64(len(pattern) - 1)
	chunk := max(int64(s.chunkSize), 2*int64(len(pattern)))
	buf := make([]byte, 0, chunk+overlap)

	var (
		matches []int64
		bufAt   = opts.Offset // document offset of buf[0]
		pos     = opts.Offset // next unread offset
		next    = opts.Offset // earliest offset a new match may start at
	)
	for pos < end {
		n := min(chunk, end-pos)
		tail := buf[len(buf) : int64(len(buf))+n]
		if _, err := snap.ReadAt(tail, pos); err != nil {
			return nil, fmt.Errorf("%w: read %d+%d: %v", ErrIO, pos, n, err)
		}
		if opts.CaseInsensitive {
			asciiLower(tail)
		}
		buf = buf[:int64(len(buf))+n]
		pos += n

		for i := 0; ; {
			j := bytes.Index(buf[i:], needle)
			if j < 0 {
				break
			}
			at := bufAt + int64(i+j)
			if at >= next {
				matches = append(matches, at)
				if opts.Limit > 0 && len(matches) >= opts.Limit {
					return matches, nil
				}
				next = at + int64(len(needle))
			}
			i += j + 1
		}

		// Keep the last len(pattern)-1 bytes so that matches spanning the
		// chunk boundary are found.
		keep := min(overlap, int64(len(buf)))
		copy(buf, buf[int64(len(buf))-keep:])
		bufAt += int64(len(buf)) - keep
		buf = buf[:keep]
	}
	return matches, nil
}

// asciiLower lowers ASCII letters in b in place and returns it.
func asciiLower(b []byte) []byte {
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return b
}
