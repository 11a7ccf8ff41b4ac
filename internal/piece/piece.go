package piece

import "fmt"

// Kind identifies the store a piece's bytes live in.
type Kind uint8

const (
	// Original pieces reference the immutable byte source.
	Original Kind = iota

	// Added pieces reference the session's append-only add buffer.
	Added
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case Original:
		return "original"
	case Added:
		return "added"
	default:
		return "unknown"
	}
}

// Piece is a run of Length bytes starting at physical Offset in the store
// named by Kind.
type Piece struct {
	Kind   Kind
	Offset int64
	Length int64
}

// IsEmpty returns true if the piece covers no bytes.
func (p Piece) IsEmpty() bool {
	return p.Length <= 0
}

// End returns the physical offset one past the last byte.
func (p Piece) End() int64 {
	return p.Offset + p.Length
}

// Split splits the piece at a relative offset.
func (p Piece) Split(at int64) (Piece, Piece) {
	if at <= 0 {
		return Piece{Kind: p.Kind, Offset: p.Offset}, p
	}
	if at >= p.Length {
		return p, Piece{Kind: p.Kind, Offset: p.End()}
	}
	return Piece{Kind: p.Kind, Offset: p.Offset, Length: at},
		Piece{Kind: p.Kind, Offset: p.Offset + at, Length: p.Length - at}
}

// Slice returns the sub-piece covering relative bytes [start, end).
func (p Piece) Slice(start, end int64) Piece {
	if start < 0 {
		start = 0
	}
	if end > p.Length {
		end = p.Length
	}
	if start >= end {
		return Piece{Kind: p.Kind, Offset: p.Offset + start}
	}
	return Piece{Kind: p.Kind, Offset: p.Offset + start, Length: end - start}
}

// adjacent reports whether q directly continues p in the same store.
func (p Piece) adjacent(q Piece) bool {
	return p.Kind == q.Kind && p.End() == q.Offset
}

// String returns a compact description of the piece.
func (p Piece) String() string {
	return fmt.Sprintf("%s[%d+%d]", p.Kind, p.Offset, p.Length)
}
