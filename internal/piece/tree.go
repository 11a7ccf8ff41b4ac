package piece

import (
	"errors"
	"io"
)

// ErrNegativeOffset is returned by ReadAt for a negative offset.
var ErrNegativeOffset = errors.New("piece: negative offset")

// Fetcher reads physical bytes from the store named by a piece kind.
type Fetcher interface {
	// Fetch fills p with bytes from the store for kind starting at the
	// physical offset off. It must fill p completely or return an error.
	Fetch(kind Kind, p []byte, off int64) error
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(kind Kind, p []byte, off int64) error

// Fetch calls f.
func (f FetcherFunc) Fetch(kind Kind, p []byte, off int64) error {
	return f(kind, p, off)
}

// Tree is an immutable piece tree.
// Operations return new trees; the original is never modified.
// The zero value is an empty tree.
type Tree struct {
	root *Node
}

// New creates an empty tree.
func New() Tree {
	return Tree{}
}

// FromPiece creates a tree holding a single piece.
func FromPiece(p Piece) Tree {
	if p.IsEmpty() {
		return Tree{}
	}
	return Tree{root: newLeaf([]Piece{p})}
}

// FromPieces creates a tree holding pieces in order. Empty pieces are
// dropped and adjacent pieces are coalesced.
func FromPieces(pieces []Piece) Tree {
	var merged []Piece
	for _, p := range pieces {
		if p.IsEmpty() {
			continue
		}
		if n := len(merged); n > 0 && merged[n-1].adjacent(p) {
			merged[n-1].Length += p.Length
			continue
		}
		merged = append(merged, p)
	}
	if len(merged) == 0 {
		return Tree{}
	}
	return Tree{root: fromChildren(packLeaves(merged))}
}

// Len returns the total logical byte length.
func (t Tree) Len() int64 {
	return t.root.Len()
}

// IsEmpty returns true if the tree covers no bytes.
func (t Tree) IsEmpty() bool {
	return t.Len() == 0
}

// PieceCount returns the number of pieces in the tree.
func (t Tree) PieceCount() int {
	if t.root == nil {
		return 0
	}
	return t.root.count
}

// Height returns the height of the tree.
// Useful for debugging and testing balance.
func (t Tree) Height() int {
	if t.root == nil {
		return 0
	}
	return int(t.root.height) + 1
}

// Split splits the tree at offset, returning two trees.
// Left contains [0, offset), right contains [offset, end).
func (t Tree) Split(offset int64) (Tree, Tree) {
	l, r := t.root.split(offset)
	return Tree{root: l}, Tree{root: r}
}

// Concat concatenates two trees.
func (t Tree) Concat(other Tree) Tree {
	return Tree{root: join(t.root, other.root)}
}

// Insert inserts a piece before the byte at offset. Offsets past the end
// append.
func (t Tree) Insert(offset int64, p Piece) Tree {
	if p.IsEmpty() {
		return t
	}
	if offset < 0 {
		offset = 0
	}
	mid := newLeaf([]Piece{p})
	left, right := t.root.split(offset)
	return Tree{root: join(join(left, mid), right)}
}

// Delete removes the logical byte range [start, end), clamped to the tree.
func (t Tree) Delete(start, end int64) Tree {
	if start < 0 {
		start = 0
	}
	if end > t.Len() {
		end = t.Len()
	}
	if start >= end {
		return t
	}
	left, rest := t.root.split(start)
	_, right := rest.split(end - start)
	return Tree{root: join(left, right)}
}

// Overwrite replaces p.Length logical bytes at offset with p. The range is
// clamped to the tree, so the tree may grow when overwriting at the end.
func (t Tree) Overwrite(offset int64, p Piece) Tree {
	if p.IsEmpty() {
		return t
	}
	return t.Delete(offset, offset+p.Length).Insert(offset, p)
}

// Find returns the piece containing the logical offset and the offset
// within that piece. ok is false when offset is outside the tree.
func (t Tree) Find(offset int64) (p Piece, within int64, ok bool) {
	if t.root == nil || offset < 0 || offset >= t.Len() {
		return Piece{}, 0, false
	}
	return t.root.find(offset)
}

// Walk calls fn for every piece overlapping [start, end), clipped to the
// range, in logical order. at is the logical offset of the clipped piece.
// Walking stops early when fn returns false.
func (t Tree) Walk(start, end int64, fn func(p Piece, at int64) bool) {
	if t.root == nil || start >= end {
		return
	}
	if start < 0 {
		start = 0
	}
	t.root.walk(0, start, end, fn)
}

// Pieces returns all pieces in logical order.
func (t Tree) Pieces() []Piece {
	out := make([]Piece, 0, t.PieceCount())
	t.Walk(0, t.Len(), func(p Piece, _ int64) bool {
		out = append(out, p)
		return true
	})
	return out
}

// ReadAt fills p with the logical bytes starting at off, pulling physical
// bytes through f. It follows io.ReaderAt semantics: fewer than len(p)
// bytes are returned only together with an error, io.EOF at the end.
func (t Tree) ReadAt(p []byte, off int64, f Fetcher) (int, error) {
	if off < 0 {
		return 0, ErrNegativeOffset
	}
	if len(p) == 0 {
		return 0, nil
	}
	if off >= t.Len() {
		return 0, io.EOF
	}

	end := off + int64(len(p))
	n := 0
	var ferr error
	t.Walk(off, end, func(pc Piece, at int64) bool {
		dst := p[at-off : at-off+pc.Length]
		if err := f.Fetch(pc.Kind, dst, pc.Offset); err != nil {
			ferr = err
			return false
		}
		n += int(pc.Length)
		return true
	})
	if ferr != nil {
		return n, ferr
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
