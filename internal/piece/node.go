package piece

// Tree structure constants
const (
	// MaxChildren is the maximum children per internal node before splitting.
	MaxChildren = 8

	// MaxPiecesPerLeaf is the maximum pieces in a leaf node before splitting.
	MaxPiecesPerLeaf = 8
)

// Node represents a node in the piece B+ tree.
// Leaf nodes (height == 0) contain pieces.
// Internal nodes (height > 0) contain child node references.
// Nodes are never mutated once they are reachable from a Tree.
type Node struct {
	height uint8
	length int64 // total logical bytes in this subtree
	count  int   // total pieces in this subtree

	// Internal node fields (height > 0)
	children []*Node

	// Leaf node fields (height == 0)
	pieces []Piece
}

// newLeaf creates a leaf node holding the given pieces.
// Returns nil if pieces is empty.
func newLeaf(pieces []Piece) *Node {
	if len(pieces) == 0 {
		return nil
	}
	n := &Node{pieces: pieces, count: len(pieces)}
	for _, p := range pieces {
		n.length += p.Length
	}
	return n
}

// newInternal creates an internal node over children of equal height.
func newInternal(children []*Node) *Node {
	n := &Node{
		height:   children[0].height + 1,
		children: children,
	}
	for _, c := range children {
		n.length += c.length
		n.count += c.count
	}
	return n
}

// IsLeaf returns true if this is a leaf node.
func (n *Node) IsLeaf() bool {
	return n.height == 0
}

// Len returns the logical byte length of this subtree.
func (n *Node) Len() int64 {
	if n == nil {
		return 0
	}
	return n.length
}

// fromChildren builds a node from children of equal height.
// Zero children gives nil; one child is returned unwrapped so that every
// internal node has at least two children.
func fromChildren(children []*Node) *Node {
	switch len(children) {
	case 0:
		return nil
	case 1:
		return children[0]
	}
	nodes := packInternal(children)
	for len(nodes) > 1 {
		nodes = packInternal(nodes)
	}
	return nodes[0]
}

// packInternal groups children of equal height under as few parents as
// MaxChildren allows, spreading them evenly.
func packInternal(children []*Node) []*Node {
	if len(children) <= MaxChildren {
		cp := make([]*Node, len(children))
		copy(cp, children)
		return []*Node{newInternal(cp)}
	}
	groups := (len(children) + MaxChildren - 1) / MaxChildren
	parents := make([]*Node, 0, groups)
	start := 0
	for g := 0; g < groups; g++ {
		end := start + (len(children)-start)/(groups-g)
		cp := make([]*Node, end-start)
		copy(cp, children[start:end])
		parents = append(parents, newInternal(cp))
		start = end
	}
	return parents
}

// packLeaves splits pieces into leaves of at most MaxPiecesPerLeaf.
func packLeaves(pieces []Piece) []*Node {
	if len(pieces) <= MaxPiecesPerLeaf {
		return []*Node{newLeaf(pieces)}
	}
	groups := (len(pieces) + MaxPiecesPerLeaf - 1) / MaxPiecesPerLeaf
	leaves := make([]*Node, 0, groups)
	start := 0
	for g := 0; g < groups; g++ {
		end := start + (len(pieces)-start)/(groups-g)
		cp := make([]Piece, end-start)
		copy(cp, pieces[start:end])
		leaves = append(leaves, newLeaf(cp))
		start = end
	}
	return leaves
}

// join concatenates two trees, either of which may be nil.
func join(left, right *Node) *Node {
	if left == nil || left.length == 0 {
		return right
	}
	if right == nil || right.length == 0 {
		return left
	}
	nodes := joinNodes(left, right)
	if len(nodes) == 1 {
		return nodes[0]
	}
	return newInternal(nodes)
}

// joinNodes concatenates two non-empty nodes and returns one or two nodes,
// each with the height of the taller input.
func joinNodes(left, right *Node) []*Node {
	switch {
	case left.height == right.height:
		if left.IsLeaf() {
			return packLeaves(mergePieces(left.pieces, right.pieces))
		}
		children := make([]*Node, 0, len(left.children)+len(right.children))
		children = append(children, left.children...)
		children = append(children, right.children...)
		return packInternal(children)

	case left.height > right.height:
		last := len(left.children) - 1
		sub := joinNodes(left.children[last], right)
		children := make([]*Node, 0, last+len(sub))
		children = append(children, left.children[:last]...)
		children = append(children, sub...)
		return packInternal(children)

	default:
		sub := joinNodes(left, right.children[0])
		children := make([]*Node, 0, len(sub)+len(right.children)-1)
		children = append(children, sub...)
		children = append(children, right.children[1:]...)
		return packInternal(children)
	}
}

// mergePieces concatenates two piece lists, coalescing the boundary pair
// when the second continues the first in the same store.
func mergePieces(a, b []Piece) []Piece {
	out := make([]Piece, 0, len(a)+len(b))
	out = append(out, a...)
	if len(out) > 0 && len(b) > 0 && out[len(out)-1].adjacent(b[0]) {
		out[len(out)-1].Length += b[0].Length
		b = b[1:]
	}
	return append(out, b...)
}

// split splits the subtree at a logical offset.
// Left contains [0, offset), right contains [offset, end). Either may be nil.
func (n *Node) split(offset int64) (*Node, *Node) {
	if n == nil {
		return nil, nil
	}
	if offset <= 0 {
		return nil, n
	}
	if offset >= n.length {
		return n, nil
	}

	if n.IsLeaf() {
		return n.splitLeaf(offset)
	}
	return n.splitInternal(offset)
}

// splitLeaf splits a leaf node at the given offset.
func (n *Node) splitLeaf(offset int64) (*Node, *Node) {
	var left, right []Piece
	pos := int64(0)

	for _, p := range n.pieces {
		switch {
		case pos+p.Length <= offset:
			left = append(left, p)
		case pos >= offset:
			right = append(right, p)
		default:
			l, r := p.Split(offset - pos)
			left = append(left, l)
			right = append(right, r)
		}
		pos += p.Length
	}

	return newLeaf(left), newLeaf(right)
}

// splitInternal splits an internal node at the given offset.
func (n *Node) splitInternal(offset int64) (*Node, *Node) {
	pos := int64(0)
	for i, child := range n.children {
		end := pos + child.length
		if offset > end {
			pos = end
			continue
		}
		if offset == end {
			return fromChildren(n.children[:i+1]), fromChildren(n.children[i+1:])
		}

		cl, cr := child.split(offset - pos)
		left := join(fromChildren(n.children[:i]), cl)
		right := join(cr, fromChildren(n.children[i+1:]))
		return left, right
	}
	return n, nil
}

// walk calls fn for each piece overlapping [start, end), clipped to the
// range. base is the logical offset of the start of n. Returns false if fn
// stopped the walk.
func (n *Node) walk(base, start, end int64, fn func(p Piece, at int64) bool) bool {
	if n.IsLeaf() {
		pos := base
		for _, p := range n.pieces {
			pend := pos + p.Length
			if pend <= start {
				pos = pend
				continue
			}
			if pos >= end {
				return false
			}
			lo, hi := int64(0), p.Length
			if start > pos {
				lo = start - pos
			}
			if end < pend {
				hi = end - pos
			}
			if !fn(p.Slice(lo, hi), pos+lo) {
				return false
			}
			pos = pend
		}
		return true
	}

	pos := base
	for _, child := range n.children {
		cend := pos + child.length
		if cend <= start {
			pos = cend
			continue
		}
		if pos >= end {
			return false
		}
		if !child.walk(pos, start, end, fn) {
			return false
		}
		pos = cend
	}
	return true
}

// find returns the piece containing the logical offset and the offset
// within that piece.
func (n *Node) find(offset int64) (Piece, int64, bool) {
	for !n.IsLeaf() {
		found := false
		for _, child := range n.children {
			if offset < child.length {
				n = child
				found = true
				break
			}
			offset -= child.length
		}
		if !found {
			return Piece{}, 0, false
		}
	}
	for _, p := range n.pieces {
		if offset < p.Length {
			return p, offset, true
		}
		offset -= p.Length
	}
	return Piece{}, 0, false
}
