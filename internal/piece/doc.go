// Package piece provides an immutable piece tree for mapping logical byte
// ranges of an edited document onto its backing stores.
//
// A Tree is a B+ tree whose leaves hold Piece descriptors. Each piece names
// a run of bytes either in the original byte source (Original) or in the
// session's append-only add buffer (Added). Internal nodes aggregate byte
// lengths so that locating a logical offset, splitting and joining are all
// O(log n) in the number of pieces.
//
// Key features:
//   - Operations return new trees; originals are never modified
//   - Old roots stay valid, giving cheap snapshots for undo and save
//   - No document bytes are held by the tree itself
//   - All leaves are at the same depth and every internal node has at least
//     two children, so height is bounded by log2 of the piece count
//
// Basic usage:
//
//	t := piece.FromPiece(piece.Piece{Kind: piece.Original, Length: srcLen})
//	t = t.Insert(5, piece.Piece{Kind: piece.Added, Offset: 0, Length: 3})
//	t = t.Delete(0, 2)
//	n, err := t.ReadAt(buf, 0, fetcher)
package piece
