package session

import (
	"fmt"

	"github.com/dshills/bytestorm/internal/piece"
)

// ChangeKind categorizes a change.
type ChangeKind uint8

const (
	// ChangeInsert indicates bytes were inserted before Offset.
	ChangeInsert ChangeKind = iota + 1

	// ChangeOverwrite indicates Length bytes at Offset were replaced.
	ChangeOverwrite

	// ChangeDelete indicates Length bytes at Offset were removed.
	ChangeDelete
)

// String returns a human-readable representation of the change kind.
func (k ChangeKind) String() string {
	switch k {
	case ChangeInsert:
		return "insert"
	case ChangeOverwrite:
		return "overwrite"
	case ChangeDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Change is one edit recorded in a session's change log.
// Changes are immutable once appended.
type Change struct {
	// Serial identifies the change within its session. Serials start at 1
	// and increase with every applied change.
	Serial int64

	// Kind is the type of edit.
	Kind ChangeKind

	// Offset is the logical offset the edit applied at.
	Offset int64

	// Length is the number of bytes inserted, overwritten or deleted.
	Length int64

	// Transaction groups changes applied between BeginTransaction and
	// EndTransaction. Zero when the change was not part of a transaction.
	Transaction int64

	// NewLength is the document length after the change.
	NewLength int64

	content piece.Piece // Added piece for insert/overwrite
	add     *addBuffer
	before  piece.Tree
	after   piece.Tree
}

// Data returns a copy of the bytes the change inserted or wrote.
// It returns nil for deletes.
func (c *Change) Data() []byte {
	if c.Kind == ChangeDelete || c.add == nil || c.content.IsEmpty() {
		return nil
	}
	buf := make([]byte, c.content.Length)
	if err := c.add.Fetch(buf, c.content.Offset); err != nil {
		return nil
	}
	return buf
}

// Delta returns the change in document length caused by the change.
func (c *Change) Delta() int64 {
	switch c.Kind {
	case ChangeInsert:
		return c.Length
	case ChangeDelete:
		return -c.Length
	default:
		return 0
	}
}

// Affects reports whether a window [offset, offset+capacity) must be
// refreshed because of the change. Inserts and deletes shift everything
// after their offset, so any window ending after the edit point is
// affected even when the edit lies entirely before it. Overwrites only
// affect windows they intersect.
func (c *Change) Affects(offset, capacity int64) bool {
	end := offset + capacity
	switch c.Kind {
	case ChangeInsert, ChangeDelete:
		return c.Offset < end
	case ChangeOverwrite:
		return c.Offset < end && offset < c.Offset+c.Length
	default:
		return false
	}
}

// String returns a human-readable representation of the change.
func (c *Change) String() string {
	return fmt.Sprintf("#%d %s %d+%d", c.Serial, c.Kind, c.Offset, c.Length)
}

// Result describes a successfully applied mutation.
type Result struct {
	// Serial is the serial of the applied change. Zero for no-op
	// mutations that appended nothing.
	Serial int64

	// Length is the document length after the mutation.
	Length int64
}
