package session

import (
	"fmt"

	"github.com/dshills/bytestorm/internal/piece"
)

// ============================================================================
// Mutation API
// ============================================================================

// Insert inserts data before the byte at offset. Offset must be in
// [0, Len()]; inserting at Len() appends. Empty data is a no-op.
func (s *Session) Insert(offset int64, data []byte) (Result, error) {
	return s.mutate(func() (Result, error) {
		if err := s.checkInsert(offset); err != nil {
			return Result{}, err
		}
		return s.applyLocked(ChangeInsert, offset, int64(len(data)), data)
	})
}

// Overwrite replaces len(data) bytes starting at offset with data. The
// document length does not change. Writing past end-of-document is
// rejected with ErrValidation.
func (s *Session) Overwrite(offset int64, data []byte) (Result, error) {
	return s.mutate(func() (Result, error) {
		if err := s.checkSpan("overwrite", offset, int64(len(data))); err != nil {
			return Result{}, err
		}
		return s.applyLocked(ChangeOverwrite, offset, int64(len(data)), data)
	})
}

// Delete removes length bytes starting at offset. Deleting past
// end-of-document is rejected with ErrValidation.
func (s *Session) Delete(offset, length int64) (Result, error) {
	return s.mutate(func() (Result, error) {
		if err := s.checkSpan("delete", offset, length); err != nil {
			return Result{}, err
		}
		return s.applyLocked(ChangeDelete, offset, length, nil)
	})
}

// Replace replaces removeLen bytes at offset with data. Equal lengths are
// recorded as a single overwrite; otherwise a delete and an insert are
// recorded in one transaction so that they undo together.
func (s *Session) Replace(offset, removeLen int64, data []byte) (Result, error) {
	return s.mutate(func() (Result, error) {
		return s.replaceLocked(offset, removeLen, data)
	})
}

func (s *Session) replaceLocked(offset, removeLen int64, data []byte) (Result, error) {
	if err := s.checkSpan("replace", offset, removeLen); err != nil {
		return Result{}, err
	}
	if removeLen == int64(len(data)) {
		return s.applyLocked(ChangeOverwrite, offset, removeLen, data)
	}

	implicit := s.txn == 0
	if implicit {
		s.beginTxnLocked()
		defer func() { s.txn = 0 }()
	}

	res := Result{Length: s.tree.Len()}
	var err error
	if removeLen > 0 {
		if res, err = s.applyLocked(ChangeDelete, offset, removeLen, nil); err != nil {
			return Result{}, err
		}
	}
	if len(data) > 0 {
		if res, err = s.applyLocked(ChangeInsert, offset, int64(len(data)), data); err != nil {
			return Result{}, err
		}
	}
	return res, nil
}

// mutate runs fn under the session lock with the closed, paused and
// reentrancy checks, then drains queued viewport notifications after
// unlocking.
func (s *Session) mutate(fn func() (Result, error)) (Result, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Result{}, ErrSessionClosed
	}
	if s.dispatching {
		s.mu.Unlock()
		return Result{}, ErrReentrant
	}
	if s.changesPaused {
		s.mu.Unlock()
		return Result{}, ErrChangesPaused
	}

	res, err := fn()
	pending := s.takePendingLocked()
	s.mu.Unlock()

	s.drain(pending)
	return res, err
}

// checkInsert validates an insertion point.
func (s *Session) checkInsert(offset int64) error {
	if offset < 0 || offset > s.tree.Len() {
		return fmt.Errorf("%w: insert at %d, document length %d", ErrInvalidRange, offset, s.tree.Len())
	}
	return nil
}

// checkSpan validates a span consumed by an overwrite or delete. An empty
// span may sit at end-of-document; a non-empty one must start before it
// and may not run past it.
func (s *Session) checkSpan(op string, offset, length int64) error {
	size := s.tree.Len()
	switch {
	case offset < 0 || length < 0:
		return fmt.Errorf("%w: %s %d+%d", ErrInvalidRange, op, offset, length)
	case length == 0 && offset <= size:
		return nil
	case offset >= size:
		return fmt.Errorf("%w: %s at %d, document length %d", ErrInvalidRange, op, offset, size)
	case length > size-offset:
		return fmt.Errorf("%w: %s %d+%d runs past document length %d", ErrValidation, op, offset, length, size)
	}
	return nil
}

// applyLocked appends a validated change to the log, updates the piece
// tree and refreshes affected viewports. Zero-length changes are no-ops.
func (s *Session) applyLocked(kind ChangeKind, offset, length int64, data []byte) (Result, error) {
	if length == 0 {
		return Result{Length: s.tree.Len()}, nil
	}

	c := &Change{
		Kind:        kind,
		Offset:      offset,
		Length:      length,
		Transaction: s.txn,
		add:         s.add,
		before:      s.tree,
	}

	switch kind {
	case ChangeInsert:
		c.content = piece.Piece{Kind: piece.Added, Offset: s.add.Append(data), Length: length}
		c.after = s.tree.Insert(offset, c.content)
	case ChangeOverwrite:
		c.content = piece.Piece{Kind: piece.Added, Offset: s.add.Append(data), Length: length}
		c.after = s.tree.Overwrite(offset, c.content)
	case ChangeDelete:
		c.after = s.tree.Delete(offset, offset+length)
	}

	s.serial++
	c.Serial = s.serial
	c.NewLength = c.after.Len()

	s.tree = c.after
	s.log = append(s.log, c)
	s.redo = nil

	s.logger.Debug("change applied",
		"session", s.id,
		"serial", c.Serial,
		"kind", c.Kind.String(),
		"offset", c.Offset,
		"length", c.Length,
		"doc_length", c.NewLength,
	)
	s.observer.ChangeApplied(kind, length)

	s.notifyLocked(EventEdit, []*Change{c})
	return Result{Serial: c.Serial, Length: c.NewLength}, nil
}

// ============================================================================
// Transactions
// ============================================================================

// BeginTransaction opens a transaction. Changes applied until
// EndTransaction share its ID and undo and redo as one unit.
func (s *Session) BeginTransaction() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrSessionClosed
	}
	if s.txn != 0 {
		return 0, ErrTransactionActive
	}
	return s.beginTxnLocked(), nil
}

// EndTransaction closes the open transaction and returns its ID.
func (s *Session) EndTransaction() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrSessionClosed
	}
	if s.txn == 0 {
		return 0, ErrNoTransaction
	}
	id := s.txn
	s.txn = 0
	return id, nil
}

// InTransaction reports whether a transaction is open.
func (s *Session) InTransaction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txn != 0
}

func (s *Session) beginTxnLocked() int64 {
	s.nextTxn++
	s.txn = s.nextTxn
	return s.txn
}

// ============================================================================
// Undo / Redo / Clear
// ============================================================================

// Undo reverts the most recent change, or the whole transaction it
// belongs to. The returned serial is that of the earliest reverted change.
// Undo fails with ErrTransactionActive while a transaction is open.
func (s *Session) Undo() (Result, error) {
	return s.mutate(func() (Result, error) {
		if s.txn != 0 {
			return Result{}, ErrTransactionActive
		}
		if len(s.log) == 0 {
			return Result{}, ErrNothingToUndo
		}

		group := takeGroup(&s.log)
		s.tree = group[0].before
		// group is in log order; redo pops from the end, so push reversed.
		for i := len(group) - 1; i >= 0; i-- {
			s.redo = append(s.redo, group[i])
		}

		s.logger.Debug("undo", "session", s.id, "serial", group[0].Serial, "changes", len(group))
		s.notifyLocked(EventUndo, group)
		return Result{Serial: group[0].Serial, Length: s.tree.Len()}, nil
	})
}

// Redo reapplies the most recently undone change or transaction. Like
// Undo it is refused while a transaction is open.
func (s *Session) Redo() (Result, error) {
	return s.mutate(func() (Result, error) {
		if s.txn != 0 {
			return Result{}, ErrTransactionActive
		}
		if len(s.redo) == 0 {
			return Result{}, ErrNothingToRedo
		}

		last := s.redo[len(s.redo)-1]
		var group []*Change
		for len(s.redo) > 0 {
			c := s.redo[len(s.redo)-1]
			if len(group) > 0 && (last.Transaction == 0 || c.Transaction != last.Transaction) {
				break
			}
			group = append(group, c)
			s.redo = s.redo[:len(s.redo)-1]
		}

		s.tree = group[len(group)-1].after
		s.log = append(s.log, group...)

		s.logger.Debug("redo", "session", s.id, "serial", group[0].Serial, "changes", len(group))
		s.notifyLocked(EventEdit, group)
		return Result{Serial: group[len(group)-1].Serial, Length: s.tree.Len()}, nil
	})
}

// Clear drops every change, returning the document to the source bytes.
func (s *Session) Clear() error {
	_, err := s.mutate(func() (Result, error) {
		s.tree = s.base
		s.log = nil
		s.redo = nil
		s.txn = 0

		s.logger.Debug("changes cleared", "session", s.id)
		s.notifyAllLocked(EventClear)
		return Result{Length: s.tree.Len()}, nil
	})
	return err
}

// takeGroup removes and returns the trailing change of log together with
// every preceding change of the same transaction, in log order.
func takeGroup(log *[]*Change) []*Change {
	l := *log
	end := len(l)
	start := end - 1
	if txn := l[start].Transaction; txn != 0 {
		for start > 0 && l[start-1].Transaction == txn {
			start--
		}
	}
	group := append([]*Change(nil), l[start:end]...)
	*log = l[:start]
	return group
}

// ============================================================================
// Change Pausing
// ============================================================================

// PauseChanges makes the session read-only. Every mutation, including
// Undo, Redo and Clear, fails with ErrChangesPaused until ResumeChanges.
// Reads, searches, saves and viewport moves are unaffected.
func (s *Session) PauseChanges() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	s.changesPaused = true
	s.logger.Debug("changes paused", "session", s.id)
	return nil
}

// ResumeChanges lifts a PauseChanges.
func (s *Session) ResumeChanges() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	s.changesPaused = false
	s.logger.Debug("changes resumed", "session", s.id)
	return nil
}

// ChangesPaused reports whether changes are paused.
func (s *Session) ChangesPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changesPaused
}
