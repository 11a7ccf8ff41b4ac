package session

import "errors"

// Errors returned by session operations.
var (
	// ErrInvalidRange indicates an offset or length outside valid bounds.
	ErrInvalidRange = errors.New("invalid range")

	// ErrValidation indicates a well-formed request the document cannot
	// satisfy, such as an overwrite or delete running past end-of-document.
	ErrValidation = errors.New("validation failed")

	// ErrIO indicates the byte source or a save destination could not be
	// read or written.
	ErrIO = errors.New("i/o error")

	// ErrSessionClosed indicates an operation on a destroyed session or on
	// one of its orphaned viewports.
	ErrSessionClosed = errors.New("session destroyed")

	// ErrViewportClosed indicates an operation on an unregistered viewport.
	ErrViewportClosed = errors.New("viewport unregistered")

	// ErrNothingToUndo indicates the change log is empty.
	ErrNothingToUndo = errors.New("nothing to undo")

	// ErrNothingToRedo indicates there is no undone change to reapply.
	ErrNothingToRedo = errors.New("nothing to redo")

	// ErrTransactionActive indicates a transaction is already open.
	ErrTransactionActive = errors.New("transaction already active")

	// ErrNoTransaction indicates EndTransaction without BeginTransaction.
	ErrNoTransaction = errors.New("no active transaction")

	// ErrReentrant indicates a mutation issued while viewport callbacks
	// were being dispatched, typically from inside a callback.
	ErrReentrant = errors.New("session mutated during viewport dispatch")

	// ErrChangesPaused indicates a mutation on a session whose changes
	// are paused.
	ErrChangesPaused = errors.New("session changes paused")

	// ErrSourceModified indicates the file a session was opened from was
	// changed by another process.
	ErrSourceModified = errors.New("source file modified externally")

	// ErrSessionNotFound indicates an unknown session ID.
	ErrSessionNotFound = errors.New("session not found")

	// ErrManagerClosed indicates an operation on a closed Manager.
	ErrManagerClosed = errors.New("session manager closed")

	// ErrSessionLimit indicates a Manager already holds its maximum
	// number of sessions.
	ErrSessionLimit = errors.New("session limit reached")
)
