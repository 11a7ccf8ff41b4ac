package source

import "errors"

// Errors returned by sources.
var (
	// ErrClosed indicates a read from a closed source.
	ErrClosed = errors.New("source is closed")

	// ErrOutOfRange indicates a negative read offset.
	ErrOutOfRange = errors.New("source offset out of range")
)
