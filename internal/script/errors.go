package script

import "errors"

var (
	// ErrClosed is returned when running a script on a closed Runner.
	ErrClosed = errors.New("script runner is closed")

	// ErrTimeout is returned when a script exceeds its time limit.
	ErrTimeout = errors.New("script timed out")
)
