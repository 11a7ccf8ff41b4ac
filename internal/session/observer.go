package session

import "time"

// Observer receives notifications about session activity.
// Implementations must be safe for concurrent use and must not call back
// into the session.
type Observer interface {
	// ChangeApplied is called after a change is appended to the log.
	ChangeApplied(kind ChangeKind, length int64)

	// ViewportsNotified is called with the number of viewport callbacks
	// run after a mutation.
	ViewportsNotified(n int)

	// CallbackFailed is called when a viewport callback panics or errors.
	CallbackFailed()

	// Saved is called when a save completes or fails.
	Saved(bytes int64, elapsed time.Duration, err error)
}

// nopObserver discards all notifications.
type nopObserver struct{}

func (nopObserver) ChangeApplied(ChangeKind, int64)   {}
func (nopObserver) ViewportsNotified(int)             {}
func (nopObserver) CallbackFailed()                   {}
func (nopObserver) Saved(int64, time.Duration, error) {}
