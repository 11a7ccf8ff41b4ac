// Package dispatch delivers change notifications to viewport callbacks.
//
// Callbacks are owned by host code and may misbehave. The dispatcher runs
// each one synchronously in the caller's goroutine, recovers panics and
// records the outcome, so that a failing callback can never corrupt the
// session that triggered it or prevent other callbacks from running.
//
// # Usage
//
//	d := dispatch.NewSyncDispatcher(
//	    dispatch.WithPanicHandler(func(event any, v any, stack []byte) {
//	        logger.Error("viewport callback panicked", "panic", v)
//	    }),
//	)
//	result := d.Dispatch(ctx, event, dispatch.HandlerFunc(fn))
//	if result.IsPanic() {
//	    // already reported through the panic handler
//	}
package dispatch
