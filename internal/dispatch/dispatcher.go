package dispatch

import (
	"context"
	"time"
)

// Handler handles a single notification.
type Handler interface {
	Handle(ctx context.Context, event any) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, event any) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, event any) error {
	return f(ctx, event)
}

// Result describes one handler run.
type Result struct {
	Success  bool
	Error    error // returned by the handler, or describing its panic
	Panicked bool

	// PanicValue is what the handler panicked with.
	PanicValue any

	Duration time.Duration

	// Skipped is set when the context was done before the handler ran.
	Skipped bool
}

// IsSuccess reports whether the handler returned nil without panicking.
func (r Result) IsSuccess() bool {
	return r.Success && !r.Panicked && r.Error == nil
}

// IsError reports whether the handler returned an error.
func (r Result) IsError() bool {
	return r.Error != nil && !r.Panicked
}

// IsPanic reports whether the handler panicked.
func (r Result) IsPanic() bool {
	return r.Panicked
}

// PanicHandler receives the event, the recovered value and the stack of
// a panicking handler.
type PanicHandler func(event any, panicValue any, stack []byte)

// ErrorHandler receives the event and the error a handler returned.
type ErrorHandler func(event any, err error)
