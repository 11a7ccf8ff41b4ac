package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
)

// Executor runs handlers with panic recovery and timing.
type Executor struct {
	panicHandler PanicHandler
	errorHandler ErrorHandler
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorPanicHandler sets the panic handler for the executor.
func WithExecutorPanicHandler(h PanicHandler) ExecutorOption {
	return func(e *Executor) {
		e.panicHandler = h
	}
}

// WithExecutorErrorHandler sets the error handler for the executor.
func WithExecutorErrorHandler(h ErrorHandler) ExecutorOption {
	return func(e *Executor) {
		e.errorHandler = h
	}
}

// NewExecutor creates a new executor with the given options.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs a handler with the given event and returns the result.
// Panics are recovered and reported; they never propagate to the caller.
func (e *Executor) Execute(ctx context.Context, event any, handler Handler) (result Result) {
	select {
	case <-ctx.Done():
		return Result{Error: ctx.Err(), Skipped: true}
	default:
	}

	start := time.Now()

	defer func() {
		result.Duration = time.Since(start)

		if r := recover(); r != nil {
			stack := debug.Stack()

			result.Success = false
			result.Panicked = true
			result.PanicValue = r
			result.Error = fmt.Errorf("handler panicked: %v", r)

			if e.panicHandler != nil {
				func() {
					// A panicking panic handler must not escape either.
					defer func() { _ = recover() }()
					e.panicHandler(event, r, stack)
				}()
			}
		}
	}()

	if err := handler.Handle(ctx, event); err != nil {
		result.Error = err
		if e.errorHandler != nil {
			func() {
				defer func() { _ = recover() }()
				e.errorHandler(event, err)
			}()
		}
		return result
	}

	result.Success = true
	return result
}
