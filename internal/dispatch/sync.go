package dispatch

import (
	"context"
	"sync/atomic"
	"time"
)

// SyncDispatcher executes handlers synchronously in the caller's goroutine.
type SyncDispatcher struct {
	executor *Executor

	// Stats
	dispatched  atomic.Uint64
	succeeded   atomic.Uint64
	failed      atomic.Uint64
	panicked    atomic.Uint64
	skipped     atomic.Uint64
	totalTimeNs atomic.Int64
}

// SyncOption configures a SyncDispatcher.
type SyncOption func(*syncConfig)

type syncConfig struct {
	execOpts []ExecutorOption
}

// WithPanicHandler sets the panic handler for the dispatcher.
func WithPanicHandler(h PanicHandler) SyncOption {
	return func(c *syncConfig) {
		c.execOpts = append(c.execOpts, WithExecutorPanicHandler(h))
	}
}

// WithErrorHandler sets the error handler for the dispatcher.
func WithErrorHandler(h ErrorHandler) SyncOption {
	return func(c *syncConfig) {
		c.execOpts = append(c.execOpts, WithExecutorErrorHandler(h))
	}
}

// NewSyncDispatcher creates a new synchronous dispatcher.
func NewSyncDispatcher(opts ...SyncOption) *SyncDispatcher {
	var cfg syncConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return &SyncDispatcher{executor: NewExecutor(cfg.execOpts...)}
}

// Dispatch executes a handler synchronously with the given event.
func (d *SyncDispatcher) Dispatch(ctx context.Context, event any, handler Handler) Result {
	d.dispatched.Add(1)

	result := d.executor.Execute(ctx, event, handler)
	d.totalTimeNs.Add(result.Duration.Nanoseconds())

	switch {
	case result.Skipped:
		d.skipped.Add(1)
	case result.Panicked:
		d.panicked.Add(1)
	case result.Error != nil:
		d.failed.Add(1)
	default:
		d.succeeded.Add(1)
	}

	return result
}

// Stats returns dispatch statistics.
func (d *SyncDispatcher) Stats() Stats {
	dispatched := d.dispatched.Load()
	totalNs := d.totalTimeNs.Load()

	var avgNs int64
	if dispatched > 0 {
		avgNs = totalNs / int64(dispatched)
	}

	return Stats{
		Dispatched:    dispatched,
		Succeeded:     d.succeeded.Load(),
		Failed:        d.failed.Load(),
		Panicked:      d.panicked.Load(),
		Skipped:       d.skipped.Load(),
		TotalDuration: time.Duration(totalNs),
		AvgDuration:   time.Duration(avgNs),
	}
}

// Stats contains statistics for a dispatcher.
type Stats struct {
	Dispatched    uint64
	Succeeded     uint64
	Failed        uint64
	Panicked      uint64
	Skipped       uint64
	TotalDuration time.Duration
	AvgDuration   time.Duration
}
