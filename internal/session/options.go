package session

import (
	"log/slog"
)

// Default configuration values.
const (
	DefaultChunkSize           = 64 * 1024
	DefaultMaxViewportCapacity = 1024 * 1024
)

// Option configures a Session during creation.
type Option func(*options)

type options struct {
	id          string
	logger      *slog.Logger
	observer    Observer
	chunkSize   int
	maxViewport int64
	fingerprint bool
	mmap        bool
}

func defaultOptions() options {
	return options{
		chunkSize:   DefaultChunkSize,
		maxViewport: DefaultMaxViewportCapacity,
	}
}

// WithID sets the session ID. A random UUID is used otherwise.
func WithID(id string) Option {
	return func(o *options) {
		o.id = id
	}
}

// WithLogger sets the structured logger. Sessions log nothing by default.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver sets an observer notified of session activity.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// WithChunkSize sets the chunk size used when streaming content for save,
// search and profiling.
func WithChunkSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithMaxViewportCapacity sets the largest capacity a viewport may request.
func WithMaxViewportCapacity(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxViewport = n
		}
	}
}

// WithFingerprint makes Open hash the source file so that saving over it
// can detect modifications made by other processes.
func WithFingerprint() Option {
	return func(o *options) {
		o.fingerprint = true
	}
}

// WithMmap makes Open memory-map the source file instead of reading it
// on demand.
func WithMmap() Option {
	return func(o *options) {
		o.mmap = true
	}
}
