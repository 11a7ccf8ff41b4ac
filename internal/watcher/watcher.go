// Package watcher detects changes made by other processes to the files
// that open sessions were created from.
//
// Files are watched through their parent directory so that replacements
// by rename, which many tools use for atomic saves, are seen. Bursts of
// events for one file are coalesced before its targets are verified.
package watcher

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Common errors returned by watcher operations.
var (
	ErrWatcherClosed = errors.New("watcher is closed")
	ErrNotWatching   = errors.New("path is not being watched")
	ErrPathNotExist  = errors.New("path does not exist")
)

// DefaultDebounce is the default event coalescing delay.
const DefaultDebounce = 100 * time.Millisecond

// Target is notified when its file may have changed. A session
// satisfies Target.
type Target interface {
	// VerifySource re-checks the file and reports whether it changed.
	VerifySource() (bool, error)
}

// ChangeFunc is called after the targets of path were verified.
type ChangeFunc func(path string, changed bool)

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the delay used to coalesce bursts of events.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithOnChange sets a function called after every verification.
func WithOnChange(fn ChangeFunc) Option {
	return func(w *Watcher) {
		w.onChange = fn
	}
}

// Watcher watches source files on behalf of sessions.
type Watcher struct {
	mu sync.Mutex

	// fsnotify watcher
	fsw *fsnotify.Watcher

	// Watched files and their targets
	files map[string][]Target

	// Watched directories, with the number of files in each
	dirs map[string]int

	// Debounce timers by file
	pending map[string]*time.Timer

	debounce time.Duration
	logger   *slog.Logger
	onChange ChangeFunc

	// Stats
	events   atomic.Int64
	verified atomic.Int64

	// Lifecycle
	closed   bool
	closeCh  chan struct{}
	closedWg sync.WaitGroup
}

// New creates a watcher and starts its event loop.
func New(opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	w := &Watcher{
		fsw:      fsw,
		files:    make(map[string][]Target),
		dirs:     make(map[string]int),
		pending:  make(map[string]*time.Timer),
		debounce: DefaultDebounce,
		logger:   slog.New(slog.DiscardHandler),
		closeCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.closedWg.Add(1)
	go w.processLoop()
	return w, nil
}

// Add starts verifying t whenever the file at path changes.
func (w *Watcher) Add(path string, t Target) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrPathNotExist
		}
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}

	if _, watched := w.files[abs]; !watched {
		dir := filepath.Dir(abs)
		if w.dirs[dir] == 0 {
			if err := w.fsw.Add(dir); err != nil {
				return fmt.Errorf("watching %s: %w", dir, err)
			}
		}
		w.dirs[dir]++
	}
	w.files[abs] = append(w.files[abs], t)

	w.logger.Debug("watching source", "path", abs)
	return nil
}

// Remove stops verifying t for the file at path.
func (w *Watcher) Remove(path string, t Target) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}

	targets := w.files[abs]
	i := slices.Index(targets, t)
	if i < 0 {
		return ErrNotWatching
	}
	targets = slices.Delete(targets, i, i+1)
	if len(targets) > 0 {
		w.files[abs] = targets
		return nil
	}

	delete(w.files, abs)
	if timer, ok := w.pending[abs]; ok {
		timer.Stop()
		delete(w.pending, abs)
	}
	dir := filepath.Dir(abs)
	w.dirs[dir]--
	if w.dirs[dir] == 0 {
		delete(w.dirs, dir)
		if err := w.fsw.Remove(dir); err != nil {
			return fmt.Errorf("unwatching %s: %w", dir, err)
		}
	}
	return nil
}

// IsWatching returns true if the file at path is being watched.
func (w *Watcher) IsWatching(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.files[abs]
	return ok
}

// Stats reports the number of relevant events seen and verifications run.
func (w *Watcher) Stats() (events, verified int64) {
	return w.events.Load(), w.verified.Load()
}

// Close stops the watcher. Pending verifications are dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	w.closedWg.Wait()
	return w.fsw.Close()
}

func (w *Watcher) processLoop() {
	defer w.closedWg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

// relevantOps are the operations that can change a file's content.
const relevantOps = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if ev.Op&relevantOps == 0 {
		return
	}
	path := filepath.Clean(ev.Name)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if _, ok := w.files[path]; !ok {
		return
	}
	w.events.Add(1)

	if timer, ok := w.pending[path]; ok {
		timer.Reset(w.debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.verify(path)
	})
}

// verify checks every target of path.
func (w *Watcher) verify(path string) {
	w.mu.Lock()
	delete(w.pending, path)
	if w.closed {
		w.mu.Unlock()
		return
	}
	targets := slices.Clone(w.files[path])
	w.mu.Unlock()

	anyChanged := false
	for _, t := range targets {
		changed, err := t.VerifySource()
		if err != nil {
			w.logger.Warn("verifying source failed", "path", path, "error", err)
			continue
		}
		anyChanged = anyChanged || changed
	}
	w.verified.Add(1)

	if anyChanged {
		w.logger.Info("source changed on disk", "path", path)
	}
	if w.onChange != nil {
		w.onChange(path, anyChanged)
	}
}
