package session

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dshills/bytestorm/internal/dispatch"
	"github.com/dshills/bytestorm/internal/piece"
	"github.com/dshills/bytestorm/internal/source"
)

// Session is an editing context over one document: an immutable byte
// source plus an ordered log of changes layered on top of it.
//
// A session is designed for a single writer. Reads are safe from any
// goroutine and mutations are serialized by the session lock. Viewport
// callbacks run after that lock is released, and until they finish every
// mutation fails with ErrReentrant, whether it is issued from inside a
// callback or from another goroutine. Concurrent writers must coordinate
// among themselves and retry.
type Session struct {
	mu sync.Mutex

	id     string
	src    source.Source
	path   string
	add    *addBuffer
	base   piece.Tree // document as loaded
	tree   piece.Tree // document now
	log    []*Change
	redo   []*Change
	serial int64

	// Transactions
	txn     int64
	nextTxn int64

	// Viewports
	viewports    map[ViewportID]*viewportState
	nextViewport ViewportID
	paused       bool
	pending      []notification
	dispatching  bool

	// Source change detection
	fingerprint    uint64
	hasFingerprint bool
	sourceChanged  atomic.Bool

	changesPaused bool
	closed        bool

	dispatcher  *dispatch.SyncDispatcher
	logger      *slog.Logger
	observer    Observer
	chunkSize   int
	maxViewport int64
}

// New creates a session over src. A nil src gives an empty document.
// The session takes ownership of src and closes it on Destroy.
func New(src source.Source, opts ...Option) *Session {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return newSession(src, "", o)
}

// NewFromBytes creates a session over a copy of data.
func NewFromBytes(data []byte, opts ...Option) *Session {
	return New(source.NewMemory(data), opts...)
}

// Open creates a session over the file at path. The file is read on demand
// (or memory-mapped with WithMmap); it is never loaded whole.
func Open(path string, opts ...Option) (*Session, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	var (
		src source.Source
		err error
	)
	if o.mmap {
		src, err = source.OpenMmap(path)
	} else {
		src, err = source.OpenFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrIO, path, err)
	}

	s := newSession(src, path, o)
	if o.fingerprint {
		fp, err := source.Fingerprint(src)
		if err != nil {
			src.Close()
			return nil, fmt.Errorf("%w: fingerprint %s: %v", ErrIO, path, err)
		}
		s.fingerprint = fp
		s.hasFingerprint = true
	}

	s.logger.Debug("session opened", "session", s.id, "path", path, "size", src.Len())
	return s, nil
}

func newSession(src source.Source, path string, o options) *Session {
	if src == nil {
		src = source.Empty()
	}
	id := o.id
	if id == "" {
		id = uuid.NewString()
	}
	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	observer := o.observer
	if observer == nil {
		observer = nopObserver{}
	}

	base := piece.FromPiece(piece.Piece{Kind: piece.Original, Length: src.Len()})
	s := &Session{
		id:          id,
		src:         src,
		path:        path,
		add:         &addBuffer{},
		base:        base,
		tree:        base,
		viewports:   make(map[ViewportID]*viewportState),
		logger:      logger,
		observer:    observer,
		chunkSize:   o.chunkSize,
		maxViewport: o.maxViewport,
	}
	s.dispatcher = dispatch.NewSyncDispatcher(
		dispatch.WithPanicHandler(s.onCallbackPanic),
		dispatch.WithErrorHandler(s.onCallbackError),
	)
	return s
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

// Path returns the path the session was opened from, or "" for sessions
// over in-memory sources.
func (s *Session) Path() string {
	return s.path
}

// Destroy releases the session's resources and invalidates all of its
// viewports. It is idempotent.
func (s *Session) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.viewports = nil
	s.pending = nil
	s.log = nil
	s.redo = nil
	s.tree = piece.New()
	s.base = s.tree
	s.add.reset()

	err := s.src.Close()
	s.logger.Debug("session destroyed", "session", s.id)
	if err != nil {
		return fmt.Errorf("%w: close source: %v", ErrIO, err)
	}
	return nil
}

// IsClosed returns true once the session has been destroyed.
func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ============================================================================
// Read Operations
// ============================================================================

// Len returns the current logical document length.
func (s *Session) Len() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrSessionClosed
	}
	return s.tree.Len(), nil
}

// Segment returns a copy of the logical bytes [offset, offset+length),
// truncated at end-of-document.
func (s *Session) Segment(offset, length int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}
	if offset < 0 || length < 0 || offset > s.tree.Len() {
		return nil, fmt.Errorf("%w: segment %d+%d of %d", ErrInvalidRange, offset, length, s.tree.Len())
	}
	return s.materializeLocked(offset, length)
}

// ReadAt implements io.ReaderAt over the current logical content.
func (s *Session) ReadAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrSessionClosed
	}
	return s.tree.ReadAt(p, off, s.fetcher())
}

// NewReader returns a reader over a snapshot of the current content.
// Later edits do not affect the reader.
func (s *Session) NewReader() (*io.SectionReader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}
	snap := snapshot{tree: s.tree, fetch: s.fetcher()}
	return io.NewSectionReader(snap, 0, s.tree.Len()), nil
}

// Changes returns the applied changes in order.
func (s *Session) Changes() ([]Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}
	out := make([]Change, len(s.log))
	for i, c := range s.log {
		out[i] = *c
	}
	return out, nil
}

// LastChange returns the most recently applied change.
// ok is false when the log is empty.
func (s *Session) LastChange() (c Change, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Change{}, false, ErrSessionClosed
	}
	if len(s.log) == 0 {
		return Change{}, false, nil
	}
	return *s.log[len(s.log)-1], true, nil
}

// materializeLocked reads [offset, offset+length) clamped to the document.
func (s *Session) materializeLocked(offset, length int64) ([]byte, error) {
	n := min(length, s.tree.Len()-offset)
	if n <= 0 {
		return []byte{}, nil
	}
	buf := make([]byte, n)
	if _, err := s.tree.ReadAt(buf, offset, s.fetcher()); err != nil {
		return nil, fmt.Errorf("%w: read %d+%d: %v", ErrIO, offset, n, err)
	}
	return buf, nil
}

// fetcher resolves pieces against the session's stores.
func (s *Session) fetcher() piece.Fetcher {
	src, add := s.src, s.add
	return piece.FetcherFunc(func(kind piece.Kind, p []byte, off int64) error {
		if kind == piece.Added {
			return add.Fetch(p, off)
		}
		n, err := src.ReadAt(p, off)
		if n == len(p) {
			return nil
		}
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return err
	})
}

// snapshot is an io.ReaderAt over a fixed tree.
type snapshot struct {
	tree  piece.Tree
	fetch piece.Fetcher
}

func (r snapshot) ReadAt(p []byte, off int64) (int, error) {
	return r.tree.ReadAt(p, off, r.fetch)
}
