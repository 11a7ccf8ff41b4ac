package session

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dshills/bytestorm/internal/source"
)

// Manager tracks sessions by ID.
//
// Manager is safe for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	// closed indicates the manager has been shut down
	closed atomic.Bool

	// maxSessions limits the number of open sessions (0 = unlimited)
	maxSessions int

	// defaults are applied before per-call options
	defaults []Option
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithMaxSessions sets the maximum number of open sessions.
// A value of 0 (default) means unlimited.
func WithMaxSessions(n int) ManagerOption {
	return func(m *Manager) {
		m.maxSessions = n
	}
}

// WithSessionDefaults sets options applied to every session the manager
// creates.
func WithSessionDefaults(opts ...Option) ManagerOption {
	return func(m *Manager) {
		m.defaults = append(m.defaults, opts...)
	}
}

// NewManager creates an empty session manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{sessions: make(map[string]*Session)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create creates a session over src under a fresh ID.
func (m *Manager) Create(src source.Source, opts ...Option) (*Session, error) {
	return m.add(func(id string) (*Session, error) {
		return New(src, m.options(id, opts)...), nil
	})
}

// Open creates a session over the file at path under a fresh ID.
func (m *Manager) Open(path string, opts ...Option) (*Session, error) {
	return m.add(func(id string) (*Session, error) {
		return Open(path, m.options(id, opts)...)
	})
}

func (m *Manager) options(id string, opts []Option) []Option {
	all := make([]Option, 0, len(m.defaults)+len(opts)+1)
	all = append(all, m.defaults...)
	all = append(all, opts...)
	return append(all, WithID(id))
}

func (m *Manager) add(create func(id string) (*Session, error)) (*Session, error) {
	if err := m.admit(); err != nil {
		return nil, err
	}

	// Opening may read and hash the whole source; do it unlocked.
	s, err := create(uuid.NewString())
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.admitLocked(); err != nil {
		s.Destroy()
		return nil, err
	}
	m.sessions[s.ID()] = s
	return s, nil
}

func (m *Manager) admit() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.admitLocked()
}

func (m *Manager) admitLocked() error {
	if m.closed.Load() {
		return ErrManagerClosed
	}
	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		return fmt.Errorf("%w: %d", ErrSessionLimit, m.maxSessions)
	}
	return nil
}

// Get returns the session with the given ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Destroy destroys the session with the given ID and forgets it.
func (m *Manager) Destroy(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s.Destroy()
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// IDs returns the IDs of the open sessions, sorted.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Close destroys every session. Later calls to Create and Open fail with
// ErrManagerClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed.Swap(true) {
		m.mu.Unlock()
		return nil
	}
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", s.ID(), err))
		}
	}
	return errors.Join(errs...)
}
