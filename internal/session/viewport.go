package session

import (
	"fmt"
	"maps"
	"slices"
)

// ViewportID identifies a viewport within its session.
type ViewportID int64

// EventKind describes why a viewport callback fired.
type EventKind uint8

const (
	// EventEdit indicates an insert, overwrite, delete or redo.
	EventEdit EventKind = iota + 1

	// EventUndo indicates an undone change.
	EventUndo

	// EventClear indicates the change log was cleared.
	EventClear

	// EventModify indicates the viewport was moved or resized.
	EventModify

	// EventChanges indicates a refresh requested by NotifyChangedViewports.
	EventChanges
)

// String returns a human-readable representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventEdit:
		return "edit"
	case EventUndo:
		return "undo"
	case EventClear:
		return "clear"
	case EventModify:
		return "modify"
	case EventChanges:
		return "changes"
	default:
		return "unknown"
	}
}

// ViewportEvent describes a viewport refresh.
type ViewportEvent struct {
	Kind EventKind

	// Change is the change that triggered the refresh. It is nil for
	// EventClear, EventModify and EventChanges. For a transaction undone
	// or redone at once, it is the last change of the group.
	Change *Change
}

// ViewportCallback is invoked after a viewport's cache was refreshed.
// Callbacks run synchronously once the triggering operation has released
// the session; they may read the session but must not mutate it.
type ViewportCallback func(vp *Viewport, ev ViewportEvent)

// ViewportInfo is a point-in-time description of a viewport.
type ViewportInfo struct {
	ID       ViewportID
	Offset   int64
	Capacity int64
	Length   int64 // cached bytes, at most Capacity
	Dirty    bool
}

// viewportState is the registry entry behind a Viewport handle.
type viewportState struct {
	id       ViewportID
	offset   int64
	capacity int64
	data     []byte
	cb       ViewportCallback
	dirty    bool
}

func (st *viewportState) info() ViewportInfo {
	return ViewportInfo{
		ID:       st.id,
		Offset:   st.offset,
		Capacity: st.capacity,
		Length:   int64(len(st.data)),
		Dirty:    st.dirty,
	}
}

// Viewport is a checked handle to a window over a session's content.
// Every method fails with ErrSessionClosed once the session is destroyed
// and with ErrViewportClosed once the viewport is unregistered.
type Viewport struct {
	id ViewportID
	s  *Session
}

// ============================================================================
// Session side
// ============================================================================

// Register creates a viewport over [offset, offset+capacity) and
// materializes it immediately. cb may be nil.
func (s *Session) Register(offset, capacity int64, cb ViewportCallback) (*Viewport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}
	if err := s.checkWindow(offset, capacity); err != nil {
		return nil, err
	}

	data, err := s.materializeLocked(offset, capacity)
	if err != nil {
		return nil, err
	}

	s.nextViewport++
	st := &viewportState{
		id:       s.nextViewport,
		offset:   offset,
		capacity: capacity,
		data:     data,
		cb:       cb,
	}
	s.viewports[st.id] = st

	s.logger.Debug("viewport registered", "session", s.id, "viewport", st.id, "offset", offset, "capacity", capacity)
	return &Viewport{id: st.id, s: s}, nil
}

// Unregister removes a viewport. It has no effect on the change log.
func (s *Session) Unregister(id ViewportID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if _, ok := s.viewports[id]; !ok {
		return ErrViewportClosed
	}
	delete(s.viewports, id)
	s.logger.Debug("viewport unregistered", "session", s.id, "viewport", id)
	return nil
}

// Viewports returns the registered viewports ordered by ID.
func (s *Session) Viewports() ([]ViewportInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}
	out := make([]ViewportInfo, 0, len(s.viewports))
	for _, id := range s.viewportIDsLocked() {
		out = append(out, s.viewports[id].info())
	}
	return out, nil
}

// PauseViewportEvents stops viewport refreshes. Viewports affected by
// changes made while paused are marked dirty instead.
func (s *Session) PauseViewportEvents() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	s.paused = true
	return nil
}

// ResumeViewportEvents re-enables viewport refreshes. Dirty viewports stay
// dirty until NotifyChangedViewports is called or a later change refreshes
// them.
func (s *Session) ResumeViewportEvents() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	s.paused = false
	return nil
}

// ViewportEventsPaused reports whether viewport events are paused.
func (s *Session) ViewportEventsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// NotifyChangedViewports refreshes every dirty viewport, fires
// EventChanges on each and returns how many were refreshed.
func (s *Session) NotifyChangedViewports() (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrSessionClosed
	}
	if s.dispatching {
		s.mu.Unlock()
		return 0, ErrReentrant
	}

	n := 0
	for _, id := range s.viewportIDsLocked() {
		st := s.viewports[id]
		if !st.dirty {
			continue
		}
		if s.refreshLocked(st) {
			s.queueLocked(st, ViewportEvent{Kind: EventChanges})
			n++
		}
	}
	pending := s.takePendingLocked()
	s.mu.Unlock()

	s.drain(pending)
	return n, nil
}

// checkWindow validates a viewport window.
func (s *Session) checkWindow(offset, capacity int64) error {
	if offset < 0 || capacity < 0 {
		return fmt.Errorf("%w: viewport %d+%d", ErrInvalidRange, offset, capacity)
	}
	if capacity > s.maxViewport {
		return fmt.Errorf("%w: viewport capacity %d exceeds %d", ErrValidation, capacity, s.maxViewport)
	}
	return nil
}

func (s *Session) viewportIDsLocked() []ViewportID {
	return slices.Sorted(maps.Keys(s.viewports))
}

// ============================================================================
// Viewport handle
// ============================================================================

// ID returns the viewport's ID.
func (v *Viewport) ID() ViewportID {
	return v.id
}

// Session returns the owning session.
func (v *Viewport) Session() *Session {
	return v.s
}

// Data returns a copy of the cached bytes. It never recomputes them.
func (v *Viewport) Data() ([]byte, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	st, err := v.stateLocked()
	if err != nil {
		return nil, err
	}
	return slices.Clone(st.data), nil
}

// Info returns the viewport's window and cache length.
func (v *Viewport) Info() (ViewportInfo, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	st, err := v.stateLocked()
	if err != nil {
		return ViewportInfo{}, err
	}
	return st.info(), nil
}

// HasChanges reports whether the cache is stale because changes were
// made while viewport events were paused.
func (v *Viewport) HasChanges() (bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	st, err := v.stateLocked()
	if err != nil {
		return false, err
	}
	return st.dirty, nil
}

// Modify moves the viewport to [offset, offset+capacity), re-materializes
// it and fires EventModify.
func (v *Viewport) Modify(offset, capacity int64) error {
	s := v.s
	s.mu.Lock()

	st, err := v.stateLocked()
	if err == nil && s.dispatching {
		err = ErrReentrant
	}
	if err == nil {
		err = s.checkWindow(offset, capacity)
	}
	if err != nil {
		s.mu.Unlock()
		return err
	}

	data, err := s.materializeLocked(offset, capacity)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	st.offset, st.capacity, st.data, st.dirty = offset, capacity, data, false
	s.queueLocked(st, ViewportEvent{Kind: EventModify})
	pending := s.takePendingLocked()
	s.mu.Unlock()

	s.drain(pending)
	return nil
}

// Unregister removes the viewport from its session.
func (v *Viewport) Unregister() error {
	return v.s.Unregister(v.id)
}

func (v *Viewport) stateLocked() (*viewportState, error) {
	if v.s.closed {
		return nil, ErrSessionClosed
	}
	st, ok := v.s.viewports[v.id]
	if !ok {
		return nil, ErrViewportClosed
	}
	return st, nil
}
