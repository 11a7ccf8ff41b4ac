package session

import (
	"context"
	"fmt"

	"github.com/dshills/bytestorm/internal/dispatch"
)

// notification is a viewport callback waiting to run.
type notification struct {
	vp *Viewport
	ev ViewportEvent
	cb ViewportCallback
}

func (n notification) id() ViewportID {
	if n.vp == nil {
		return 0
	}
	return n.vp.id
}

// notifyLocked refreshes the viewports affected by changes and queues
// their callbacks. While events are paused affected viewports are marked
// dirty instead.
func (s *Session) notifyLocked(kind EventKind, changes []*Change) {
	if len(changes) == 0 || len(s.viewports) == 0 {
		return
	}
	last := *changes[len(changes)-1]

	for _, id := range s.viewportIDsLocked() {
		st := s.viewports[id]
		if !affectedBy(st, changes) {
			continue
		}
		if s.paused {
			st.dirty = true
			continue
		}
		if s.refreshLocked(st) {
			s.queueLocked(st, ViewportEvent{Kind: kind, Change: &last})
		}
	}
}

// notifyAllLocked refreshes every viewport, or marks all of them dirty
// while events are paused.
func (s *Session) notifyAllLocked(kind EventKind) {
	for _, id := range s.viewportIDsLocked() {
		st := s.viewports[id]
		if s.paused {
			st.dirty = true
			continue
		}
		if s.refreshLocked(st) {
			s.queueLocked(st, ViewportEvent{Kind: kind})
		}
	}
}

func affectedBy(st *viewportState, changes []*Change) bool {
	for _, c := range changes {
		if c.Affects(st.offset, st.capacity) {
			return true
		}
	}
	return false
}

// refreshLocked re-materializes a viewport's cache. On a read failure the
// old cache is kept and the viewport is left dirty.
func (s *Session) refreshLocked(st *viewportState) bool {
	data, err := s.materializeLocked(st.offset, st.capacity)
	if err != nil {
		st.dirty = true
		s.logger.Error("viewport refresh failed", "session", s.id, "viewport", st.id, "error", err)
		return false
	}
	st.data = data
	st.dirty = false
	return true
}

func (s *Session) queueLocked(st *viewportState, ev ViewportEvent) {
	if st.cb == nil {
		return
	}
	s.pending = append(s.pending, notification{
		vp: &Viewport{id: st.id, s: s},
		ev: ev,
		cb: st.cb,
	})
}

// takePendingLocked hands the queued callbacks to the caller and marks the
// session as dispatching until drain completes.
func (s *Session) takePendingLocked() []notification {
	pending := s.pending
	s.pending = nil
	if len(pending) > 0 {
		s.dispatching = true
	}
	return pending
}

// drain runs queued callbacks outside the session lock. A failing
// callback is isolated from the others and from the session.
func (s *Session) drain(pending []notification) {
	if len(pending) == 0 {
		return
	}
	defer func() {
		s.mu.Lock()
		s.dispatching = false
		s.mu.Unlock()
	}()

	ctx := context.Background()
	for _, n := range pending {
		s.dispatcher.Dispatch(ctx, n, callbackHandler)
	}
	s.observer.ViewportsNotified(len(pending))
}

var callbackHandler = dispatch.HandlerFunc(func(_ context.Context, event any) error {
	n := event.(notification)
	n.cb(n.vp, n.ev)
	return nil
})

func (s *Session) onCallbackPanic(event any, value any, stack []byte) {
	n, _ := event.(notification)
	s.logger.Error("viewport callback panicked",
		"session", s.id,
		"viewport", n.id(),
		"event", n.ev.Kind.String(),
		"panic", fmt.Sprint(value),
		"stack", string(stack),
	)
	s.observer.CallbackFailed()
}

func (s *Session) onCallbackError(event any, err error) {
	n, _ := event.(notification)
	s.logger.Error("viewport callback failed",
		"session", s.id,
		"viewport", n.id(),
		"error", err,
	)
	s.observer.CallbackFailed()
}
