package session

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// recorder collects viewport callbacks.
type recorder struct {
	events []ViewportEvent
	data   []string
}

func (r *recorder) callback(vp *Viewport, ev ViewportEvent) {
	r.events = append(r.events, ev)
	data, err := vp.Data()
	if err != nil {
		r.data = append(r.data, "error: "+err.Error())
		return
	}
	r.data = append(r.data, string(data))
}

func (r *recorder) last() string {
	if len(r.data) == 0 {
		return ""
	}
	return r.data[len(r.data)-1]
}

// countingObserver counts observer notifications.
type countingObserver struct {
	changes   int
	notified  int
	failures  int
	saves     int
	saveErrs  int
	lastBytes int64
}

func (o *countingObserver) ChangeApplied(ChangeKind, int64) { o.changes++ }
func (o *countingObserver) ViewportsNotified(n int)         { o.notified += n }
func (o *countingObserver) CallbackFailed()                 { o.failures++ }
func (o *countingObserver) Saved(n int64, _ time.Duration, err error) {
	o.saves++
	o.lastBytes = n
	if err != nil {
		o.saveErrs++
	}
}

func viewportData(t *testing.T, vp *Viewport) string {
	t.Helper()
	data, err := vp.Data()
	if err != nil {
		t.Fatalf("Data: %v", err)
	}
	return string(data)
}

// ============================================================================
// Registration
// ============================================================================

func TestRegisterMaterializesEagerly(t *testing.T) {
	s := NewFromBytes([]byte("Hello World"))
	defer s.Destroy()

	vp, err := s.Register(6, 100, nil)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if got := viewportData(t, vp); got != "World" {
		t.Errorf("expected %q, got %q", "World", got)
	}

	info, _ := vp.Info()
	if info.Offset != 6 || info.Capacity != 100 || info.Length != 5 {
		t.Errorf("unexpected info %+v", info)
	}
}

func TestRegisterPastEnd(t *testing.T) {
	s := NewFromBytes([]byte("abc"))
	defer s.Destroy()

	vp, err := s.Register(10, 4, nil)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if got := viewportData(t, vp); got != "" {
		t.Errorf("expected empty viewport, got %q", got)
	}

	// Growing the document into the window fills it.
	s.Insert(3, []byte("defghijklmn"))
	if got := viewportData(t, vp); got != "klmn" {
		t.Errorf("expected %q, got %q", "klmn", got)
	}
}

func TestRegisterValidation(t *testing.T) {
	s := NewFromBytes([]byte("abc"), WithMaxViewportCapacity(16))
	defer s.Destroy()

	tests := []struct {
		name     string
		offset   int64
		capacity int64
		want     error
	}{
		{"negative offset", -1, 4, ErrInvalidRange},
		{"negative capacity", 0, -4, ErrInvalidRange},
		{"too large", 0, 17, ErrValidation},
		{"zero capacity", 0, 0, nil},
		{"max capacity", 0, 16, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Register(tt.offset, tt.capacity, nil)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

// ============================================================================
// Notification
// ============================================================================

func TestWorkedScenario(t *testing.T) {
	tests := []struct {
		name     string
		initial  string
		afterOne string
	}{
		{"unchanged overwrite", "Hello World!!!!", "Hello World!!!!"},
		{"effective overwrite", "Hello Weird!!!!", "Hello World!!!!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewFromBytes([]byte(tt.initial))
			defer s.Destroy()

			var rec recorder
			vp, err := s.Register(0, 100, rec.callback)
			if err != nil {
				t.Fatal(err)
			}

			if _, err := s.Overwrite(7, []byte("orl")); err != nil {
				t.Fatalf("Overwrite: %v", err)
			}
			if rec.last() != tt.afterOne {
				t.Errorf("after overwrite expected %q, got %q", tt.afterOne, rec.last())
			}

			res, err := s.Delete(11, 3)
			if err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if res.Length != 12 {
				t.Errorf("expected length 12, got %d", res.Length)
			}

			if len(rec.events) != 2 {
				t.Fatalf("expected 2 callbacks, got %d", len(rec.events))
			}
			ev := rec.events[1]
			if ev.Kind != EventEdit || ev.Change == nil || ev.Change.Kind != ChangeDelete {
				t.Errorf("unexpected event %+v", ev)
			}
			if rec.last() != "Hello World!" {
				t.Errorf("expected %q, got %q", "Hello World!", rec.last())
			}
			info, _ := vp.Info()
			if info.Length != 12 {
				t.Errorf("expected viewport length 12, got %d", info.Length)
			}
		})
	}
}

func TestReadIdempotence(t *testing.T) {
	s := NewFromBytes([]byte("0123456789"))
	defer s.Destroy()

	vp, _ := s.Register(2, 4, nil)
	first := viewportData(t, vp)
	s.Overwrite(8, []byte("x")) // outside the window
	second := viewportData(t, vp)
	if first != second || first != "2345" {
		t.Errorf("expected stable %q, got %q then %q", "2345", first, second)
	}
}

func TestInsertShiftsLaterViewports(t *testing.T) {
	s := NewFromBytes([]byte("aaaaBBBBcccc"))
	defer s.Destroy()

	var before, after recorder
	vpBefore, _ := s.Register(0, 4, before.callback)
	vpAfter, _ := s.Register(4, 4, after.callback)

	s.Insert(4, []byte("XY"))

	if got := viewportData(t, vpBefore); got != "aaaa" {
		t.Errorf("viewport before insert point changed: %q", got)
	}
	if len(before.events) != 0 {
		t.Errorf("viewport before insert point notified %d times", len(before.events))
	}
	// Window content shifts right by the inserted length.
	if got := viewportData(t, vpAfter); got != "XYBB" {
		t.Errorf("expected %q, got %q", "XYBB", got)
	}
	if len(after.events) != 1 {
		t.Errorf("expected 1 callback, got %d", len(after.events))
	}
}

func TestEditBeforeWindowRefreshes(t *testing.T) {
	s := NewFromBytes([]byte("0123456789"))
	defer s.Destroy()

	var rec recorder
	vp, _ := s.Register(6, 4, rec.callback)

	s.Delete(0, 2)
	if got := viewportData(t, vp); got != "89" {
		t.Errorf("after delete expected %q, got %q", "89", got)
	}
	s.Insert(0, []byte("ab"))
	if got := viewportData(t, vp); got != "6789" {
		t.Errorf("after insert expected %q, got %q", "6789", got)
	}
	s.Overwrite(0, []byte("zz"))
	if len(rec.events) != 2 {
		t.Errorf("overwrite outside window fired callback; events %d", len(rec.events))
	}
}

func TestUndoAndClearEvents(t *testing.T) {
	s := NewFromBytes([]byte("abcdef"))
	defer s.Destroy()

	var rec recorder
	s.Register(0, 10, rec.callback)

	s.Insert(0, []byte("1"))
	s.Undo()
	s.Redo()
	s.Clear()

	want := []EventKind{EventEdit, EventUndo, EventEdit, EventClear}
	if len(rec.events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(rec.events))
	}
	for i, k := range want {
		if rec.events[i].Kind != k {
			t.Errorf("event %d: expected %v, got %v", i, k, rec.events[i].Kind)
		}
	}
	wantData := []string{"1abcdef", "abcdef", "1abcdef", "abcdef"}
	for i, d := range wantData {
		if rec.data[i] != d {
			t.Errorf("event %d: expected %q, got %q", i, d, rec.data[i])
		}
	}
	if rec.events[3].Change != nil {
		t.Error("clear event should carry no change")
	}
}

func TestCallbackPanicIsolated(t *testing.T) {
	obs := &countingObserver{}
	s := NewFromBytes([]byte("abc"), WithObserver(obs))
	defer s.Destroy()

	s.Register(0, 10, func(*Viewport, ViewportEvent) {
		panic("boom")
	})
	var rec recorder
	s.Register(0, 10, rec.callback)

	res, err := s.Insert(0, []byte("x"))
	if err != nil {
		t.Fatalf("panicking callback leaked into mutation: %v", err)
	}
	if res.Length != 4 {
		t.Errorf("expected length 4, got %d", res.Length)
	}
	if rec.last() != "xabc" {
		t.Errorf("second callback expected %q, got %q", "xabc", rec.last())
	}
	if obs.failures != 1 {
		t.Errorf("expected 1 callback failure, got %d", obs.failures)
	}

	// The session keeps working.
	if _, err := s.Insert(0, []byte("y")); err != nil {
		t.Errorf("unexpected error after panic: %v", err)
	}
	if obs.changes != 2 || obs.notified != 4 {
		t.Errorf("unexpected observer counts %+v", obs)
	}
	if c, _ := s.Counts(); c.Callbacks != 4 || c.CallbackFailures != 2 {
		t.Errorf("expected 4 callbacks with 2 failures, got %d/%d", c.Callbacks, c.CallbackFailures)
	}
}

func TestCallbackReentrancy(t *testing.T) {
	s := NewFromBytes([]byte("abc"))
	defer s.Destroy()

	var (
		inner    error
		readBack string
	)
	s.Register(0, 10, func(vp *Viewport, ev ViewportEvent) {
		_, inner = vp.Session().Insert(0, []byte("!"))
		n, _ := vp.Session().Len()
		data, _ := vp.Session().Segment(0, n)
		readBack = string(data)
	})

	if _, err := s.Insert(3, []byte("d")); err != nil {
		t.Fatal(err)
	}
	if !errors.Is(inner, ErrReentrant) {
		t.Errorf("expected ErrReentrant, got %v", inner)
	}
	if readBack != "abcd" {
		t.Errorf("expected read %q inside callback, got %q", "abcd", readBack)
	}

	// The flag is cleared once callbacks finish.
	if _, err := s.Insert(0, []byte(">")); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestWriterDuringDispatch(t *testing.T) {
	s := NewFromBytes([]byte("abc"))
	defer s.Destroy()

	var once sync.Once
	entered := make(chan struct{})
	release := make(chan struct{})
	s.Register(0, 10, func(*Viewport, ViewportEvent) {
		once.Do(func() {
			close(entered)
			<-release
		})
	})

	errc := make(chan error, 1)
	go func() {
		_, err := s.Insert(3, []byte("d"))
		errc <- err
	}()
	<-entered

	// A second writer is refused until the first writer's callbacks finish.
	if _, err := s.Insert(0, []byte("y")); !errors.Is(err, ErrReentrant) {
		t.Errorf("expected ErrReentrant, got %v", err)
	}
	if n, err := s.Len(); err != nil || n != 4 {
		t.Errorf("read during dispatch: %d %v", n, err)
	}

	close(release)
	if err := <-errc; err != nil {
		t.Fatalf("first writer: %v", err)
	}
	if _, err := s.Insert(0, []byte("y")); err != nil {
		t.Errorf("retry after dispatch: %v", err)
	}
	if got := content(t, s); got != "yabcd" {
		t.Errorf("expected %q, got %q", "yabcd", got)
	}
}

func TestPauseAndNotify(t *testing.T) {
	s := NewFromBytes([]byte("0123456789"))
	defer s.Destroy()

	var near, far recorder
	vpNear, _ := s.Register(0, 4, near.callback)
	vpFar, _ := s.Register(20, 4, far.callback)

	if err := s.PauseViewportEvents(); err != nil {
		t.Fatal(err)
	}
	s.Overwrite(1, []byte("X"))

	if len(near.events) != 0 {
		t.Error("callback fired while paused")
	}
	if got := viewportData(t, vpNear); got != "0123" {
		t.Errorf("cache refreshed while paused: %q", got)
	}
	if dirty, _ := vpNear.HasChanges(); !dirty {
		t.Error("expected affected viewport to be dirty")
	}
	if dirty, _ := vpFar.HasChanges(); dirty {
		t.Error("unaffected viewport marked dirty")
	}
	if c, _ := s.Counts(); c.DirtyViewports != 1 {
		t.Errorf("expected 1 dirty viewport, got %d", c.DirtyViewports)
	}

	s.ResumeViewportEvents()
	n, err := s.NotifyChangedViewports()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 viewport notified, got %d", n)
	}
	if len(near.events) != 1 || near.events[0].Kind != EventChanges {
		t.Errorf("unexpected events %+v", near.events)
	}
	if near.last() != "0X23" {
		t.Errorf("expected %q, got %q", "0X23", near.last())
	}
	if dirty, _ := vpNear.HasChanges(); dirty {
		t.Error("viewport still dirty after notify")
	}
	if len(far.events) != 0 {
		t.Error("unaffected viewport notified")
	}
}

func TestModify(t *testing.T) {
	s := NewFromBytes([]byte("0123456789"))
	defer s.Destroy()

	var rec recorder
	vp, _ := s.Register(0, 3, rec.callback)
	if err := vp.Modify(5, 2); err != nil {
		t.Fatalf("Modify: %v", err)
	}
	if rec.last() != "56" || rec.events[0].Kind != EventModify {
		t.Errorf("unexpected modify callback %v %q", rec.events, rec.last())
	}
	if err := vp.Modify(-1, 2); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("expected ErrInvalidRange, got %v", err)
	}
	info, _ := vp.Info()
	if info.Offset != 5 || info.Capacity != 2 {
		t.Errorf("failed modify changed window: %+v", info)
	}
}

func TestUnregister(t *testing.T) {
	s := NewFromBytes([]byte("abc"))
	defer s.Destroy()

	var rec recorder
	vp, _ := s.Register(0, 3, rec.callback)
	if err := vp.Unregister(); err != nil {
		t.Fatal(err)
	}
	if err := vp.Unregister(); !errors.Is(err, ErrViewportClosed) {
		t.Errorf("expected ErrViewportClosed, got %v", err)
	}
	if _, err := vp.Data(); !errors.Is(err, ErrViewportClosed) {
		t.Errorf("expected ErrViewportClosed, got %v", err)
	}

	s.Insert(0, []byte("x"))
	if len(rec.events) != 0 {
		t.Error("unregistered viewport was notified")
	}
	changes, _ := s.Changes()
	if len(changes) != 1 {
		t.Errorf("unregister affected change log: %d", len(changes))
	}
	infos, _ := s.Viewports()
	if len(infos) != 0 {
		t.Errorf("expected no viewports, got %d", len(infos))
	}
}

func TestViewportAfterDestroy(t *testing.T) {
	s := NewFromBytes([]byte("abc"))
	vp, _ := s.Register(0, 3, nil)
	s.Destroy()

	if _, err := vp.Data(); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Data: expected ErrSessionClosed, got %v", err)
	}
	if _, err := vp.Info(); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Info: expected ErrSessionClosed, got %v", err)
	}
	if _, err := vp.HasChanges(); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("HasChanges: expected ErrSessionClosed, got %v", err)
	}
	if err := vp.Modify(0, 1); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Modify: expected ErrSessionClosed, got %v", err)
	}
	if err := vp.Unregister(); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Unregister: expected ErrSessionClosed, got %v", err)
	}
}
