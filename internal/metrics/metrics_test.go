package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dshills/bytestorm/internal/session"
)

func TestObserverCounts(t *testing.T) {
	m := New("test")

	m.ChangeApplied(session.ChangeInsert, 5)
	m.ChangeApplied(session.ChangeInsert, 3)
	m.ChangeApplied(session.ChangeDelete, 2)
	m.ViewportsNotified(4)
	m.CallbackFailed()
	m.Saved(100, time.Millisecond, nil)
	m.Saved(0, time.Millisecond, errors.New("disk full"))

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"insert changes", testutil.ToFloat64(m.changes.WithLabelValues("insert")), 2},
		{"insert bytes", testutil.ToFloat64(m.changeBytes.WithLabelValues("insert")), 8},
		{"delete bytes", testutil.ToFloat64(m.changeBytes.WithLabelValues("delete")), 2},
		{"notifications", testutil.ToFloat64(m.notifications), 4},
		{"failures", testutil.ToFloat64(m.failures), 1},
		{"ok saves", testutil.ToFloat64(m.saves.WithLabelValues("ok")), 1},
		{"failed saves", testutil.ToFloat64(m.saves.WithLabelValues("error")), 1},
		{"saved bytes", testutil.ToFloat64(m.savedBytes), 100},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestWiredToSession(t *testing.T) {
	m := New("bytestorm")
	s := session.NewFromBytes([]byte("Hello"), session.WithObserver(m))
	defer s.Destroy()

	s.Register(0, 10, func(*session.Viewport, session.ViewportEvent) {
		panic("callback bug")
	})
	s.Insert(5, []byte(" World"))
	s.Overwrite(0, []byte("J"))
	if _, err := s.Save(context.Background(), filepath.Join(t.TempDir(), "out"), session.SaveOptions{}); err != nil {
		t.Fatal(err)
	}

	if got := testutil.ToFloat64(m.changes.WithLabelValues("insert")); got != 1 {
		t.Errorf("insert changes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.changes.WithLabelValues("overwrite")); got != 1 {
		t.Errorf("overwrite changes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.failures); got != 2 {
		t.Errorf("callback failures = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.savedBytes); got != 11 {
		t.Errorf("saved bytes = %v, want 11", got)
	}
}

func TestHandler(t *testing.T) {
	m := New("bytestorm")
	m.TrackSessions("bytestorm", func() int { return 3 })
	m.ChangeApplied(session.ChangeOverwrite, 1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`bytestorm_changes_total{kind="overwrite"} 1`,
		"bytestorm_open_sessions 3",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
