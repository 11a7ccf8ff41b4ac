package viewer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/uniseg"

	"github.com/dshills/bytestorm/internal/session"
)

// DefaultBytesPerRow is the hex dump row width.
const DefaultBytesPerRow = 16

// maxTextBytesPerCell bounds the bytes one text mode cell can consume.
const maxTextBytesPerCell = 4

var (
	statusStyle = tcell.StyleDefault.Reverse(true)
	offsetStyle = tcell.StyleDefault.Foreground(tcell.ColorTeal)
)

// Option configures a Viewer.
type Option func(*Viewer)

// WithMode sets the initial display mode.
func WithMode(m Mode) Option {
	return func(v *Viewer) {
		v.mode = m
	}
}

// WithBytesPerRow sets the hex dump row width.
func WithBytesPerRow(n int) Option {
	return func(v *Viewer) {
		if n > 0 {
			v.perRow = n
		}
	}
}

// WithMaxCapacity caps the viewport capacity requested from the session.
func WithMaxCapacity(n int64) Option {
	return func(v *Viewer) {
		if n > 0 {
			v.maxCapacity = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Viewer) {
		if l != nil {
			v.logger = l
		}
	}
}

// Viewer pages through a session on a tcell screen.
type Viewer struct {
	screen tcell.Screen
	sess   *session.Session
	vp     *session.Viewport
	logger *slog.Logger

	mu          sync.Mutex
	mode        Mode
	perRow      int
	maxCapacity int64
	offset      int64
	status      string

	// nextLine is the offset of the second text mode row from the last
	// draw, used to scroll down by one line.
	nextLine int64
}

// redraw is posted to the screen when the viewport changes.
type redraw struct{}

// quit is posted to the screen when the run context ends.
type quit struct{}

// New creates a viewer and registers its viewport. The screen must
// already be initialized.
func New(screen tcell.Screen, sess *session.Session, opts ...Option) (*Viewer, error) {
	v := &Viewer{
		screen:      screen,
		sess:        sess,
		logger:      slog.New(slog.DiscardHandler),
		perRow:      DefaultBytesPerRow,
		maxCapacity: session.DefaultMaxViewportCapacity,
	}
	for _, opt := range opts {
		opt(v)
	}

	vp, err := sess.Register(0, v.capacity(), v.onViewportEvent)
	if err != nil {
		return nil, fmt.Errorf("register viewport: %w", err)
	}
	v.vp = vp
	return v, nil
}

// Close unregisters the viewport.
func (v *Viewer) Close() error {
	return v.vp.Unregister()
}

// Mode returns the current display mode.
func (v *Viewer) Mode() Mode {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mode
}

// Offset returns the offset of the first displayed byte.
func (v *Viewer) Offset() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.offset
}

func (v *Viewer) onViewportEvent(_ *session.Viewport, ev session.ViewportEvent) {
	v.logger.Debug("viewport event", "kind", ev.Kind.String())
	if err := v.screen.PostEvent(tcell.NewEventInterrupt(redraw{})); err != nil {
		v.logger.Debug("redraw dropped", "error", err)
	}
}

// rows is the number of content rows, leaving one for the status line.
func (v *Viewer) rows() int {
	_, h := v.screen.Size()
	if h < 2 {
		return 1
	}
	return h - 1
}

// capacity is the viewport size needed to fill the screen.
func (v *Viewer) capacity() int64 {
	w, _ := v.screen.Size()
	var c int64
	if v.mode == ModeText {
		c = int64(v.rows()) * int64(max(w, 1)) * maxTextBytesPerCell
	} else {
		c = int64(v.rows() * v.perRow)
	}
	return min(max(c, 1), v.maxCapacity)
}

// Run draws the viewer and handles input until the user quits or ctx is
// done.
func (v *Viewer) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		_ = v.screen.PostEvent(tcell.NewEventInterrupt(quit{}))
	})
	defer stop()

	v.Draw()
	for {
		ev := v.screen.PollEvent()
		if ev == nil {
			return nil
		}
		if done, err := v.HandleEvent(ev); done || err != nil {
			return err
		}
		v.Draw()
	}
}

// HandleEvent applies one screen event. It reports whether the viewer
// should exit.
func (v *Viewer) HandleEvent(ev tcell.Event) (bool, error) {
	switch ev := ev.(type) {
	case *tcell.EventInterrupt:
		if _, ok := ev.Data().(quit); ok {
			return true, nil
		}
	case *tcell.EventResize:
		v.screen.Sync()
		return false, v.moveTo(v.Offset())
	case *tcell.EventKey:
		return v.handleKey(ev)
	}
	return false, nil
}

func (v *Viewer) handleKey(ev *tcell.EventKey) (bool, error) {
	step := int64(v.perRow)
	page := int64(v.rows() * v.perRow)

	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return true, nil
	case tcell.KeyDown:
		return false, v.lineDown()
	case tcell.KeyUp:
		return false, v.moveTo(v.Offset() - step)
	case tcell.KeyPgDn:
		return false, v.moveTo(v.Offset() + page)
	case tcell.KeyPgUp:
		return false, v.moveTo(v.Offset() - page)
	case tcell.KeyHome:
		return false, v.moveTo(0)
	case tcell.KeyEnd:
		return false, v.moveToEnd()
	case tcell.KeyTab:
		return false, v.toggleMode()
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'q':
			return true, nil
		case 'j':
			return false, v.lineDown()
		case 'k':
			return false, v.moveTo(v.Offset() - step)
		case ' ':
			return false, v.moveTo(v.Offset() + page)
		case 'g':
			return false, v.moveTo(0)
		case 'G':
			return false, v.moveToEnd()
		case 'u':
			v.report(v.sess.Undo())
		case 'r':
			v.report(v.sess.Redo())
		}
	}
	return false, nil
}

func (v *Viewer) report(res session.Result, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err != nil {
		v.status = err.Error()
		return
	}
	v.status = fmt.Sprintf("serial %d", res.Serial)
}

func (v *Viewer) lineDown() error {
	v.mu.Lock()
	mode, next := v.mode, v.nextLine
	v.mu.Unlock()

	if mode == ModeText {
		if next <= v.Offset() {
			return nil
		}
		return v.moveTo(next)
	}
	return v.moveTo(v.Offset() + int64(v.perRow))
}

func (v *Viewer) moveToEnd() error {
	n, err := v.sess.Len()
	if err != nil {
		return err
	}
	v.mu.Lock()
	target := n - int64(v.rows()*v.perRow)
	v.mu.Unlock()
	return v.moveTo(target)
}

func (v *Viewer) toggleMode() error {
	v.mu.Lock()
	if v.mode == ModeHex {
		v.mode = ModeText
	} else {
		v.mode = ModeHex
	}
	v.mu.Unlock()
	return v.moveTo(v.Offset())
}

// moveTo scrolls the viewport to offset, clamped to the document and
// aligned to a row in hex mode.
func (v *Viewer) moveTo(offset int64) error {
	n, err := v.sess.Len()
	if err != nil {
		return err
	}

	v.mu.Lock()
	offset = min(offset, n)
	if v.mode == ModeHex {
		offset -= offset % int64(v.perRow)
	}
	offset = max(offset, 0)
	v.offset = offset
	capacity := v.capacity()
	v.mu.Unlock()

	return v.vp.Modify(offset, capacity)
}

// Draw renders the viewport contents and the status line.
func (v *Viewer) Draw() {
	data, err := v.vp.Data()
	if err != nil {
		v.logger.Warn("viewport read failed", "error", err)
	}
	info, _ := v.vp.Info()
	total, _ := v.sess.Len()

	v.mu.Lock()
	defer v.mu.Unlock()

	v.screen.Clear()
	width, _ := v.screen.Size()
	rows := v.rows()

	if v.mode == ModeHex {
		v.drawHex(data, rows)
	} else {
		v.drawText(data, width, rows)
	}

	status := fmt.Sprintf(" %s  %d/%d  %s", v.sess.Path(), info.Offset, total, v.mode)
	if info.Dirty {
		status += "  [stale]"
	}
	if v.status != "" {
		status += "  " + v.status
	}
	v.drawString(0, rows, width, status, statusStyle)
	v.screen.Show()
}

func (v *Viewer) drawHex(data []byte, rows int) {
	for row := 0; row < rows; row++ {
		start := row * v.perRow
		if start >= len(data) {
			break
		}
		end := min(start+v.perRow, len(data))
		line := hexRow(v.offset+int64(start), data[start:end], v.perRow)
		v.drawString(0, row, len(line), line[:8], offsetStyle)
		v.drawString(8, row, len(line), line[8:], tcell.StyleDefault)
	}
}

func (v *Viewer) drawText(data []byte, width, rows int) {
	lines := layoutText(data, width, rows)
	v.nextLine = v.offset
	if len(lines) > 1 {
		v.nextLine = v.offset + int64(lines[1].offset)
	}

	for y, line := range lines {
		x := 0
		for _, c := range line.cells {
			runes := []rune(c.str)
			v.screen.SetContent(x, y, runes[0], runes[1:], tcell.StyleDefault)
			x += c.width
		}
	}
}

// drawString draws s from column x, stopping at limit.
func (v *Viewer) drawString(x, y, limit int, s string, style tcell.Style) {
	gr := uniseg.NewGraphemes(s)
	for gr.Next() && x < limit {
		runes := gr.Runes()
		v.screen.SetContent(x, y, runes[0], runes[1:], style)
		x += max(gr.Width(), 1)
	}
}
