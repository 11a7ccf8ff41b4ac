package script

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/bytestorm/internal/session"
)

// ModuleName is the name scripts can require the session module by.
const ModuleName = "bytestorm"

// Runner executes Lua scripts against one session.
//
// A Runner is safe for concurrent use, but scripts run one at a time.
type Runner struct {
	mu     sync.Mutex
	L      *lua.LState
	sess   *session.Session
	closed bool

	timeout time.Duration
	out     io.Writer
	logger  *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithTimeout bounds the run time of each script. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.timeout = d
	}
}

// WithOutput sets where print writes. Defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) {
		if w != nil {
			r.out = w
		}
	}
}

// WithLogger sets the logger used for script diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Runner bound to sess.
func New(sess *session.Session, opts ...Option) *Runner {
	r := &Runner{
		sess:   sess,
		out:    os.Stdout,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.L = lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(r.L)
	r.install()
	return r
}

// openSafeLibraries opens the libraries that cannot reach the file
// system or the process.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "module"} {
		L.SetGlobal(name, lua.LNil)
	}
}

func (r *Runner) install() {
	mod := r.L.SetFuncs(r.L.NewTable(), r.exports())
	r.L.SetGlobal("bs", mod)
	r.L.SetGlobal("print", r.L.NewFunction(r.print))
	r.L.SetGlobal("require", r.L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		if name != ModuleName {
			L.RaiseError("module %q not available", name)
			return 0
		}
		L.Push(mod)
		return 1
	}))
}

// Run executes code. name labels the chunk in error messages.
func (r *Runner) Run(ctx context.Context, name, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	r.L.SetContext(ctx)
	defer r.L.RemoveContext()

	start := time.Now()
	err := r.doWithRecovery(func() error {
		fn, err := r.L.Load(strings.NewReader(code), name)
		if err != nil {
			return err
		}
		r.L.Push(fn)
		return r.L.PCall(0, lua.MultRet, nil)
	})

	// A leftover open transaction would swallow later edits into it.
	if r.sess.InTransaction() {
		if _, endErr := r.sess.EndTransaction(); endErr != nil && !errors.Is(endErr, session.ErrSessionClosed) {
			err = errors.Join(err, endErr)
		}
	}

	if err != nil && ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s", ErrTimeout, time.Since(start).Round(time.Millisecond))
		} else {
			err = ctx.Err()
		}
	}

	r.logger.Debug("script finished", "name", name, "elapsed", time.Since(start), "error", err)
	return err
}

// RunFile executes the script at path.
func (r *Runner) RunFile(ctx context.Context, path string) error {
	code, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	return r.Run(ctx, path, string(code))
}

// Close releases the Lua state.
func (r *Runner) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	r.L.Close()
}

func (r *Runner) doWithRecovery(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("lua panic: %v", rec)
		}
	}()
	return fn()
}

func (r *Runner) print(L *lua.LState) int {
	n := L.GetTop()
	parts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	fmt.Fprintln(r.out, strings.Join(parts, "\t"))
	return 0
}
