// Package main is the entry point for the bytestorm command.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"gopkg.in/yaml.v3"

	"github.com/dshills/bytestorm/internal/config"
	"github.com/dshills/bytestorm/internal/logging"
	"github.com/dshills/bytestorm/internal/metrics"
	"github.com/dshills/bytestorm/internal/script"
	"github.com/dshills/bytestorm/internal/session"
	"github.com/dshills/bytestorm/internal/viewer"
	"github.com/dshills/bytestorm/internal/watcher"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

type options struct {
	configPath  string
	logLevel    string
	logFile     string
	metricsAddr string
	script      string
	search      string
	replace     string
	replaceSet  bool
	ignoreCase  bool
	profile     bool
	output      string
	force       bool
	changes     bool
	view        bool
	watch       bool
	file        string
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		return 1
	}
	applyFlags(cfg, opts)

	logger, logCloser, err := logging.Setup(logging.Config{
		Level:  cfg.Log.Level,
		File:   cfg.Log.File,
		Format: cfg.Log.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to set up logging: %v\n", err)
		return 1
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, cfg, opts, logger); err != nil {
		if errors.Is(err, context.Canceled) {
			return 130
		}
		logger.Error("bytestorm failed", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func execute(ctx context.Context, cfg *config.Config, opts options, logger *slog.Logger) error {
	obs := metrics.New(cfg.Metrics.Namespace)

	mgr := session.NewManager(
		session.WithMaxSessions(cfg.Session.MaxSessions),
		session.WithSessionDefaults(sessionOptions(cfg, logger, obs)...),
	)
	defer mgr.Close()
	obs.TrackSessions(cfg.Metrics.Namespace, mgr.Count)

	if cfg.Metrics.Addr != "" {
		shutdown := serveMetrics(cfg.Metrics.Addr, obs, logger)
		defer shutdown()
	}

	sess, err := mgr.Open(opts.file)
	if err != nil {
		return err
	}
	logger.Info("session opened", "session", sess.ID(), "path", opts.file)

	if cfg.Source.Watch {
		w, err := watcher.New(
			watcher.WithDebounce(time.Duration(cfg.Source.DebounceMs)*time.Millisecond),
			watcher.WithLogger(logger),
			watcher.WithOnChange(func(path string, changed bool) {
				if changed {
					logger.Warn("source modified by another process", "path", path)
				}
			}),
		)
		if err != nil {
			return fmt.Errorf("start watcher: %w", err)
		}
		defer w.Close()
		if err := w.Add(opts.file, sess); err != nil {
			return fmt.Errorf("watch %s: %w", opts.file, err)
		}
	}

	if opts.script != "" {
		runner := script.New(sess,
			script.WithTimeout(time.Duration(cfg.Script.TimeoutMs)*time.Millisecond),
			script.WithLogger(logger),
		)
		err := runner.RunFile(ctx, opts.script)
		runner.Close()
		if err != nil {
			return fmt.Errorf("script %s: %w", opts.script, err)
		}
	}

	if opts.search != "" {
		if err := searchCmd(sess, opts, os.Stdout); err != nil {
			return err
		}
	}

	if opts.view {
		if err := view(ctx, sess, cfg, logger); err != nil {
			return err
		}
	}

	if opts.profile {
		if err := printProfile(sess, os.Stdout); err != nil {
			return err
		}
	}

	if opts.changes {
		if err := dumpChanges(sess, os.Stdout); err != nil {
			return err
		}
	}

	if opts.output != "" {
		path, err := saveCmd(ctx, sess, cfg, opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "saved %s\n", path)
	}
	return nil
}

// saveCmd writes the document to opts.output. Unedited ranges are read
// from the source file at save time, so once the file is known to have
// changed on disk the save is refused for every destination.
func saveCmd(ctx context.Context, sess *session.Session, cfg *config.Config, opts options) (string, error) {
	if sess.SourceChanged() {
		return "", fmt.Errorf("save %s: %w", opts.output, session.ErrSourceModified)
	}
	return sess.Save(ctx, opts.output, session.SaveOptions{
		Overwrite: opts.force || cfg.Save.Overwrite,
		Perm:      fs.FileMode(cfg.Save.Perm),
	})
}

func sessionOptions(cfg *config.Config, logger *slog.Logger, obs session.Observer) []session.Option {
	opts := []session.Option{
		session.WithLogger(logger),
		session.WithObserver(obs),
		session.WithChunkSize(cfg.Session.ChunkSize),
		session.WithMaxViewportCapacity(cfg.Session.MaxViewportCapacity),
	}
	// Watching reports changes by re-hashing, which needs a fingerprint.
	if cfg.Source.Fingerprint || cfg.Source.Watch {
		opts = append(opts, session.WithFingerprint())
	}
	if cfg.Source.Mmap {
		opts = append(opts, session.WithMmap())
	}
	return opts
}

func serveMetrics(addr string, obs *metrics.Metrics, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", obs.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func searchCmd(sess *session.Session, opts options, w io.Writer) error {
	sopts := session.SearchOptions{CaseInsensitive: opts.ignoreCase}
	if opts.replaceSet {
		n, err := sess.ReplaceAll([]byte(opts.search), []byte(opts.replace), sopts)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "replaced %d\n", n)
		return nil
	}

	offsets, err := sess.Search([]byte(opts.search), sopts)
	if err != nil {
		return err
	}
	for _, off := range offsets {
		fmt.Fprintf(w, "%d\n", off)
	}
	return nil
}

func view(ctx context.Context, sess *session.Session, cfg *config.Config, logger *slog.Logger) error {
	mode, err := viewer.ParseMode(cfg.Viewer.Mode)
	if err != nil {
		return err
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("create terminal: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("init terminal: %w", err)
	}
	defer screen.Fini()

	v, err := viewer.New(screen, sess,
		viewer.WithMode(mode),
		viewer.WithBytesPerRow(cfg.Viewer.BytesPerRow),
		viewer.WithMaxCapacity(cfg.Session.MaxViewportCapacity),
		viewer.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer v.Close()
	return v.Run(ctx)
}

func printProfile(sess *session.Session, w io.Writer) error {
	prof, err := sess.Profile(0, 0)
	if err != nil {
		return err
	}
	total := prof.Total()
	fmt.Fprintf(w, "bytes: %d\n", total)
	fmt.Fprintf(w, "ascii: %d\n", prof.ASCII())

	type entry struct {
		b     int
		count int64
	}
	var top []entry
	for b, n := range prof {
		if n > 0 {
			top = append(top, entry{b, n})
		}
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].count != top[j].count {
			return top[i].count > top[j].count
		}
		return top[i].b < top[j].b
	})
	for _, e := range top[:min(len(top), 10)] {
		fmt.Fprintf(w, "  0x%02x %10d  %5.1f%%\n", e.b, e.count, 100*float64(e.count)/float64(total))
	}
	return nil
}

// maxDumpData bounds the bytes of change content printed per change.
const maxDumpData = 64

// changeRecord is the YAML form of a session change.
type changeRecord struct {
	Serial      int64  `yaml:"serial"`
	Kind        string `yaml:"kind"`
	Offset      int64  `yaml:"offset"`
	Length      int64  `yaml:"length"`
	Transaction int64  `yaml:"transaction,omitempty"`
	NewLength   int64  `yaml:"newLength"`
	Data        string `yaml:"data,omitempty"`
}

func dumpChanges(sess *session.Session, w io.Writer) error {
	changes, err := sess.Changes()
	if err != nil {
		return err
	}

	records := make([]changeRecord, 0, len(changes))
	for i := range changes {
		c := &changes[i]
		rec := changeRecord{
			Serial:      c.Serial,
			Kind:        c.Kind.String(),
			Offset:      c.Offset,
			Length:      c.Length,
			Transaction: c.Transaction,
			NewLength:   c.NewLength,
		}
		if data := c.Data(); len(data) > 0 {
			rec.Data = fmt.Sprintf("%q", data[:min(len(data), maxDumpData)])
		}
		records = append(records, rec)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(map[string]any{"changes": records}); err != nil {
		return fmt.Errorf("encode changes: %w", err)
	}
	return enc.Close()
}

func applyFlags(cfg *config.Config, opts options) {
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.logFile != "" {
		cfg.Log.File = opts.logFile
	}
	if opts.metricsAddr != "" {
		cfg.Metrics.Addr = opts.metricsAddr
	}
	if opts.watch {
		cfg.Source.Watch = true
	}
}

func parseFlags() options {
	var opts options
	var showVersion bool

	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file (TOML or YAML)")
	flag.StringVar(&opts.configPath, "c", "", "Path to configuration file (shorthand)")
	flag.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&opts.logFile, "log-file", "", "Log file path (default stderr)")
	flag.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	flag.StringVar(&opts.script, "script", "", "Run a Lua edit script")
	flag.StringVar(&opts.search, "search", "", "Print the offsets of a byte pattern")
	flag.StringVar(&opts.replace, "replace", "", "Replace every -search match with this text")
	flag.BoolVar(&opts.ignoreCase, "i", false, "Case-insensitive -search")
	flag.BoolVar(&opts.profile, "profile", false, "Print a byte frequency profile")
	flag.StringVar(&opts.output, "o", "", "Save the result to this path")
	flag.BoolVar(&opts.force, "force", false, "Overwrite the -o destination if it exists")
	flag.BoolVar(&opts.changes, "changes", false, "Print the change log as YAML")
	flag.BoolVar(&opts.view, "view", false, "Open the terminal viewer")
	flag.BoolVar(&opts.watch, "watch", false, "Watch the file for external modification")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Bytestorm - large file editing sessions\n\n")
		fmt.Fprintf(os.Stderr, "Usage: bytestorm [options] file\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  bytestorm -view data.bin                      Page through a file\n")
		fmt.Fprintf(os.Stderr, "  bytestorm -search foo -replace bar -o out.txt in.txt\n")
		fmt.Fprintf(os.Stderr, "  bytestorm -script fix.lua -changes -o in.txt -force in.txt\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("Bytestorm %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	flag.Visit(func(f *flag.Flag) {
		if f.Name == "replace" {
			opts.replaceSet = true
		}
	})

	if opts.logLevel != "" {
		if _, err := logging.ParseLevel(opts.logLevel); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	opts.file = flag.Arg(0)
	return opts
}
