package config

import (
	"bytes"
	"errors"
	"fmt"
	"slices"

	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/bytestorm/internal/config/loader"
)

// DefaultEnvPrefix is the prefix of environment variable overrides.
const DefaultEnvPrefix = "BYTESTORM_"

// Config is the complete bytestorm configuration.
type Config struct {
	Session SessionConfig `toml:"session" yaml:"session"`
	Source  SourceConfig  `toml:"source" yaml:"source"`
	Save    SaveConfig    `toml:"save" yaml:"save"`
	Log     LogConfig     `toml:"log" yaml:"log"`
	Viewer  ViewerConfig  `toml:"viewer" yaml:"viewer"`
	Script  ScriptConfig  `toml:"script" yaml:"script"`
	Metrics MetricsConfig `toml:"metrics" yaml:"metrics"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			ChunkSize:           64 * 1024,
			MaxViewportCapacity: 1024 * 1024,
		},
		Source: SourceConfig{
			Fingerprint: true,
			DebounceMs:  100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Viewer: ViewerConfig{
			Mode:        "hex",
			BytesPerRow: 16,
		},
		Metrics: MetricsConfig{
			Namespace: "bytestorm",
		},
	}
}

// Option configures Load.
type Option func(*options)

type options struct {
	fs        loader.FileSystem
	envPrefix string
	env       bool
}

// WithFS reads configuration files through fsys.
func WithFS(fsys loader.FileSystem) Option {
	return func(o *options) {
		o.fs = fsys
	}
}

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(o *options) {
		o.envPrefix = prefix
	}
}

// WithoutEnv disables environment variable overrides.
func WithoutEnv() Option {
	return func(o *options) {
		o.env = false
	}
}

// Load builds a configuration from the defaults, the file at path (TOML,
// or YAML for .yaml/.yml) and environment overrides, in increasing order
// of precedence, then validates it. An empty path or a missing file is
// not an error.
func Load(path string, opts ...Option) (*Config, error) {
	o := options{fs: loader.DefaultFS(), envPrefix: DefaultEnvPrefix, env: true}
	for _, opt := range opts {
		opt(&o)
	}

	merged := make(map[string]any)
	if path != "" {
		fileCfg, err := loader.ForPath(o.fs, path).Load()
		if err != nil {
			return nil, err
		}
		merged = loader.DeepMerge(merged, fileCfg)
	}
	if o.env {
		envCfg, err := loader.NewEnvLoader(o.envPrefix).Load()
		if err != nil {
			return nil, err
		}
		merged = loader.DeepMerge(merged, envCfg)
	}

	cfg := Default()
	if err := cfg.apply(merged); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// apply decodes a settings map over c. Keys that match no setting are
// rejected.
func (c *Config) apply(values map[string]any) error {
	if len(values) == 0 {
		return nil
	}
	data, err := toml.Marshal(values)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("%w: %s", ErrUnknownSetting, strict.String())
		}
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return nil
}

// Validate checks every setting against its allowed range.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrValidationFailed}, args...)...))
		}
	}

	check(c.Session.ChunkSize > 0, "session.chunkSize must be positive, got %d", c.Session.ChunkSize)
	check(c.Session.MaxViewportCapacity > 0, "session.maxViewportCapacity must be positive, got %d", c.Session.MaxViewportCapacity)
	check(c.Session.MaxSessions >= 0, "session.maxSessions must not be negative, got %d", c.Session.MaxSessions)
	check(c.Source.DebounceMs >= 0, "source.debounceMs must not be negative, got %d", c.Source.DebounceMs)
	check(c.Save.Perm >= 0 && c.Save.Perm <= 0o777, "save.perm must be within 0..0777, got %#o", c.Save.Perm)
	check(slices.Contains([]string{"debug", "info", "warn", "error"}, c.Log.Level), "log.level %q is not one of debug, info, warn, error", c.Log.Level)
	check(c.Log.Format == "text" || c.Log.Format == "json", "log.format %q is not text or json", c.Log.Format)
	check(c.Viewer.Mode == "hex" || c.Viewer.Mode == "text", "viewer.mode %q is not hex or text", c.Viewer.Mode)
	check(c.Viewer.BytesPerRow >= 1 && c.Viewer.BytesPerRow <= 64, "viewer.bytesPerRow must be within 1..64, got %d", c.Viewer.BytesPerRow)
	check(c.Script.TimeoutMs >= 0, "script.timeoutMs must not be negative, got %d", c.Script.TimeoutMs)

	return errors.Join(errs...)
}
