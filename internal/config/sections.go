package config

// SessionConfig configures edit sessions.
type SessionConfig struct {
	// ChunkSize is the read size used when streaming content for save,
	// search and profiling.
	ChunkSize int `toml:"chunkSize" yaml:"chunkSize"`

	// MaxViewportCapacity is the largest window a viewport may request.
	MaxViewportCapacity int64 `toml:"maxViewportCapacity" yaml:"maxViewportCapacity"`

	// MaxSessions limits concurrently open sessions (0 = unlimited).
	MaxSessions int `toml:"maxSessions" yaml:"maxSessions"`
}

// SourceConfig configures how source files are opened and watched.
type SourceConfig struct {
	// Mmap memory-maps source files instead of reading them on demand.
	Mmap bool `toml:"mmap" yaml:"mmap"`

	// Fingerprint hashes source files on open so that saving over a file
	// changed by another process is refused.
	Fingerprint bool `toml:"fingerprint" yaml:"fingerprint"`

	// Watch watches source files for changes while a session is open.
	Watch bool `toml:"watch" yaml:"watch"`

	// DebounceMs coalesces bursts of file system events.
	DebounceMs int `toml:"debounceMs" yaml:"debounceMs"`
}

// SaveConfig configures saving.
type SaveConfig struct {
	// Overwrite replaces existing destinations instead of choosing a
	// free name-N.ext sibling.
	Overwrite bool `toml:"overwrite" yaml:"overwrite"`

	// Perm is the mode of newly written files (0 keeps existing modes).
	Perm int `toml:"perm" yaml:"perm"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `toml:"level" yaml:"level"`

	// File is the log file path. Empty logs to stderr.
	File string `toml:"file" yaml:"file"`

	// Format is "text" or "json".
	Format string `toml:"format" yaml:"format"`
}

// ViewerConfig configures the terminal viewer.
type ViewerConfig struct {
	// Mode is the initial display mode, "hex" or "text".
	Mode string `toml:"mode" yaml:"mode"`

	// BytesPerRow is the number of bytes per hex row.
	BytesPerRow int `toml:"bytesPerRow" yaml:"bytesPerRow"`
}

// ScriptConfig configures Lua edit scripts.
type ScriptConfig struct {
	// TimeoutMs bounds script run time (0 = no limit).
	TimeoutMs int `toml:"timeoutMs" yaml:"timeoutMs"`
}

// MetricsConfig configures the metrics endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics. Empty disables it.
	Addr string `toml:"addr" yaml:"addr"`

	// Namespace prefixes every metric name.
	Namespace string `toml:"namespace" yaml:"namespace"`
}
