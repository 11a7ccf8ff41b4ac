package loader

import (
	"errors"
	"io/fs"
	"strings"
	"testing"
)

// MemFS is an in-memory file system for testing.
type MemFS struct {
	files map[string][]byte
}

func NewMemFS() *MemFS {
	return &MemFS{files: make(map[string][]byte)}
}

func (m *MemFS) AddFile(path string, content string) {
	m.files[path] = []byte(content)
}

func (m *MemFS) ReadFile(path string) ([]byte, error) {
	data, ok := m.files[path]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return data, nil
}

func TestTOMLLoader_Load(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/config.toml", `
[session]
chunkSize = 4096
maxViewportCapacity = 65536

[source]
mmap = true

[log]
level = "debug"
`)

	config, err := NewTOMLLoaderWithFS(memfs, "/config.toml").Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	session, ok := config["session"].(map[string]any)
	if !ok {
		t.Fatal("expected session to be a map")
	}
	if session["chunkSize"] != int64(4096) {
		t.Errorf("chunkSize = %v (%T), want 4096", session["chunkSize"], session["chunkSize"])
	}
	if val, _ := getByPath(config, "source.mmap"); val != true {
		t.Errorf("source.mmap = %v, want true", val)
	}
	if val, _ := getByPath(config, "log.level"); val != "debug" {
		t.Errorf("log.level = %v, want 'debug'", val)
	}
}

func TestTOMLLoader_LoadNonExistent(t *testing.T) {
	config, err := NewTOMLLoaderWithFS(NewMemFS(), "/nonexistent.toml").Load()
	if err != nil {
		t.Fatalf("expected no error for non-existent file, got: %v", err)
	}
	if config != nil {
		t.Error("expected nil config for non-existent file")
	}
}

func TestTOMLLoader_LoadInvalid(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/invalid.toml", `
[session
chunkSize = 4
`)

	_, err := NewTOMLLoaderWithFS(memfs, "/invalid.toml").Load()
	if err == nil {
		t.Fatal("expected parse error")
	}

	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if parseErr.Path != "/invalid.toml" {
		t.Errorf("Path = %q, want '/invalid.toml'", parseErr.Path)
	}
	if parseErr.Line == 0 {
		t.Error("expected line information")
	}
}

func TestTOMLLoader_LoadFromReader(t *testing.T) {
	config, err := NewTOMLLoader("").LoadFromReader(strings.NewReader(`
level = "warn"
perm = 0o600
`))
	if err != nil {
		t.Fatalf("LoadFromReader failed: %v", err)
	}
	if config["level"] != "warn" {
		t.Errorf("level = %v, want 'warn'", config["level"])
	}
	if config["perm"] != int64(0o600) {
		t.Errorf("perm = %v, want 0600", config["perm"])
	}
}

func TestForPath(t *testing.T) {
	tests := []struct {
		path string
		yaml bool
	}{
		{"bytestorm.toml", false},
		{"bytestorm.yaml", true},
		{"BYTESTORM.YML", true},
		{"bytestorm.conf", false},
	}
	for _, tt := range tests {
		_, isYAML := ForPath(nil, tt.path).(*YAMLLoader)
		if isYAML != tt.yaml {
			t.Errorf("ForPath(%q) yaml = %v, want %v", tt.path, isYAML, tt.yaml)
		}
	}
}

func TestDeepMerge(t *testing.T) {
	dst := map[string]any{
		"session": map[string]any{"chunkSize": int64(1), "maxSessions": int64(2)},
		"log":     map[string]any{"level": "info"},
	}
	src := map[string]any{
		"session": map[string]any{"chunkSize": int64(10)},
		"log":     "flat",
		"extra":   true,
	}

	got := DeepMerge(dst, src)

	if val, _ := getByPath(got, "session.chunkSize"); val != int64(10) {
		t.Errorf("session.chunkSize = %v, want 10", val)
	}
	if val, _ := getByPath(got, "session.maxSessions"); val != int64(2) {
		t.Errorf("session.maxSessions = %v, want 2", val)
	}
	if got["log"] != "flat" || got["extra"] != true {
		t.Errorf("non-map values not replaced: %v", got)
	}
	if DeepMerge(nil, nil) == nil {
		t.Error("DeepMerge(nil, nil) returned nil")
	}
}
