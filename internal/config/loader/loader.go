// Package loader reads configuration sources into nested maps.
//
// Files are parsed as TOML or YAML depending on their extension, and
// BYTESTORM_* environment variables are mapped onto dotted setting paths.
// Maps from several sources are combined with DeepMerge.
package loader

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Loader produces a settings map. A source that does not exist yields
// nil, nil.
type Loader interface {
	Load() (map[string]any, error)
}

// FileLoader is a Loader backed by a file that can also parse a stream.
type FileLoader interface {
	Loader
	LoadFromReader(r io.Reader) (map[string]any, error)
}

// FileSystem reads configuration files.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
}

// OSFS reads from the operating system.
type OSFS struct{}

// ReadFile calls os.ReadFile.
func (OSFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// DefaultFS returns OSFS.
func DefaultFS() FileSystem {
	return OSFS{}
}

// ForPath picks a loader by extension: .yaml and .yml are YAML,
// everything else TOML.
func ForPath(fsys FileSystem, path string) FileLoader {
	if fsys == nil {
		fsys = DefaultFS()
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return NewYAMLLoaderWithFS(fsys, path)
	default:
		return NewTOMLLoaderWithFS(fsys, path)
	}
}

// decodeFunc parses a document into a settings map. source names the
// document in errors.
type decodeFunc func(source string, data []byte) (map[string]any, error)

// fileLoader holds what TOML and YAML loaders share.
type fileLoader struct {
	fs     FileSystem
	path   string
	decode decodeFunc
}

func (l *fileLoader) Load() (map[string]any, error) {
	data, err := l.fs.ReadFile(l.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", l.path, err)
	}
	return l.decode(l.path, data)
}

func (l *fileLoader) LoadFromReader(r io.Reader) (map[string]any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return l.decode("<reader>", data)
}

// ParseError reports a malformed configuration document. Line and Column
// are zero when the parser does not report a position.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	switch {
	case e.Line > 0 && e.Column > 0:
		return fmt.Sprintf("%s:%d:%d: %s", e.Path, e.Line, e.Column, e.Message)
	case e.Line > 0:
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// DeepMerge merges src into dst and returns dst. Nested maps merge key by
// key; any other src value replaces the dst value.
func DeepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any)
	}
	for key, srcVal := range src {
		srcMap, srcIsMap := srcVal.(map[string]any)
		dstMap, dstIsMap := dst[key].(map[string]any)
		if srcIsMap && dstIsMap {
			dst[key] = DeepMerge(dstMap, srcMap)
			continue
		}
		dst[key] = srcVal
	}
	return dst
}
