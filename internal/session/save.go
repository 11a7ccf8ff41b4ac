package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/dshills/bytestorm/internal/source"
)

// maxUniqueAttempts bounds the search for a free sibling file name.
const maxUniqueAttempts = 1000

// defaultPerm is the mode of newly created save destinations.
const defaultPerm fs.FileMode = 0o644

// SaveOptions controls Save.
type SaveOptions struct {
	// Overwrite replaces an existing destination. Otherwise a free
	// sibling name of the form name-N.ext is chosen.
	Overwrite bool

	// Perm is the mode of the saved file. Zero keeps the mode of an
	// existing destination, or uses 0644 for a new one.
	Perm fs.FileMode
}

// Save streams the current document to path and returns the path actually
// written. Content goes to a temporary file in the destination directory
// which is renamed over the destination on success; on any failure the
// destination is left untouched.
//
// Save works from a snapshot taken when it starts, so edits made while it
// runs are not included. ctx is checked between chunks.
func (s *Session) Save(ctx context.Context, path string, opts SaveOptions) (string, error) {
	start := time.Now()
	snap, total, err := s.snapshotForSave()
	if err != nil {
		return "", err
	}

	written, dest, err := s.save(ctx, snap, total, path, opts)
	s.observer.Saved(written, time.Since(start), err)
	if err != nil {
		s.logger.Error("save failed", "session", s.id, "path", path, "error", err)
		return "", err
	}

	s.logger.Info("saved", "session", s.id, "path", dest, "bytes", written, "elapsed", time.Since(start))
	return dest, nil
}

// Export streams the current document to w in chunks and returns the
// number of bytes written.
func (s *Session) Export(ctx context.Context, w io.Writer) (int64, error) {
	snap, total, err := s.snapshotForSave()
	if err != nil {
		return 0, err
	}
	return streamTo(ctx, w, snap, total, s.chunkSize)
}

func (s *Session) snapshotForSave() (snapshot, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return snapshot{}, 0, ErrSessionClosed
	}
	return snapshot{tree: s.tree, fetch: s.fetcher()}, s.tree.Len(), nil
}

func (s *Session) save(ctx context.Context, snap snapshot, total int64, path string, opts SaveOptions) (int64, string, error) {
	dest := path
	info, statErr := os.Stat(path)
	exists := statErr == nil
	if statErr != nil && !errors.Is(statErr, fs.ErrNotExist) {
		return 0, "", fmt.Errorf("%w: stat %s: %v", ErrIO, path, statErr)
	}
	if exists && info.IsDir() {
		return 0, "", fmt.Errorf("%w: %s is a directory", ErrIO, path)
	}

	overSource := false
	if exists && !opts.Overwrite {
		unique, err := uniquePath(path)
		if err != nil {
			return 0, "", err
		}
		dest = unique
		exists = false
	} else if exists && s.isSourcePath(path) {
		overSource = true
		if err := s.checkSourceUnchanged(); err != nil {
			return 0, "", err
		}
	}

	perm := opts.Perm
	if perm == 0 {
		perm = defaultPerm
		if exists {
			perm = info.Mode().Perm()
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return 0, "", fmt.Errorf("%w: create temp file: %v", ErrIO, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	var w io.Writer = tmp
	hash := xxhash.New()
	if overSource {
		w = io.MultiWriter(tmp, hash)
	}

	n, err := streamTo(ctx, w, snap, total, s.chunkSize)
	if err != nil {
		return n, "", err
	}
	if err := tmp.Sync(); err != nil {
		return n, "", fmt.Errorf("%w: sync %s: %v", ErrIO, tmpName, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return n, "", fmt.Errorf("%w: chmod %s: %v", ErrIO, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return n, "", fmt.Errorf("%w: close %s: %v", ErrIO, tmpName, err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		committed = true
		return n, "", fmt.Errorf("%w: rename to %s: %v", ErrIO, dest, err)
	}
	committed = true

	if overSource && s.hasFingerprint {
		s.mu.Lock()
		s.fingerprint = hash.Sum64()
		s.mu.Unlock()
		s.sourceChanged.Store(false)
	}
	return n, dest, nil
}

// streamTo copies [0, total) of snap to w in chunks of chunkSize.
func streamTo(ctx context.Context, w io.Writer, snap snapshot, total int64, chunkSize int) (int64, error) {
	buf := make([]byte, min(int64(chunkSize), max(total, 1)))
	var off int64
	for off < total {
		if err := ctx.Err(); err != nil {
			return off, err
		}
		n := min(int64(len(buf)), total-off)
		if _, err := snap.ReadAt(buf[:n], off); err != nil && !errors.Is(err, io.EOF) {
			return off, fmt.Errorf("%w: read %d+%d: %v", ErrIO, off, n, err)
		}
		if _, err := w.Write(buf[:n]); err != nil {
			return off, fmt.Errorf("%w: write: %v", ErrIO, err)
		}
		off += n
	}
	return off, nil
}

// uniquePath returns the first name-N.ext sibling of path that does not
// exist.
func uniquePath(path string) (string, error) {
	dir, base := filepath.Split(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for i := 1; i <= maxUniqueAttempts; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s-%d%s", stem, i, ext))
		_, err := os.Stat(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("%w: stat %s: %v", ErrIO, candidate, err)
		}
	}
	return "", fmt.Errorf("%w: no free name for %s", ErrIO, path)
}

// ============================================================================
// Source change detection
// ============================================================================

// SourceChanged reports whether the file the session was opened from is
// known to have changed on disk.
func (s *Session) SourceChanged() bool {
	return s.sourceChanged.Load()
}

// MarkSourceChanged records that the source file changed on disk.
func (s *Session) MarkSourceChanged() {
	if !s.sourceChanged.Swap(true) {
		s.logger.Warn("source file changed on disk", "session", s.id, "path", s.path)
	}
}

// VerifySource re-fingerprints the source file and reports whether it
// differs from the content the session was opened over (or last saved).
// Sessions without a fingerprint report only previously marked changes.
func (s *Session) VerifySource() (bool, error) {
	s.mu.Lock()
	path, want, ok, closed := s.path, s.fingerprint, s.hasFingerprint, s.closed
	s.mu.Unlock()

	if closed {
		return false, ErrSessionClosed
	}
	if path == "" || !ok {
		return s.SourceChanged(), nil
	}

	got, err := source.FingerprintFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("%w: fingerprint %s: %v", ErrIO, path, err)
	}
	if err != nil || got != want {
		s.MarkSourceChanged()
		return true, nil
	}
	return s.SourceChanged(), nil
}

func (s *Session) checkSourceUnchanged() error {
	if !s.hasFingerprint {
		return nil
	}
	changed, err := s.VerifySource()
	if err != nil {
		return err
	}
	if changed {
		return fmt.Errorf("%w: %s", ErrSourceModified, s.path)
	}
	return nil
}

// isSourcePath reports whether path names the file the session was
// opened from.
func (s *Session) isSourcePath(path string) bool {
	if s.path == "" {
		return false
	}
	a, errA := os.Stat(path)
	b, errB := os.Stat(s.path)
	if errA == nil && errB == nil {
		return os.SameFile(a, b)
	}
	pa, errA := filepath.Abs(path)
	pb, errB := filepath.Abs(s.path)
	return errA == nil && errB == nil && pa == pb
}
