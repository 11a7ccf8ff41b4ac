// Package source provides the immutable byte sources an edit session is
// layered over.
//
// A Source is addressable by absolute offset in [0, Len()) and is never
// mutated after a session is created over it. Three implementations are
// provided:
//
//   - Memory: an in-memory byte slice (copied on construction)
//   - File: an *os.File read with ReadAt, nothing is loaded up front
//   - Mmap: a read-only memory mapping (unix only, falls back to File)
//
// # Fingerprints
//
// Fingerprint computes an xxhash digest of a source by streaming it in
// bounded chunks. Sessions use it to detect that the file they were opened
// from was modified by another process before saving over it.
package source
