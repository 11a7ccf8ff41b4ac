package source

import (
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

// fingerprintChunk is the read size used while hashing.
const fingerprintChunk = 256 * 1024

// Fingerprint returns the xxhash64 digest of the full contents of src.
func Fingerprint(src Source) (uint64, error) {
	h := xxhash.New()
	r := io.NewSectionReader(src, 0, src.Len())
	buf := make([]byte, fingerprintChunk)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}

// FingerprintFile returns the xxhash64 digest of the file at path.
func FingerprintFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	h := xxhash.New()
	buf := make([]byte, fingerprintChunk)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}
