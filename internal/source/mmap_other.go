//go:build !unix

package source

// OpenMmap falls back to a File source where mmap is unavailable.
func OpenMmap(path string) (Source, error) {
	return OpenFile(path)
}
