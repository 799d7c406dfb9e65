package driven

import (
	"context"
	"io"
)

// BlobStore holds downloaded binaries under the export root.
// Paths are relative to the root and use forward slashes.
type BlobStore interface {
	// Stat returns the size of a stored file.
	// Returns domain.ErrNotFound when the file does not exist.
	Stat(path string) (int64, error)

	// Write streams r to path atomically: content is written to a
	// temporary file in the same directory, synced and renamed into place.
	// When expectedSize is positive the stream must match it exactly.
	// A zero-byte or mismatched stream returns domain.ErrEmptyResponse
	// and leaves nothing at path.
	Write(ctx context.Context, path string, r io.Reader, expectedSize int64) (*BlobInfo, error)

	// Checksum returns the sha256 hex digest of a stored file.
	Checksum(path string) (string, error)

	// Usage counts the files and bytes under a directory.
	Usage(dir string) (files int, bytes int64, err error)

	// Root returns the absolute export root.
	Root() string
}

// BlobInfo describes a stored file.
type BlobInfo struct {
	Bytes    int64
	Checksum string
	MimeType string
}
