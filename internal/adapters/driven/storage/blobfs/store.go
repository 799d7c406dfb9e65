// Package blobfs stores downloaded binaries on the local filesystem.
//
// Every write goes to a hidden temporary file beside its destination and
// is renamed into place only after the content has been fully received,
// checked and synced, so a final path never holds a partial file.
package blobfs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/ksteptoe/sfdump/internal/core/domain"
	"github.com/ksteptoe/sfdump/internal/core/ports/driven"
)

// sniffLen is how much of a file is kept for MIME detection.
const sniffLen = 3072

// tempSuffix marks in-flight writes.
const tempSuffix = ".part"

// Ensure Store implements the interface.
var _ driven.BlobStore = (*Store)(nil)

// Store is a driven.BlobStore rooted at an export directory.
type Store struct {
	root string
}

// NewStore creates a store rooted at dir. The directory is created lazily
// on the first write.
func NewStore(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", dir, err)
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute export root.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) abs(path string) string {
	return filepath.Join(s.root, filepath.FromSlash(path))
}

// Stat returns the size of a stored file.
func (s *Store) Stat(path string) (int64, error) {
	info, err := os.Stat(s.abs(path))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("%s: %w", path, domain.ErrNotFound)
	}
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s is not a regular file: %w", path, domain.ErrNotFound)
	}
	return info.Size(), nil
}

// Write streams r to path through a temporary file and renames it into place.
func (s *Store) Write(ctx context.Context, path string, r io.Reader, expectedSize int64) (*driven.BlobInfo, error) {
	final := s.abs(path)
	dir := filepath.Dir(final)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrOutputUnwritable, err)
	}

	// The temp name is fixed-length so any name that fits its directory
	// can also be written.
	tmp := filepath.Join(dir, "."+uuid.NewString()+tempSuffix)
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrOutputUnwritable, err)
	}

	info, err := s.stream(ctx, f, r, expectedSize)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("%w: %w", domain.ErrOutputUnwritable, closeErr)
	}
	if err != nil {
		os.Remove(tmp)
		return nil, err
	}

	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("%w: %w", domain.ErrOutputUnwritable, err)
	}
	return info, nil
}

func (s *Store) stream(ctx context.Context, f *os.File, r io.Reader, expectedSize int64) (*driven.BlobInfo, error) {
	hash := sha256.New()
	sniff := &prefixBuffer{limit: sniffLen}
	dst := io.MultiWriter(&fileWriter{f: f}, hash, sniff)

	n, err := io.Copy(dst, &ctxReader{ctx: ctx, r: r})
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, domain.ErrOutputUnwritable):
		return nil, err
	default:
		return nil, fmt.Errorf("%w: reading body after %d bytes: %w", domain.ErrTransient, n, err)
	}

	if n == 0 {
		return nil, fmt.Errorf("%w: received zero bytes", domain.ErrEmptyResponse)
	}
	if expectedSize > 0 && n != expectedSize {
		return nil, fmt.Errorf("%w: received %d bytes, expected %d", domain.ErrEmptyResponse, n, expectedSize)
	}

	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrOutputUnwritable, err)
	}

	return &driven.BlobInfo{
		Bytes:    n,
		Checksum: hex.EncodeToString(hash.Sum(nil)),
		MimeType: mimetype.Detect(sniff.buf).String(),
	}, nil
}

// Checksum returns the sha256 hex digest of a stored file.
func (s *Store) Checksum(path string) (string, error) {
	f, err := os.Open(s.abs(path))
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%s: %w", path, domain.ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	defer f.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// Usage counts files and bytes under dir, ignoring in-flight temp files.
// A missing directory counts as empty.
func (s *Store) Usage(dir string) (int, int64, error) {
	var files int
	var total int64

	err := filepath.WalkDir(s.abs(dir), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() || isTemp(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files++
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return files, total, nil
}

func isTemp(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, tempSuffix)
}

// ctxReader stops a copy as soon as the context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// fileWriter tags write failures so they are not mistaken for network errors.
type fileWriter struct {
	f *os.File
}

func (w *fileWriter) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	if err != nil {
		return n, fmt.Errorf("%w: %w", domain.ErrOutputUnwritable, err)
	}
	return n, nil
}

// prefixBuffer keeps the first limit bytes written to it.
type prefixBuffer struct {
	buf   []byte
	limit int
}

func (b *prefixBuffer) Write(p []byte) (int, error) {
	if room := b.limit - len(b.buf); room > 0 {
		b.buf = append(b.buf, p[:min(room, len(p))]...)
	}
	return len(p), nil
}
