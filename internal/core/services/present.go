package services

import (
	"errors"
	"fmt"

	"github.com/ksteptoe/sfdump/internal/core/domain"
	"github.com/ksteptoe/sfdump/internal/core/ports/driven"
)

// presence is the outcome of checking a record's local copy.
type presence struct {
	// Size is the on-disk size, zero when absent.
	Size int64

	// Reason is empty when the copy is valid.
	Reason domain.MissingReason
}

// Present reports whether the local copy is valid.
func (p presence) Present() bool {
	return p.Reason == ""
}

// checkPresence decides whether a record's local copy is valid. The
// downloader and the verifier both call it, so a file the downloader
// skips is exactly a file the verifier accepts.
//
// A copy is valid when it exists, is non-empty, matches the record's size
// when that is known, and matches expectedChecksum when one is given.
func checkPresence(blobs driven.BlobStore, rec domain.FileRecord, path, expectedChecksum string) (presence, error) {
	size, err := blobs.Stat(path)
	if errors.Is(err, domain.ErrNotFound) {
		return presence{Reason: domain.MissingNotFound}, nil
	}
	if err != nil {
		return presence{}, fmt.Errorf("stat %s: %w", path, err)
	}

	switch {
	case size == 0:
		return presence{Reason: domain.MissingZeroSize}, nil
	case rec.SizeBytes > 0 && size != rec.SizeBytes:
		return presence{Size: size, Reason: domain.MissingSizeMismatch}, nil
	}

	if expectedChecksum != "" {
		sum, err := blobs.Checksum(path)
		if err != nil {
			return presence{}, fmt.Errorf("checksum %s: %w", path, err)
		}
		if sum != expectedChecksum {
			return presence{Size: size, Reason: domain.MissingChecksumMismatch}, nil
		}
	}
	return presence{Size: size}, nil
}
