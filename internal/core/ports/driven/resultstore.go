package driven

import (
	"context"

	"github.com/ksteptoe/sfdump/internal/core/domain"
)

// ResultStore is the append-only ledger of download results.
// Several chunk processes may append to the same ledger concurrently.
type ResultStore interface {
	// Append records results. Existing rows are never modified.
	Append(ctx context.Context, results ...domain.DownloadResult) error

	// History returns every result for a record, oldest first.
	History(ctx context.Context, recordID string) ([]domain.DownloadResult, error)

	// LatestChecksums returns the checksum of the most recent successful
	// result with a checksum for each record of a kind.
	LatestChecksums(ctx context.Context, kind domain.SourceKind) (map[string]string, error)

	// Stats counts results by status.
	Stats(ctx context.Context) (*ResultStats, error)

	// Close releases resources.
	Close() error
}

// ResultStats summarises the ledger.
type ResultStats struct {
	Results    int
	Downloaded int
	Skipped    int
	Failed     int
}
