package driving

import (
	"context"

	"github.com/ksteptoe/sfdump/internal/core/domain"
)

// Exporter runs the files export pipeline for one chunk.
type Exporter interface {
	// Export lists, partitions, downloads and indexes the enabled kinds.
	// Per-record failures are reported in the summary, not returned.
	// Listing or output failures abort the run.
	Export(ctx context.Context, cfg domain.ExportConfig) (*ExportSummary, error)
}

// ExportSummary reports what one export run did.
type ExportSummary struct {
	// RunID identifies the run in the ledger.
	RunID string

	// Chunk is the chunk label, e.g. "1of1".
	Chunk string

	// Kinds holds one entry per enabled kind, in processing order.
	Kinds []KindSummary

	// IndexRows is the number of index rows written.
	IndexRows int

	// IndexWarnings lists parent types whose labels could not be fetched.
	IndexWarnings []string

	// Consolidated is true when shards were merged in the same run.
	Consolidated bool

	// EstimateOnly is true when nothing was downloaded.
	EstimateOnly bool
}

// KindSummary reports counts for one source kind.
type KindSummary struct {
	Kind domain.SourceKind

	// Listed is the size of the full record set before partitioning.
	Listed int

	// Assigned is the number of records in this chunk.
	Assigned int

	Downloaded int
	Skipped    int
	Failed     int

	// Bytes is the number of bytes downloaded in this run.
	Bytes int64

	// EstimatedBytes is the sum of reported sizes of the assigned records.
	EstimatedBytes int64

	// Failures holds the failed results.
	Failures []domain.DownloadResult
}

// TotalFailed sums failures across kinds.
func (s *ExportSummary) TotalFailed() int {
	n := 0
	for _, k := range s.Kinds {
		n += k.Failed
	}
	return n
}
