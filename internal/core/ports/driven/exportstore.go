package driven

import "github.com/ksteptoe/sfdump/internal/core/domain"

// ManifestStore persists the per-kind record listings of an export.
type ManifestStore interface {
	// WriteExpected replaces the expected manifest for a kind.
	WriteExpected(kind domain.SourceKind, records []domain.FileRecord) error

	// ReadExpected returns the expected manifest for a kind.
	// Returns domain.ErrNotFound when no export has written one.
	ReadExpected(kind domain.SourceKind) ([]domain.FileRecord, error)

	// WriteFileShard writes one chunk's metadata rows for a kind.
	WriteFileShard(kind domain.SourceKind, chunk string, rows []domain.FileEntry) error

	// ReadFileShards returns every shard row for a kind.
	ReadFileShards(kind domain.SourceKind) ([]domain.FileEntry, error)

	// ReadFiles returns the consolidated metadata rows for a kind.
	// Returns an empty slice when none have been written.
	ReadFiles(kind domain.SourceKind) ([]domain.FileEntry, error)

	// WriteFiles replaces the consolidated metadata CSV for a kind.
	WriteFiles(kind domain.SourceKind, rows []domain.FileEntry) error

	// WriteLinkShard writes one chunk's document link rows.
	WriteLinkShard(chunk string, links []domain.FileLink) error

	// ReadLinkShards returns every document link shard row.
	ReadLinkShards() ([]domain.FileLink, error)

	// ReadLinks returns the consolidated document link rows.
	ReadLinks() ([]domain.FileLink, error)

	// WriteLinks replaces the consolidated document link CSV.
	WriteLinks(links []domain.FileLink) error
}

// IndexStore persists per-object and master file indexes.
type IndexStore interface {
	// WriteIndexShard writes one chunk's index rows for a parent type.
	WriteIndexShard(parentType, chunk string, rows []domain.IndexRow) error

	// ReadIndexShards returns every index shard row grouped by parent type.
	ReadIndexShards() (map[string][]domain.IndexRow, error)

	// WriteIndex replaces the consolidated index for a parent type.
	WriteIndex(parentType string, rows []domain.IndexRow) error

	// ReadIndex returns the consolidated index for a parent type.
	// Returns an empty slice when none has been written.
	ReadIndex(parentType string) ([]domain.IndexRow, error)

	// ListIndexes returns the parent types with a consolidated index.
	ListIndexes() ([]string, error)

	// WriteMaster replaces the master documents index.
	WriteMaster(rows []domain.IndexRow) error

	// ReadMaster returns the master documents index.
	// Returns domain.ErrNotFound when it has not been built.
	ReadMaster() ([]domain.IndexRow, error)

	// PendingShards counts shard files not yet removed by consolidation.
	PendingShards() (int, error)

	// ClearShards removes the shard files read since the last call.
	ClearShards() error
}

// VerificationStore persists verifier and retrier reports.
type VerificationStore interface {
	// WriteMissing replaces the missing report for a kind.
	WriteMissing(kind domain.SourceKind, entries []domain.MissingEntry) error

	// ReadMissing returns the missing report for a kind.
	// Returns domain.ErrNotFound when the kind has not been verified.
	ReadMissing(kind domain.SourceKind) ([]domain.MissingEntry, error)

	// AppendRetry appends outcomes to the retry report for a kind.
	// Earlier rows are never rewritten.
	AppendRetry(kind domain.SourceKind, outcomes []domain.RetryOutcome) error

	// ReadRetry returns every retry outcome for a kind, oldest first.
	ReadRetry(kind domain.SourceKind) ([]domain.RetryOutcome, error)

	// WriteReport replaces the completeness report.
	WriteReport(report *domain.CompletenessReport) error
}

// ExportStore is the full set of CSV and JSON artifacts of an export root.
type ExportStore interface {
	ManifestStore
	IndexStore
	VerificationStore
}
