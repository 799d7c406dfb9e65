package domain

import "time"

// CategoryStatus is the completeness verdict for one inventory category.
type CategoryStatus string

// Category statuses.
const (
	StatusComplete      CategoryStatus = "COMPLETE"
	StatusIncomplete    CategoryStatus = "INCOMPLETE"
	StatusWarning       CategoryStatus = "WARNING"
	StatusNotApplicable CategoryStatus = "N/A"
	StatusNotChecked    CategoryStatus = "NOT_CHECKED"
)

// FileCategory tracks expected versus present binaries for one source kind.
type FileCategory struct {
	Status    CategoryStatus `json:"status"`
	Expected  int            `json:"expected"`
	Present   int            `json:"present"`
	Missing   int            `json:"missing"`
	Corrupt   int            `json:"corrupt"`
	Recovered int            `json:"recovered"`
	OnDisk    int            `json:"on_disk"`
	DiskBytes int64          `json:"disk_bytes"`
	Verified  bool           `json:"verified"`
}

// IndexCategory tracks the per-object and master indexes.
type IndexCategory struct {
	Status                CategoryStatus `json:"status"`
	FilesIndexCount       int            `json:"files_index_count"`
	PendingShards         int            `json:"pending_shards"`
	MasterIndexRows       int            `json:"master_index_rows"`
	MasterRowsWithPath    int            `json:"master_rows_with_path"`
	MasterRowsMissingPath int            `json:"master_rows_missing_path"`
}

// LedgerCategory summarises the download results ledger.
type LedgerCategory struct {
	Status     CategoryStatus `json:"status"`
	Results    int            `json:"results"`
	Downloaded int            `json:"downloaded"`
	Skipped    int            `json:"skipped"`
	Failed     int            `json:"failed"`
}

// CompletenessReport is the offline inventory of an export directory.
type CompletenessReport struct {
	ExportRoot      string         `json:"export_root"`
	GeneratedAt     time.Time      `json:"generated_at"`
	Attachments     FileCategory   `json:"attachments"`
	ContentVersions FileCategory   `json:"content_versions"`
	Indexes         IndexCategory  `json:"indexes"`
	Ledger          LedgerCategory `json:"ledger"`
	Overall         CategoryStatus `json:"overall_status"`
	Warnings        []string       `json:"warnings"`
	DurationSeconds float64        `json:"duration_seconds"`
}

// Files returns the file category for a kind.
func (r *CompletenessReport) Files(kind SourceKind) *FileCategory {
	if kind == KindLegacyAttachment {
		return &r.Attachments
	}
	return &r.ContentVersions
}

// ComputeOverall derives the overall status from the category statuses.
func (r *CompletenessReport) ComputeOverall() {
	statuses := []CategoryStatus{
		r.Attachments.Status,
		r.ContentVersions.Status,
		r.Indexes.Status,
		r.Ledger.Status,
	}

	overall := StatusComplete
	for _, s := range statuses {
		switch s {
		case StatusIncomplete:
			r.Overall = StatusIncomplete
			return
		case StatusWarning, StatusNotChecked:
			overall = StatusWarning
		}
	}
	r.Overall = overall
}
