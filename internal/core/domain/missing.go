package domain

import "time"

// MissingReason explains why a record has no valid local copy.
type MissingReason string

// Reasons written by the verifier.
const (
	MissingNotFound         MissingReason = "file-not-found"
	MissingZeroSize         MissingReason = "zero-size-file"
	MissingSizeMismatch     MissingReason = "size-mismatch"
	MissingChecksumMismatch MissingReason = "checksum-mismatch"
)

// MissingEntry is a FileRecord that lacks a valid local copy.
// It carries enough of the record for the retrier to rebuild it
// without querying the source again.
type MissingEntry struct {
	RecordID   string
	Kind       SourceKind
	DocumentID string
	ParentType string
	ParentID   string
	Title      string
	Extension  string
	SizeBytes  int64
	LocalPath  string
	Reason     MissingReason
}

// NewMissingEntry builds an entry from a record.
func NewMissingEntry(rec FileRecord, localPath string, reason MissingReason) MissingEntry {
	return MissingEntry{
		RecordID:   rec.ID,
		Kind:       rec.Kind,
		DocumentID: rec.DocumentID,
		ParentType: rec.ParentType,
		ParentID:   rec.ParentID,
		Title:      rec.Title,
		Extension:  rec.Extension,
		SizeBytes:  rec.SizeBytes,
		LocalPath:  localPath,
		Reason:     reason,
	}
}

// Record rebuilds the FileRecord the entry was derived from.
func (m MissingEntry) Record() FileRecord {
	return FileRecord{
		ID:         m.RecordID,
		DocumentID: m.DocumentID,
		Kind:       m.Kind,
		ParentType: m.ParentType,
		ParentID:   m.ParentID,
		Title:      m.Title,
		Extension:  m.Extension,
		SizeBytes:  m.SizeBytes,
	}
}

// RetryStatus is the outcome column of a retry report row.
type RetryStatus string

// Retry outcomes.
const (
	RetryRecovered       RetryStatus = "recovered"
	RetryNotFound        RetryStatus = "not-found"
	RetryForbidden       RetryStatus = "forbidden"
	RetryRateLimited     RetryStatus = "rate-limited"
	RetryConnectionError RetryStatus = "connection-error"
	RetryEmptyResponse   RetryStatus = "empty-response"
	RetryUnknown         RetryStatus = "unknown"
)

// RetryStatusFor maps a materialization result to a retry status.
func RetryStatusFor(res DownloadResult) RetryStatus {
	if res.OK() {
		return RetryRecovered
	}
	switch res.Reason {
	case ReasonNotFound:
		return RetryNotFound
	case ReasonForbidden:
		return RetryForbidden
	case ReasonRateLimited:
		return RetryRateLimited
	case ReasonTransient:
		return RetryConnectionError
	case ReasonEmptyResponse:
		return RetryEmptyResponse
	default:
		return RetryUnknown
	}
}

// RetryOutcome is one appended row of a retry report.
type RetryOutcome struct {
	MissingEntry

	// Status is the retry outcome.
	Status RetryStatus

	// Error is the failure text; empty when recovered.
	Error string

	// RunID identifies the retry run.
	RunID string

	// RetriedAt is when the retry attempt finished.
	RetriedAt time.Time
}

// Recovered returns true if the retry produced a valid local copy.
func (o RetryOutcome) Recovered() bool {
	return o.Status == RetryRecovered
}

// IsPermanent reports whether a retry status is unlikely to change on a
// later attempt without upstream intervention.
func (s RetryStatus) IsPermanent() bool {
	return s == RetryNotFound || s == RetryForbidden
}
