package domain

import (
	"errors"
	"time"
)

// DownloadStatus is the outcome of one materialization attempt.
type DownloadStatus string

const (
	// StatusDownloaded means the binary was fetched and written.
	StatusDownloaded DownloadStatus = "downloaded"

	// StatusSkipped means a valid local copy already existed; no fetch was made.
	StatusSkipped DownloadStatus = "skipped"

	// StatusFailed means the record has no valid local copy after this attempt.
	// Failed is always retriable.
	StatusFailed DownloadStatus = "failed"
)

// IsTerminal returns true for statuses that need no further work.
func (s DownloadStatus) IsTerminal() bool {
	return s == StatusDownloaded || s == StatusSkipped
}

// FailureReason classifies a failed attempt.
type FailureReason string

// Failure reasons recorded on failed results.
const (
	ReasonNone          FailureReason = ""
	ReasonEmptyResponse FailureReason = "EmptyResponse"
	ReasonTransient     FailureReason = "TransientNetworkError"
	ReasonRateLimited   FailureReason = "RateLimited"
	ReasonNotFound      FailureReason = "NotFound"
	ReasonForbidden     FailureReason = "Forbidden"
	ReasonWriteError    FailureReason = "WriteError"
	ReasonCancelled     FailureReason = "Cancelled"
	ReasonUnknown       FailureReason = "Unknown"
)

// ReasonFor maps an error to its failure reason.
func ReasonFor(err error) FailureReason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, ErrEmptyResponse):
		return ReasonEmptyResponse
	case errors.Is(err, ErrRateLimited):
		return ReasonRateLimited
	case errors.Is(err, ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, ErrForbidden):
		return ReasonForbidden
	case errors.Is(err, ErrTransient):
		return ReasonTransient
	case errors.Is(err, ErrOutputUnwritable):
		return ReasonWriteError
	default:
		return ReasonUnknown
	}
}

// Phase identifies which pass produced a result.
type Phase string

const (
	// PhaseExport is the main files-export pass.
	PhaseExport Phase = "export"

	// PhaseRetry is a retry-missing pass.
	PhaseRetry Phase = "retry"
)

// DownloadResult records one attempt to materialize a FileRecord.
// Results are appended to the ledger and never mutated, so a record's
// history is the audit trail of every attempt made for it.
type DownloadResult struct {
	// RecordID is the FileRecord.ID this result is for.
	RecordID string

	// Kind is the record's source kind.
	Kind SourceKind

	// LocalPath is the path relative to the export root.
	// Set for every attempt, since the path is deterministic.
	LocalPath string

	// Status is the outcome.
	Status DownloadStatus

	// Reason is set only when Status is StatusFailed.
	Reason FailureReason

	// Detail is the error text for failed attempts.
	Detail string

	// Checksum is the sha256 hex digest of the local file, when known.
	Checksum string

	// Bytes is the size of the local file.
	Bytes int64

	// MimeType is the sniffed content type of a downloaded file.
	MimeType string

	// Attempts is the number of fetches made within this attempt.
	Attempts int

	// Phase is the pass that produced the result.
	Phase Phase

	// RunID identifies the process run that produced the result.
	RunID string

	// AttemptedAt is when the attempt finished.
	AttemptedAt time.Time
}

// OK returns true when the record has a valid local copy.
func (r DownloadResult) OK() bool {
	return r.Status.IsTerminal()
}
