package domain

// FileEntry is one row of a per-kind metadata CSV: the listed record plus
// where it landed and how the last attempt went.
type FileEntry struct {
	FileRecord

	// LocalPath is relative to the export root. It is empty while the
	// record has no valid local copy.
	LocalPath string

	// Status is the outcome of this run's attempt.
	Status DownloadStatus

	// Checksum is the sha256 hex digest when the file is present.
	Checksum string

	// Error is the failure text for failed records.
	Error string
}

// NewFileEntry combines a record with the result of materializing it.
func NewFileEntry(rec FileRecord, res DownloadResult) FileEntry {
	e := FileEntry{
		FileRecord: rec,
		Status:     res.Status,
		Checksum:   res.Checksum,
		Error:      res.Detail,
	}
	if res.OK() {
		e.LocalPath = res.LocalPath
	}
	return e
}
