package driven

import (
	"context"
	"io"

	"github.com/ksteptoe/sfdump/internal/core/domain"
)

// FileSource is the remote system files are exported from.
// The Salesforce connector implements it against the REST API.
type FileSource interface {
	// ListFiles returns every record of a kind matching the filter.
	// Implementations follow pagination to the end; a listing cut short
	// must be reported as an error, never returned partially.
	ListFiles(ctx context.Context, kind domain.SourceKind, filter domain.ListFilter) ([]domain.FileRecord, error)

	// ListLinks returns the records each document is shared with.
	ListLinks(ctx context.Context, documentIDs []string) ([]domain.FileLink, error)

	// QueryLabels returns labelField for each of the given records of one
	// object type, keyed by record ID. Records that no longer exist are
	// absent from the map. Returns domain.ErrLabelFieldMissing when the
	// object has no such field.
	QueryLabels(ctx context.Context, objectType, labelField string, ids []string) (map[string]string, error)

	// Fetch opens the binary content of a record.
	// The caller must close the returned reader.
	Fetch(ctx context.Context, rec domain.FileRecord) (io.ReadCloser, error)
}
