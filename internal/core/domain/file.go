package domain

import (
	"fmt"
	"strings"
	"time"
)

// SourceKind distinguishes the two families of remote files.
type SourceKind string

const (
	// KindLegacyAttachment is a legacy Attachment row.
	KindLegacyAttachment SourceKind = "attachment"

	// KindModernDocument is the latest ContentVersion of a ContentDocument.
	KindModernDocument SourceKind = "content_version"
)

// AllKinds returns every source kind in processing order.
func AllKinds() []SourceKind {
	return []SourceKind{KindModernDocument, KindLegacyAttachment}
}

// IsValid returns true if the kind is recognised.
func (k SourceKind) IsValid() bool {
	return k == KindLegacyAttachment || k == KindModernDocument
}

// String returns the string representation.
func (k SourceKind) String() string {
	return string(k)
}

// Plural is the file-name stem used for per-kind CSVs
// (attachments.csv, content_versions.csv).
func (k SourceKind) Plural() string {
	return string(k) + "s"
}

// FileSource is the value written to index rows for this kind.
func (k SourceKind) FileSource() string {
	if k == KindLegacyAttachment {
		return "Attachment"
	}
	return "File"
}

// RootDir is the directory under the export root holding this kind's binaries.
func (k SourceKind) RootDir() string {
	if k == KindLegacyAttachment {
		return "files_legacy"
	}
	return "files"
}

// ParseSourceKind parses a kind from its string form.
func ParseSourceKind(s string) (SourceKind, error) {
	k := SourceKind(strings.TrimSpace(strings.ToLower(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("%w: unknown source kind %q", ErrInvalidInput, s)
	}
	return k, nil
}

// FileRecord describes one remote file before download.
// Records are produced by the metadata lister and never mutated.
type FileRecord struct {
	// ID is the source system identifier (Attachment.Id or ContentVersion.Id).
	ID string

	// DocumentID is the ContentDocumentId for modern documents.
	// Empty for legacy attachments.
	DocumentID string

	// Kind identifies the file family.
	Kind SourceKind

	// ParentType is the business object type the file hangs off (e.g. "Opportunity").
	ParentType string

	// ParentID is the business object identifier.
	ParentID string

	// Title is the human-readable file name.
	Title string

	// Extension is the file extension without the leading dot.
	Extension string

	// SizeBytes is the size reported by the source. Zero means unknown.
	SizeBytes int64

	// CreatedAt is when the file was created upstream.
	CreatedAt time.Time
}

// FileName returns the display name including the extension.
func (r FileRecord) FileName() string {
	if r.Extension == "" || strings.HasSuffix(strings.ToLower(r.Title), "."+strings.ToLower(r.Extension)) {
		return r.Title
	}
	return r.Title + "." + r.Extension
}

// FileLink associates a modern document with one record it is shared with.
type FileLink struct {
	// ID is the link's own identifier (ContentDocumentLink.Id).
	ID string

	// DocumentID is the ContentDocumentId.
	DocumentID string

	// LinkedEntityID is the record the document is linked to.
	LinkedEntityID string

	// LinkedEntityType is the object type of the linked record.
	LinkedEntityType string
}

// Order controls the direction of the lister's stable sort.
type Order string

const (
	// OrderAsc sorts by ID ascending.
	OrderAsc Order = "asc"

	// OrderDesc sorts by ID descending, useful to resume newest-first.
	OrderDesc Order = "desc"
)

// IsValid returns true if the order is recognised.
func (o Order) IsValid() bool {
	return o == OrderAsc || o == OrderDesc
}

// ListFilter narrows the set of files returned by a source.
type ListFilter struct {
	// Where is an additional predicate in the source's query language.
	Where string
}
