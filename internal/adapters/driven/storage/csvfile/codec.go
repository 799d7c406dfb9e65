package csvfile

import (
	"strconv"
	"time"

	"github.com/ksteptoe/sfdump/internal/core/domain"
)

var recordHeader = []string{
	"id", "document_id", "kind", "parent_type", "parent_id",
	"title", "extension", "size_bytes", "created_at",
}

var fileHeader = append(append([]string{}, recordHeader...),
	"path", "status", "sha256", "download_error",
)

var linkHeader = []string{"id", "content_document_id", "linked_entity_id", "linked_entity_type"}

var indexHeader = []string{
	"object_type", "record_id", "record_name", "file_source", "file_id",
	"file_link_id", "content_version_id", "file_name", "file_extension", "local_path",
}

var missingHeader = []string{
	"id", "kind", "document_id", "parent_type", "parent_id", "title",
	"extension", "size_bytes", "path", "reason",
}

var retryHeader = append(append([]string{}, missingHeader...),
	"retry_status", "retry_error", "run_id", "retried_at",
)

func encodeRecord(r domain.FileRecord) []string {
	created := ""
	if !r.CreatedAt.IsZero() {
		created = r.CreatedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		r.ID, r.DocumentID, string(r.Kind), r.ParentType, r.ParentID,
		r.Title, r.Extension, strconv.FormatInt(r.SizeBytes, 10), created,
	}
}

func decodeRecord(t *table, row []string) domain.FileRecord {
	rec := domain.FileRecord{
		ID:         t.get(row, "id"),
		DocumentID: t.get(row, "document_id"),
		Kind:       domain.SourceKind(t.get(row, "kind")),
		ParentType: t.get(row, "parent_type"),
		ParentID:   t.get(row, "parent_id"),
		Title:      t.get(row, "title"),
		Extension:  t.get(row, "extension"),
		SizeBytes:  parseInt(t.get(row, "size_bytes")),
	}
	if ts, err := time.Parse(time.RFC3339, t.get(row, "created_at")); err == nil {
		rec.CreatedAt = ts
	}
	return rec
}

func encodeEntry(e domain.FileEntry) []string {
	return append(encodeRecord(e.FileRecord), e.LocalPath, string(e.Status), e.Checksum, e.Error)
}

func decodeEntry(t *table, row []string) domain.FileEntry {
	return domain.FileEntry{
		FileRecord: decodeRecord(t, row),
		LocalPath:  t.get(row, "path"),
		Status:     domain.DownloadStatus(t.get(row, "status")),
		Checksum:   t.get(row, "sha256"),
		Error:      t.get(row, "download_error"),
	}
}

func encodeLink(l domain.FileLink) []string {
	return []string{l.ID, l.DocumentID, l.LinkedEntityID, l.LinkedEntityType}
}

func decodeLink(t *table, row []string) domain.FileLink {
	return domain.FileLink{
		ID:               t.get(row, "id"),
		DocumentID:       t.get(row, "content_document_id"),
		LinkedEntityID:   t.get(row, "linked_entity_id"),
		LinkedEntityType: t.get(row, "linked_entity_type"),
	}
}

func encodeIndexRow(r domain.IndexRow) []string {
	versionID := ""
	if r.DocumentID != "" {
		versionID = r.RecordID
	}
	return []string{
		r.ParentType, r.ParentID, r.ParentLabel, r.FileSource, r.FileID(),
		r.LinkID, versionID, r.FileName, r.FileExtension, r.LocalPath,
	}
}

func decodeIndexRow(t *table, row []string) domain.IndexRow {
	r := domain.IndexRow{
		ParentType:    t.get(row, "object_type"),
		ParentID:      t.get(row, "record_id"),
		ParentLabel:   t.get(row, "record_name"),
		FileSource:    t.get(row, "file_source"),
		LinkID:        t.get(row, "file_link_id"),
		FileName:      t.get(row, "file_name"),
		FileExtension: t.get(row, "file_extension"),
		LocalPath:     t.get(row, "local_path"),
	}
	if v := t.get(row, "content_version_id"); v != "" {
		r.RecordID = v
		r.DocumentID = t.get(row, "file_id")
	} else {
		r.RecordID = t.get(row, "file_id")
	}
	return r
}

func encodeMissing(m domain.MissingEntry) []string {
	return []string{
		m.RecordID, string(m.Kind), m.DocumentID, m.ParentType, m.ParentID, m.Title,
		m.Extension, strconv.FormatInt(m.SizeBytes, 10), m.LocalPath, string(m.Reason),
	}
}

func decodeMissing(t *table, row []string) domain.MissingEntry {
	return domain.MissingEntry{
		RecordID:   t.get(row, "id"),
		Kind:       domain.SourceKind(t.get(row, "kind")),
		DocumentID: t.get(row, "document_id"),
		ParentType: t.get(row, "parent_type"),
		ParentID:   t.get(row, "parent_id"),
		Title:      t.get(row, "title"),
		Extension:  t.get(row, "extension"),
		SizeBytes:  parseInt(t.get(row, "size_bytes")),
		LocalPath:  t.get(row, "path"),
		Reason:     domain.MissingReason(t.get(row, "reason")),
	}
}

func encodeRetry(o domain.RetryOutcome) []string {
	return append(encodeMissing(o.MissingEntry),
		string(o.Status), o.Error, o.RunID, o.RetriedAt.UTC().Format(time.RFC3339Nano))
}

func decodeRetry(t *table, row []string) domain.RetryOutcome {
	o := domain.RetryOutcome{
		MissingEntry: decodeMissing(t, row),
		Status:       domain.RetryStatus(t.get(row, "retry_status")),
		Error:        t.get(row, "retry_error"),
		RunID:        t.get(row, "run_id"),
	}
	if ts, err := time.Parse(time.RFC3339Nano, t.get(row, "retried_at")); err == nil {
		o.RetriedAt = ts
	}
	return o
}

func parseInt(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Sizes exported as floats by spreadsheet tools.
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0
		}
		return int64(f)
	}
	return n
}
