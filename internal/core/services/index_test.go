package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksteptoe/sfdump/internal/core/domain"
)

func downloaded(rec domain.FileRecord) domain.FileEntry {
	return domain.FileEntry{FileRecord: rec, LocalPath: LocalPath(rec), Status: domain.StatusDownloaded}
}

func TestIndexBuilder_LegacyParents(t *testing.T) {
	source := newFakeSource()
	recs := source.addLegacy(2)
	source.labels["Opportunity"] = map[string]string{"006001": "Big Deal", "006002": "Small Deal"}

	result, err := NewIndexBuilder(source).Build(context.Background(),
		[]domain.FileEntry{downloaded(recs[1]), downloaded(recs[0])},
		IndexOptions{LabelFields: domain.DefaultLabelFields()})
	require.NoError(t, err)

	rows := result.Rows["Opportunity"]
	require.Len(t, rows, 2)
	assert.Equal(t, domain.IndexRow{
		ParentType:  "Opportunity",
		ParentID:    "006001",
		ParentLabel: "Big Deal",
		RecordID:    "00P001",
		FileSource:  "Attachment",
		FileName:    "note 1.txt",
		LocalPath:   LocalPath(recs[0]),
	}, rows[0])
	assert.Equal(t, "006002", rows[1].ParentID)
	assert.Zero(t, source.linkCalls, "legacy files need no link lookup")
}

func TestIndexBuilder_ExpandsDocumentLinks(t *testing.T) {
	source := newFakeSource()
	rec := source.addModern(1)[0]
	source.links = append(source.links,
		domain.FileLink{ID: "06A900", DocumentID: rec.DocumentID, LinkedEntityID: "006777", LinkedEntityType: "Opportunity"},
		domain.FileLink{ID: "06A901", DocumentID: rec.DocumentID, LinkedEntityID: "005USER", LinkedEntityType: ""},
	)

	result, err := NewIndexBuilder(source).Build(context.Background(),
		[]domain.FileEntry{downloaded(rec)}, IndexOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Count())
	assert.Len(t, result.Links, 3)
	require.Len(t, result.Rows["Account"], 1)
	assert.Equal(t, "06A001", result.Rows["Account"][0].LinkID)
	assert.Equal(t, rec.DocumentID, result.Rows["Account"][0].FileID())
	require.Len(t, result.Rows["Opportunity"], 1)
	assert.Equal(t, "006777", result.Rows["Opportunity"][0].ParentID)
	assert.Equal(t, "File", result.Rows["Opportunity"][0].FileSource)
}

func TestIndexBuilder_SkipsEntriesWithoutLocalCopy(t *testing.T) {
	source := newFakeSource()
	recs := source.addLegacy(2)
	failed := domain.FileEntry{FileRecord: recs[1], Status: domain.StatusFailed}

	result, err := NewIndexBuilder(source).Build(context.Background(),
		[]domain.FileEntry{downloaded(recs[0]), failed}, IndexOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count())
}

func TestIndexBuilder_BatchesAndCachesLabels(t *testing.T) {
	source := newFakeSource()
	var entries []domain.FileEntry
	for i := 0; i < 450; i++ {
		rec := domain.FileRecord{
			ID:         fmt.Sprintf("00P%04d", i),
			Kind:       domain.KindLegacyAttachment,
			ParentType: "Case",
			ParentID:   fmt.Sprintf("500%04d", i),
			Title:      "x",
		}
		entries = append(entries, downloaded(rec))
	}
	b := NewIndexBuilder(source)

	_, err := b.Build(context.Background(), entries, IndexOptions{})
	require.NoError(t, err)

	calls := source.labelCalls["Case"]
	require.Len(t, calls, 3)
	assert.Len(t, calls[0], 200)
	assert.Len(t, calls[1], 200)
	assert.Len(t, calls[2], 50)

	// Labels the source did return are cached; the rest are asked again.
	source.labels["Case"] = map[string]string{"5000000": "CASE-0"}
	_, err = b.Build(context.Background(), entries[:1], IndexOptions{})
	require.NoError(t, err)
	_, err = b.Build(context.Background(), entries[:1], IndexOptions{})
	require.NoError(t, err)
	assert.Len(t, source.labelCalls["Case"], 4)
}

func TestIndexBuilder_LabelFailuresBecomeWarnings(t *testing.T) {
	source := newFakeSource()
	recs := source.addLegacy(1)
	source.labelErr["Opportunity"] = fmt.Errorf("No such column 'Title': %w", domain.ErrLabelFieldMissing)

	result, err := NewIndexBuilder(source).Build(context.Background(),
		[]domain.FileEntry{downloaded(recs[0])},
		IndexOptions{LabelFields: domain.LabelFields{"Opportunity": "Title"}})
	require.NoError(t, err)

	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], `label field "Title" not found`)
	require.Len(t, result.Rows["Opportunity"], 1)
	assert.Empty(t, result.Rows["Opportunity"][0].ParentLabel)
}

func TestIndexBuilder_LinkFailuresBecomeWarnings(t *testing.T) {
	source := newFakeSource()
	rec := source.addModern(1)[0]
	source.linkErr = errors.New("timeout")

	result, err := NewIndexBuilder(source).Build(context.Background(),
		[]domain.FileEntry{downloaded(rec)}, IndexOptions{})
	require.NoError(t, err)
	assert.Zero(t, result.Count())
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "timeout")
}

func TestIndexBuilder_DocumentFallsBackToPublishLocation(t *testing.T) {
	source := newFakeSource()
	rec := source.addModern(1)[0]
	rec.ParentType = "Account"
	rec.ParentID = "001001"
	source.linkErr = errors.New("timeout")

	result, err := NewIndexBuilder(source).Build(context.Background(),
		[]domain.FileEntry{downloaded(rec)}, IndexOptions{})
	require.NoError(t, err)
	require.Len(t, result.Rows["Account"], 1)
	assert.Equal(t, "001001", result.Rows["Account"][0].ParentID)
	assert.Empty(t, result.Rows["Account"][0].LinkID)
	assert.Len(t, result.Warnings, 1)
}

func TestIndexBuilder_LinkedPublishLocationKeepsLinkID(t *testing.T) {
	source := newFakeSource()
	rec := source.addModern(1)[0]
	rec.ParentType = "Account"
	rec.ParentID = "001001"

	result, err := NewIndexBuilder(source).Build(context.Background(),
		[]domain.FileEntry{downloaded(rec)}, IndexOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count())
	assert.Equal(t, "06A001", result.Rows["Account"][0].LinkID)
}

func TestSortIndexRows(t *testing.T) {
	rows := []domain.IndexRow{
		{ParentType: "Opportunity", ParentID: "1", RecordID: "a"},
		{ParentType: "Account", ParentID: "2", RecordID: "b"},
		{ParentType: "Account", ParentID: "1", RecordID: "c"},
		{ParentType: "Account", ParentID: "1", RecordID: "a"},
	}
	SortIndexRows(rows)
	assert.Equal(t, "Account/1/a", indexRowKey(rows[0]))
	assert.Equal(t, "Account/1/c", indexRowKey(rows[1]))
	assert.Equal(t, "Account/2/b", indexRowKey(rows[2]))
	assert.Equal(t, "Opportunity/1/a", indexRowKey(rows[3]))
}
