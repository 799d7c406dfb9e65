package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/samber/lo"

	"github.com/ksteptoe/sfdump/internal/core/domain"
	"github.com/ksteptoe/sfdump/internal/core/ports/driven"
	"github.com/ksteptoe/sfdump/internal/logger"
)

// labelBatchSize is the number of IDs per label or link query.
// Keeps generated queries well under the API's URI length limit.
const labelBatchSize = 200

const (
	labelCacheSize = 50_000
	labelCacheTTL  = time.Hour
)

// IndexResult is the output of one index build.
type IndexResult struct {
	// Rows are grouped by parent type and sorted by parent then record.
	Rows map[string][]domain.IndexRow

	// Links are the document links fetched for modern documents.
	Links []domain.FileLink

	// Warnings describe label or link lookups that failed.
	Warnings []string
}

// Count returns the total number of rows.
func (r *IndexResult) Count() int {
	n := 0
	for _, rows := range r.Rows {
		n += len(rows)
	}
	return n
}

// IndexOptions controls an index build.
type IndexOptions struct {
	// IndexBy restricts rows to these parent types. Empty means all.
	IndexBy []string

	// LabelFields selects the label field per parent type.
	LabelFields domain.LabelFields
}

// IndexBuilder associates downloaded files with their parent records.
type IndexBuilder struct {
	source driven.FileSource
	labels *expirable.LRU[string, string]
}

// NewIndexBuilder creates an index builder.
func NewIndexBuilder(source driven.FileSource) *IndexBuilder {
	return &IndexBuilder{
		source: source,
		labels: expirable.NewLRU[string, string](labelCacheSize, nil, labelCacheTTL),
	}
}

type indexTarget struct {
	parentType string
	parentID   string
	linkID     string
	entry      domain.FileEntry
}

// Build creates index rows for entries that have a valid local copy.
// Label and link lookup failures are reported as warnings and never
// abort the build: rows keep an empty label.
func (b *IndexBuilder) Build(ctx context.Context, entries []domain.FileEntry, opts IndexOptions) (*IndexResult, error) {
	result := &IndexResult{Rows: make(map[string][]domain.IndexRow)}

	entries = lo.Filter(entries, func(e domain.FileEntry, _ int) bool { return e.Status.IsTerminal() })
	if len(entries) == 0 {
		return result, nil
	}

	// Link targets go first so a parent reached both ways keeps its link ID.
	targets, err := b.expandLinks(ctx, entries, result)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.ParentType != "" && e.ParentID != "" {
			targets = append(targets, indexTarget{parentType: e.ParentType, parentID: e.ParentID, entry: e})
		}
	}

	if len(opts.IndexBy) > 0 {
		allowed := lo.SliceToMap(opts.IndexBy, func(t string) (string, bool) { return t, true })
		targets = lo.Filter(targets, func(t indexTarget, _ int) bool { return allowed[t.parentType] })
	}
	targets = lo.UniqBy(targets, func(t indexTarget) string {
		return t.parentType + "/" + t.parentID + "/" + t.entry.ID
	})

	byType := lo.GroupBy(targets, func(t indexTarget) string { return t.parentType })
	types := lo.Keys(byType)
	sort.Strings(types)

	for _, parentType := range types {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		group := byType[parentType]
		ids := lo.Uniq(lo.Map(group, func(t indexTarget, _ int) string { return t.parentID }))

		labels, err := b.resolveLabels(ctx, parentType, opts.LabelFields.Field(parentType), ids)
		if err != nil {
			msg := fmt.Sprintf("%s: %v", parentType, err)
			if errors.Is(err, domain.ErrLabelFieldMissing) {
				msg = fmt.Sprintf("%s: label field %q not found; labels left empty", parentType, opts.LabelFields.Field(parentType))
			}
			logger.Warn("Index labels for %s", msg)
			result.Warnings = append(result.Warnings, msg)
		}

		rows := make([]domain.IndexRow, 0, len(group))
		for _, t := range group {
			rows = append(rows, domain.IndexRow{
				ParentType:    parentType,
				ParentID:      t.parentID,
				ParentLabel:   labels[t.parentID],
				RecordID:      t.entry.ID,
				DocumentID:    t.entry.DocumentID,
				LinkID:        t.linkID,
				FileSource:    t.entry.Kind.FileSource(),
				FileName:      t.entry.Title,
				FileExtension: t.entry.Extension,
				LocalPath:     t.entry.LocalPath,
			})
		}
		SortIndexRows(rows)
		result.Rows[parentType] = rows
	}

	logger.Info("Built %d index rows across %d parent types", result.Count(), len(result.Rows))
	return result, nil
}

// expandLinks returns a target for every parent a modern document is
// linked to. The links themselves are recorded on the result.
func (b *IndexBuilder) expandLinks(ctx context.Context, entries []domain.FileEntry, result *IndexResult) ([]indexTarget, error) {
	docs := make(map[string][]domain.FileEntry)
	for _, e := range entries {
		if e.Kind == domain.KindModernDocument && e.DocumentID != "" {
			docs[e.DocumentID] = append(docs[e.DocumentID], e)
		}
	}
	if len(docs) == 0 {
		return nil, nil
	}

	ids := lo.Keys(docs)
	sort.Strings(ids)

	var targets []indexTarget
	for _, batch := range lo.Chunk(ids, labelBatchSize) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		links, err := b.source.ListLinks(ctx, batch)
		if err != nil {
			msg := fmt.Sprintf("document links: %v", err)
			logger.Warn("Index %s", msg)
			result.Warnings = append(result.Warnings, msg)
			continue
		}
		result.Links = append(result.Links, links...)
		for _, l := range links {
			if l.LinkedEntityType == "" || l.LinkedEntityID == "" {
				continue
			}
			for _, e := range docs[l.DocumentID] {
				targets = append(targets, indexTarget{
					parentType: l.LinkedEntityType,
					parentID:   l.LinkedEntityID,
					linkID:     l.ID,
					entry:      e,
				})
			}
		}
	}
	return targets, nil
}

// resolveLabels returns labels for ids, querying the source in batches
// for those not already cached. On error the labels resolved so far are
// still returned.
func (b *IndexBuilder) resolveLabels(ctx context.Context, parentType, field string, ids []string) (map[string]string, error) {
	labels := make(map[string]string, len(ids))
	var pending []string
	for _, id := range ids {
		if label, ok := b.labels.Get(labelKey(parentType, field, id)); ok {
			labels[id] = label
			continue
		}
		pending = append(pending, id)
	}

	sort.Strings(pending)
	for _, batch := range lo.Chunk(pending, labelBatchSize) {
		got, err := b.source.QueryLabels(ctx, parentType, field, batch)
		if err != nil {
			return labels, err
		}
		for id, label := range got {
			labels[id] = label
			b.labels.Add(labelKey(parentType, field, id), label)
		}
	}
	return labels, nil
}

func labelKey(parentType, field, id string) string {
	return parentType + "." + field + "/" + id
}

// SortIndexRows orders rows by parent type, parent, then record.
func SortIndexRows(rows []domain.IndexRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.ParentType != b.ParentType {
			return a.ParentType < b.ParentType
		}
		if a.ParentID != b.ParentID {
			return a.ParentID < b.ParentID
		}
		return a.RecordID < b.RecordID
	})
}
