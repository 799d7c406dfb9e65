package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/samber/lo"

	"github.com/ksteptoe/sfdump/internal/core/domain"
	"github.com/ksteptoe/sfdump/internal/core/ports/driven"
	"github.com/ksteptoe/sfdump/internal/core/ports/driving"
	"github.com/ksteptoe/sfdump/internal/logger"
)

// Ensure Consolidator implements the interface.
var _ driving.Consolidator = (*Consolidator)(nil)

// Consolidator merges the per-chunk shards written by export runs into
// the final metadata CSVs, per-object indexes and the master index.
// Shard rows are merged over the existing consolidated rows, so a chunk
// re-run after an earlier consolidation replaces only its own rows.
type Consolidator struct {
	store driven.ExportStore
}

// NewConsolidator creates a consolidator.
func NewConsolidator(store driven.ExportStore) *Consolidator {
	return &Consolidator{store: store}
}

// Consolidate merges all pending shards and removes them.
func (c *Consolidator) Consolidate(ctx context.Context) (*driving.ConsolidateSummary, error) {
	logger.Section("Consolidate")
	summary := &driving.ConsolidateSummary{
		Files:   make(map[string]int),
		Indexes: make(map[string]int),
	}

	for _, kind := range domain.AllKinds() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := c.mergeFiles(kind)
		if err != nil {
			return nil, err
		}
		if n >= 0 {
			summary.Files[kind.Plural()] = n
		}
	}

	links, err := c.mergeLinks()
	if err != nil {
		return nil, err
	}
	summary.Links = links

	if err := c.mergeIndexes(summary); err != nil {
		return nil, err
	}

	if err := c.store.ClearShards(); err != nil {
		return nil, fmt.Errorf("clear shards: %w", err)
	}

	logger.Info("Consolidated %d indexes, %d master rows", len(summary.Indexes), summary.MasterRows)
	return summary, nil
}

// mergeFiles returns the merged row count, or -1 when the kind had no shards.
func (c *Consolidator) mergeFiles(kind domain.SourceKind) (int, error) {
	shards, err := c.store.ReadFileShards(kind)
	if err != nil {
		return 0, fmt.Errorf("read %s shards: %w", kind.Plural(), err)
	}
	if len(shards) == 0 {
		return -1, nil
	}
	existing, err := c.store.ReadFiles(kind)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", kind.Plural(), err)
	}

	merged := mergeBy(existing, shards, func(e domain.FileEntry) string { return e.ID })
	sort.Slice(merged, func(i, j int) bool { return merged[i].ID < merged[j].ID })

	if err := c.store.WriteFiles(kind, merged); err != nil {
		return 0, fmt.Errorf("write %s: %w", kind.Plural(), err)
	}
	return len(merged), nil
}

func (c *Consolidator) mergeLinks() (int, error) {
	shards, err := c.store.ReadLinkShards()
	if err != nil {
		return 0, fmt.Errorf("read link shards: %w", err)
	}
	existing, err := c.store.ReadLinks()
	if err != nil {
		return 0, fmt.Errorf("read links: %w", err)
	}
	if len(shards) == 0 {
		return len(existing), nil
	}

	merged := mergeBy(existing, shards, func(l domain.FileLink) string {
		return l.DocumentID + "/" + l.LinkedEntityID
	})
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].DocumentID != merged[j].DocumentID {
			return merged[i].DocumentID < merged[j].DocumentID
		}
		return merged[i].LinkedEntityID < merged[j].LinkedEntityID
	})

	if err := c.store.WriteLinks(merged); err != nil {
		return 0, fmt.Errorf("write links: %w", err)
	}
	return len(merged), nil
}

// mergeIndexes merges index shards per parent type, then rebuilds the
// master index from every consolidated index.
func (c *Consolidator) mergeIndexes(summary *driving.ConsolidateSummary) error {
	shards, err := c.store.ReadIndexShards()
	if err != nil {
		return fmt.Errorf("read index shards: %w", err)
	}

	types := lo.Keys(shards)
	sort.Strings(types)
	for _, parentType := range types {
		existing, err := c.store.ReadIndex(parentType)
		if err != nil {
			return fmt.Errorf("read %s index: %w", parentType, err)
		}
		merged := mergeBy(existing, shards[parentType], indexRowKey)
		SortIndexRows(merged)
		if err := c.store.WriteIndex(parentType, merged); err != nil {
			return fmt.Errorf("write %s index: %w", parentType, err)
		}
	}

	all, err := c.store.ListIndexes()
	if err != nil {
		return fmt.Errorf("list indexes: %w", err)
	}
	if len(all) == 0 {
		return nil
	}

	var master []domain.IndexRow
	for _, parentType := range all {
		rows, err := c.store.ReadIndex(parentType)
		if err != nil {
			return fmt.Errorf("read %s index: %w", parentType, err)
		}
		summary.Indexes[parentType] = len(rows)
		master = append(master, rows...)
	}
	SortIndexRows(master)

	if err := c.store.WriteMaster(master); err != nil {
		return fmt.Errorf("write master index: %w", err)
	}
	summary.MasterRows = len(master)
	return nil
}

func indexRowKey(r domain.IndexRow) string {
	return r.ParentType + "/" + r.ParentID + "/" + r.RecordID
}

// mergeBy returns base with every update applied, keyed by key.
// Updates replace base rows with the same key.
func mergeBy[T any](base, updates []T, key func(T) string) []T {
	byKey := make(map[string]int, len(base)+len(updates))
	out := make([]T, 0, len(base)+len(updates))
	for _, rows := range [][]T{base, updates} {
		for _, r := range rows {
			k := key(r)
			if i, ok := byKey[k]; ok {
				out[i] = r
				continue
			}
			byKey[k] = len(out)
			out = append(out, r)
		}
	}
	return out
}
