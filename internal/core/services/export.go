package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/ksteptoe/sfdump/internal/core/domain"
	"github.com/ksteptoe/sfdump/internal/core/ports/driven"
	"github.com/ksteptoe/sfdump/internal/core/ports/driving"
	"github.com/ksteptoe/sfdump/internal/logger"
)

// Ensure ExportService implements the interface.
var _ driving.Exporter = (*ExportService)(nil)

// ExportService runs the chunked, resumable files export.
type ExportService struct {
	lister       *Lister
	materializer *Materializer
	indexer      *IndexBuilder
	consolidator *Consolidator
	blobs        driven.BlobStore
	results      driven.ResultStore
	store        driven.ExportStore
	metrics      driven.Metrics

	newRunID func() string
}

// NewExportService creates an export service. metrics may be nil.
func NewExportService(
	lister *Lister,
	materializer *Materializer,
	indexer *IndexBuilder,
	consolidator *Consolidator,
	blobs driven.BlobStore,
	results driven.ResultStore,
	store driven.ExportStore,
	metrics driven.Metrics,
) *ExportService {
	return &ExportService{
		lister:       lister,
		materializer: materializer,
		indexer:      indexer,
		consolidator: consolidator,
		blobs:        blobs,
		results:      results,
		store:        store,
		metrics:      orNop(metrics),
		newRunID:     uuid.NewString,
	}
}

// Export lists, partitions, materializes and indexes every enabled kind.
//
// One failed record never aborts the run; it is counted in the summary.
// A listing failure, an invalid chunk or an unwritable output aborts.
//
//nolint:gocyclo // Pipeline function with necessary sequential steps
func (s *ExportService) Export(ctx context.Context, cfg domain.ExportConfig) (*driving.ExportSummary, error) {
	kinds := cfg.Kinds()
	if len(kinds) == 0 {
		return nil, fmt.Errorf("export: %w: both legacy and modern files are disabled", domain.ErrNothingToDo)
	}
	if _, err := Partition([]struct{}{}, cfg.ChunkTotal, cfg.ChunkIndex); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}

	summary := &driving.ExportSummary{
		RunID:        s.newRunID(),
		Chunk:        cfg.ChunkLabel(),
		EstimateOnly: cfg.EstimateOnly,
	}
	logger.Section(fmt.Sprintf("Export chunk %s (run %s)", summary.Chunk, summary.RunID))

	var indexable []domain.FileEntry
	for _, kind := range kinds {
		ks, entries, err := s.exportKind(ctx, cfg, kind, summary.RunID)
		if err != nil {
			return nil, err
		}
		summary.Kinds = append(summary.Kinds, *ks)
		indexable = append(indexable, entries...)
	}

	if cfg.EstimateOnly {
		return summary, nil
	}

	if err := s.index(ctx, cfg, indexable, summary); err != nil {
		return nil, err
	}

	if !cfg.Chunked() && s.consolidator != nil {
		if _, err := s.consolidator.Consolidate(ctx); err != nil {
			return nil, fmt.Errorf("consolidate: %w", err)
		}
		summary.Consolidated = true
	}

	if err := s.metrics.Flush(); err != nil {
		logger.Warn("Failed to write metrics: %v", err)
	}
	return summary, nil
}

// exportKind handles one kind and returns the entries worth indexing.
func (s *ExportService) exportKind(ctx context.Context, cfg domain.ExportConfig, kind domain.SourceKind, runID string) (*driving.KindSummary, []domain.FileEntry, error) {
	logger.Section("Export " + kind.Plural())

	records, err := s.lister.List(ctx, kind, domain.ListFilter{Where: cfg.Where(kind)}, cfg.Order)
	if err != nil {
		return nil, nil, err
	}
	assigned, err := Partition(records, cfg.ChunkTotal, cfg.ChunkIndex)
	if err != nil {
		return nil, nil, fmt.Errorf("partition %s: %w", kind.Plural(), err)
	}

	ks := &driving.KindSummary{
		Kind:           kind,
		Listed:         len(records),
		Assigned:       len(assigned),
		EstimatedBytes: lo.SumBy(assigned, func(r domain.FileRecord) int64 { return r.SizeBytes }),
	}
	logger.Info("Chunk %s holds %d of %d %s", cfg.ChunkLabel(), len(assigned), len(records), kind.Plural())

	if cfg.EstimateOnly {
		return ks, nil, nil
	}

	if err := s.store.WriteExpected(kind, records); err != nil {
		return nil, nil, fmt.Errorf("write expected %s: %w: %w", kind.Plural(), domain.ErrOutputUnwritable, err)
	}

	var results []domain.DownloadResult
	if cfg.IndexOnly {
		results, err = s.scanExisting(assigned)
	} else {
		results, err = s.download(ctx, cfg, kind, assigned, runID)
	}
	if err != nil {
		return nil, nil, err
	}

	entries := make([]domain.FileEntry, len(assigned))
	for i, rec := range assigned {
		res := results[i]
		entries[i] = domain.NewFileEntry(rec, res)
		switch res.Status {
		case domain.StatusDownloaded:
			ks.Downloaded++
			ks.Bytes += res.Bytes
		case domain.StatusSkipped:
			ks.Skipped++
		case domain.StatusFailed:
			if cfg.IndexOnly {
				// Absent files are simply not indexed.
				continue
			}
			ks.Failed++
			ks.Failures = append(ks.Failures, res)
		}
	}

	if !cfg.IndexOnly {
		if err := s.store.WriteFileShard(kind, cfg.ChunkLabel(), entries); err != nil {
			return nil, nil, fmt.Errorf("write %s shard: %w: %w", kind.Plural(), domain.ErrOutputUnwritable, err)
		}
	}

	logger.Info("%s: downloaded=%d skipped=%d failed=%d bytes=%d",
		kind.Plural(), ks.Downloaded, ks.Skipped, ks.Failed, ks.Bytes)
	return ks, entries, nil
}

// download materializes records through the worker pool and appends
// every result to the ledger. Results are returned in input order.
func (s *ExportService) download(ctx context.Context, cfg domain.ExportConfig, kind domain.SourceKind, records []domain.FileRecord, runID string) ([]domain.DownloadResult, error) {
	var checksums map[string]string
	if cfg.VerifyChecksums {
		var err error
		checksums, err = s.results.LatestChecksums(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("load checksums: %w", err)
		}
	}

	results := make([]domain.DownloadResult, len(records))
	started := make([]bool, len(records))
	var mu sync.Mutex
	runPool(ctx, cfg.MaxWorkers, len(records), func(ctx context.Context, i int) {
		res := s.materializer.Materialize(ctx, records[i], checksums[records[i].ID])
		res.Phase = domain.PhaseExport
		res.RunID = runID
		mu.Lock()
		results[i] = res
		started[i] = true
		mu.Unlock()
	})

	// Records never handed to a worker were cut off by cancellation.
	for i, ok := range started {
		if !ok {
			results[i] = domain.DownloadResult{
				RecordID:    records[i].ID,
				Kind:        kind,
				LocalPath:   LocalPath(records[i]),
				Status:      domain.StatusFailed,
				Reason:      domain.ReasonCancelled,
				Detail:      "run cancelled before the record was attempted",
				Phase:       domain.PhaseExport,
				RunID:       runID,
				AttemptedAt: time.Now(),
			}
		}
	}

	// The ledger outlives cancellation so interrupted runs stay auditable.
	if err := s.results.Append(context.WithoutCancel(ctx), results...); err != nil {
		return nil, fmt.Errorf("append results: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("export %s: %w", kind.Plural(), err)
	}
	return results, nil
}

// scanExisting builds results from files already on disk without fetching.
func (s *ExportService) scanExisting(records []domain.FileRecord) ([]domain.DownloadResult, error) {
	results := make([]domain.DownloadResult, len(records))
	for i, rec := range records {
		path := LocalPath(rec)
		p, err := checkPresence(s.blobs, rec, path, "")
		if err != nil {
			return nil, err
		}
		res := domain.DownloadResult{RecordID: rec.ID, Kind: rec.Kind, LocalPath: path, Bytes: p.Size}
		if p.Present() {
			res.Status = domain.StatusSkipped
		} else {
			res.Status = domain.StatusFailed
			res.Reason = domain.ReasonNotFound
			res.Detail = string(p.Reason)
		}
		results[i] = res
	}
	return results, nil
}

// index builds and writes this chunk's index and link shards.
func (s *ExportService) index(ctx context.Context, cfg domain.ExportConfig, entries []domain.FileEntry, summary *driving.ExportSummary) error {
	logger.Section("Index")
	result, err := s.indexer.Build(ctx, entries, IndexOptions{IndexBy: cfg.IndexBy, LabelFields: cfg.LabelFields})
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}

	types := lo.Keys(result.Rows)
	sort.Strings(types)
	for _, parentType := range types {
		if err := s.store.WriteIndexShard(parentType, cfg.ChunkLabel(), result.Rows[parentType]); err != nil {
			return fmt.Errorf("write %s index shard: %w: %w", parentType, domain.ErrOutputUnwritable, err)
		}
	}
	if len(result.Links) > 0 {
		if err := s.store.WriteLinkShard(cfg.ChunkLabel(), result.Links); err != nil {
			return fmt.Errorf("write link shard: %w: %w", domain.ErrOutputUnwritable, err)
		}
	}

	summary.IndexRows = result.Count()
	summary.IndexWarnings = result.Warnings
	return nil
}
