package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ksteptoe/sfdump/internal/core/domain"
	"github.com/ksteptoe/sfdump/internal/core/ports/driven"
	"github.com/ksteptoe/sfdump/internal/core/ports/driving"
	"github.com/ksteptoe/sfdump/internal/logger"
)

// Ensure RetryService implements the interface.
var _ driving.Retrier = (*RetryService)(nil)

// RetryService re-materializes the records named in the missing reports.
// The missing reports are left untouched; outcomes are appended to the
// retry reports and results to the ledger.
type RetryService struct {
	materializer *Materializer
	results      driven.ResultStore
	store        driven.ExportStore
	metrics      driven.Metrics

	newRunID func() string
}

// NewRetryService creates a retry service. metrics may be nil.
func NewRetryService(materializer *Materializer, results driven.ResultStore, store driven.ExportStore, metrics driven.Metrics) *RetryService {
	return &RetryService{
		materializer: materializer,
		results:      results,
		store:        store,
		metrics:      orNop(metrics),
		newRunID:     uuid.NewString,
	}
}

// Retry attempts every missing entry once, through the same Materialize
// used by export.
func (s *RetryService) Retry(ctx context.Context, opts driving.RetryOptions) (*driving.RetrySummary, error) {
	summary := &driving.RetrySummary{RunID: s.newRunID()}
	logger.Section(fmt.Sprintf("Retry missing (run %s)", summary.RunID))

	workers := opts.MaxWorkers
	if workers < 1 {
		workers = domain.DefaultMaxWorkers
	}

	for _, kind := range domain.AllKinds() {
		entries, err := s.store.ReadMissing(kind)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read missing %s: %w", kind.Plural(), err)
		}
		if len(entries) == 0 {
			logger.Info("No missing %s", kind.Plural())
			continue
		}

		outcomes, err := s.retryKind(ctx, kind, entries, workers, summary.RunID)
		if err != nil {
			return nil, err
		}
		summary.Outcomes = append(summary.Outcomes, outcomes...)
	}

	if err := s.metrics.Flush(); err != nil {
		logger.Warn("Failed to write metrics: %v", err)
	}
	return summary, nil
}

func (s *RetryService) retryKind(ctx context.Context, kind domain.SourceKind, entries []domain.MissingEntry, workers int, runID string) ([]domain.RetryOutcome, error) {
	// A checksum mismatch leaves a non-empty file behind, which would
	// otherwise pass the presence check and be skipped.
	checksums, err := s.results.LatestChecksums(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("load checksums: %w", err)
	}

	results := make([]domain.DownloadResult, len(entries))
	done := make([]bool, len(entries))
	runPool(ctx, workers, len(entries), func(ctx context.Context, i int) {
		e := entries[i]
		var expected string
		if e.Reason == domain.MissingChecksumMismatch {
			expected = checksums[e.RecordID]
		}
		res := s.materializer.Materialize(ctx, e.Record(), expected)
		res.Phase = domain.PhaseRetry
		res.RunID = runID
		results[i] = res
		done[i] = true
	})

	var attempted []domain.DownloadResult
	var outcomes []domain.RetryOutcome
	for i, e := range entries {
		if !done[i] {
			continue
		}
		res := results[i]
		attempted = append(attempted, res)
		outcomes = append(outcomes, domain.RetryOutcome{
			MissingEntry: e,
			Status:       domain.RetryStatusFor(res),
			Error:        res.Detail,
			RunID:        runID,
			RetriedAt:    res.AttemptedAt,
		})
	}

	// Outcomes of completed attempts are kept even when interrupted.
	persist := context.WithoutCancel(ctx)
	if err := s.results.Append(persist, attempted...); err != nil {
		return nil, fmt.Errorf("append results: %w", err)
	}
	if err := s.store.AppendRetry(kind, outcomes); err != nil {
		return nil, fmt.Errorf("append retry %s: %w: %w", kind.Plural(), domain.ErrOutputUnwritable, err)
	}
	if n, err := s.mergeRecovered(kind, attempted); err != nil {
		logger.Warn("Failed to update %s metadata: %v", kind.Plural(), err)
	} else if n > 0 {
		logger.Info("Updated %d %s metadata rows with recovered paths", n, kind.Plural())
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("retry %s: %w", kind.Plural(), err)
	}

	recovered := 0
	for _, o := range outcomes {
		if o.Recovered() {
			recovered++
		}
	}
	logger.Info("%s: retried=%d recovered=%d", kind.Plural(), len(outcomes), recovered)
	return outcomes, nil
}

// mergeRecovered fills in the consolidated metadata rows of recovered
// records. Rows that already carry a path are left alone.
func (s *RetryService) mergeRecovered(kind domain.SourceKind, results []domain.DownloadResult) (int, error) {
	recovered := make(map[string]domain.DownloadResult)
	for _, res := range results {
		if res.OK() && res.LocalPath != "" {
			recovered[res.RecordID] = res
		}
	}
	if len(recovered) == 0 {
		return 0, nil
	}

	rows, err := s.store.ReadFiles(kind)
	if err != nil {
		return 0, err
	}

	updated := 0
	for i, row := range rows {
		res, ok := recovered[row.ID]
		if !ok || strings.TrimSpace(row.LocalPath) != "" {
			continue
		}
		rows[i].LocalPath = res.LocalPath
		rows[i].Status = res.Status
		rows[i].Checksum = res.Checksum
		rows[i].Error = ""
		updated++
	}
	if updated == 0 {
		return 0, nil
	}
	return updated, s.store.WriteFiles(kind, rows)
}
