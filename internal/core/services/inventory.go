package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ksteptoe/sfdump/internal/core/domain"
	"github.com/ksteptoe/sfdump/internal/core/ports/driven"
	"github.com/ksteptoe/sfdump/internal/core/ports/driving"
	"github.com/ksteptoe/sfdump/internal/logger"
)

// Ensure InventoryService implements the interface.
var _ driving.InventoryReporter = (*InventoryService)(nil)

// InventoryService builds the completeness report of an export root from
// local artifacts only. It never contacts the source.
type InventoryService struct {
	blobs   driven.BlobStore
	results driven.ResultStore
	store   driven.ExportStore
	now     func() time.Time
}

// NewInventoryService creates an inventory service. results may be nil
// when the export has no ledger.
func NewInventoryService(blobs driven.BlobStore, results driven.ResultStore, store driven.ExportStore) *InventoryService {
	return &InventoryService{blobs: blobs, results: results, store: store, now: time.Now}
}

// Inventory inspects the export root and writes meta/inventory.json.
func (s *InventoryService) Inventory(ctx context.Context) (*domain.CompletenessReport, error) {
	start := time.Now()
	report := &domain.CompletenessReport{
		ExportRoot: s.blobs.Root(),
		Warnings:   []string{},
	}

	for _, kind := range domain.AllKinds() {
		if err := s.checkFiles(kind, report); err != nil {
			return nil, err
		}
	}
	if err := s.checkIndexes(report); err != nil {
		return nil, err
	}
	s.checkLedger(ctx, report)

	report.ComputeOverall()
	report.GeneratedAt = s.now().UTC()
	report.DurationSeconds = time.Since(start).Seconds()

	if err := s.store.WriteReport(report); err != nil {
		return nil, fmt.Errorf("write inventory: %w: %w", domain.ErrOutputUnwritable, err)
	}
	logger.Info("Inventory of %s: %s", report.ExportRoot, report.Overall)
	return report, nil
}

func (s *InventoryService) checkFiles(kind domain.SourceKind, report *domain.CompletenessReport) error {
	cat := report.Files(kind)

	files, bytes, err := s.blobs.Usage(kind.RootDir())
	if err != nil {
		return fmt.Errorf("scan %s: %w", kind.RootDir(), err)
	}
	cat.OnDisk, cat.DiskBytes = files, bytes

	expected, err := s.store.ReadExpected(kind)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		if files > 0 {
			cat.Status = domain.StatusNotChecked
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("%s: %d files on disk but no expected manifest", kind.Plural(), files))
		} else {
			cat.Status = domain.StatusNotApplicable
		}
		return nil
	case err != nil:
		return fmt.Errorf("read expected %s: %w", kind.Plural(), err)
	}
	cat.Expected = len(expected)
	if cat.Expected == 0 {
		cat.Status = domain.StatusNotApplicable
		return nil
	}

	missing, err := s.store.ReadMissing(kind)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		// Not verified yet: check each expected record's path on disk.
		for _, rec := range expected {
			p, err := checkPresence(s.blobs, rec, LocalPath(rec), "")
			if err != nil {
				return err
			}
			switch {
			case p.Present():
			case p.Reason == domain.MissingNotFound:
				cat.Missing++
			default:
				cat.Corrupt++
			}
		}
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%s: not verified; missing count inferred from disk", kind.Plural()))
	case err != nil:
		return fmt.Errorf("read missing %s: %w", kind.Plural(), err)
	default:
		cat.Verified = true
		recovered, err := s.recovered(kind)
		if err != nil {
			return err
		}
		for _, m := range missing {
			if recovered[m.RecordID] {
				cat.Recovered++
				continue
			}
			if m.Reason == domain.MissingNotFound {
				cat.Missing++
			} else {
				cat.Corrupt++
			}
		}
	}
	cat.Present = max(0, cat.Expected-cat.Missing-cat.Corrupt)

	switch {
	case cat.Missing == 0 && cat.Corrupt == 0:
		cat.Status = domain.StatusComplete
	case cat.Missing == 0:
		cat.Status = domain.StatusWarning
	default:
		cat.Status = domain.StatusIncomplete
	}
	return nil
}

// recovered returns the records whose latest retry outcome recovered them.
func (s *InventoryService) recovered(kind domain.SourceKind) (map[string]bool, error) {
	outcomes, err := s.store.ReadRetry(kind)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("read retry %s: %w", kind.Plural(), err)
	}
	latest := make(map[string]bool, len(outcomes))
	for _, o := range outcomes {
		latest[o.RecordID] = o.Recovered()
	}
	return latest, nil
}

func (s *InventoryService) checkIndexes(report *domain.CompletenessReport) error {
	cat := &report.Indexes

	types, err := s.store.ListIndexes()
	if err != nil {
		return fmt.Errorf("list indexes: %w", err)
	}
	cat.FilesIndexCount = len(types)

	pending, err := s.store.PendingShards()
	if err != nil {
		return fmt.Errorf("count shards: %w", err)
	}
	cat.PendingShards = pending

	rows, err := s.store.ReadMaster()
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("read master index: %w", err)
	}
	for _, r := range rows {
		cat.MasterIndexRows++
		if r.LocalPath != "" {
			cat.MasterRowsWithPath++
		} else {
			cat.MasterRowsMissingPath++
		}
	}

	switch {
	case cat.PendingShards > 0:
		cat.Status = domain.StatusWarning
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("indexes: %d shard files pending; run consolidate", cat.PendingShards))
	case cat.FilesIndexCount == 0 && cat.MasterIndexRows == 0:
		cat.Status = domain.StatusNotChecked
	case cat.MasterRowsMissingPath > 0:
		cat.Status = domain.StatusWarning
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("indexes: %d master rows have no local path", cat.MasterRowsMissingPath))
	default:
		cat.Status = domain.StatusComplete
	}
	return nil
}

func (s *InventoryService) checkLedger(ctx context.Context, report *domain.CompletenessReport) {
	cat := &report.Ledger
	if s.results == nil {
		cat.Status = domain.StatusNotApplicable
		return
	}

	stats, err := s.results.Stats(ctx)
	if err != nil {
		cat.Status = domain.StatusWarning
		report.Warnings = append(report.Warnings, fmt.Sprintf("ledger: %v", err))
		return
	}
	cat.Results = stats.Results
	cat.Downloaded = stats.Downloaded
	cat.Skipped = stats.Skipped
	cat.Failed = stats.Failed

	if stats.Results == 0 {
		cat.Status = domain.StatusNotApplicable
		return
	}
	cat.Status = domain.StatusComplete
}
