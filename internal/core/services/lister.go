package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/ksteptoe/sfdump/internal/core/domain"
	"github.com/ksteptoe/sfdump/internal/core/ports/driven"
	"github.com/ksteptoe/sfdump/internal/logger"
)

// Lister produces the ordered record universe a run partitions.
type Lister struct {
	source  driven.FileSource
	metrics driven.Metrics
}

// NewLister creates a lister. metrics may be nil.
func NewLister(source driven.FileSource, metrics driven.Metrics) *Lister {
	return &Lister{source: source, metrics: orNop(metrics)}
}

// List returns every record of a kind sorted by ID in the given order,
// with duplicate IDs collapsed. Any failure is returned as
// domain.ErrSourceUnavailable; partial listings are never returned.
func (l *Lister) List(ctx context.Context, kind domain.SourceKind, filter domain.ListFilter, order domain.Order) ([]domain.FileRecord, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidInput, kind)
	}
	if l.source == nil {
		return nil, fmt.Errorf("list %s: %w: no source configured", kind.Plural(), domain.ErrSourceUnavailable)
	}

	start := time.Now()
	records, err := l.source.ListFiles(ctx, kind, filter)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w: %w", kind.Plural(), domain.ErrSourceUnavailable, err)
	}

	before := len(records)
	records = lo.UniqBy(records, func(r domain.FileRecord) string { return r.ID })
	if dup := before - len(records); dup > 0 {
		logger.Debug("Collapsed %d duplicate %s rows", dup, kind)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if order == domain.OrderDesc {
			return records[i].ID > records[j].ID
		}
		return records[i].ID < records[j].ID
	})

	l.metrics.ObserveListing(kind, len(records), time.Since(start))
	logger.Info("Listed %d %s (order=%s)", len(records), kind.Plural(), order)
	return records, nil
}
