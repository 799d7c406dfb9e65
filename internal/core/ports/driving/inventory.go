package driving

import (
	"context"

	"github.com/ksteptoe/sfdump/internal/core/domain"
)

// InventoryReporter builds the offline completeness report of an export.
type InventoryReporter interface {
	// Inventory inspects the export root and persists the report.
	Inventory(ctx context.Context) (*domain.CompletenessReport, error)
}

// HistoryReader exposes the download ledger.
type HistoryReader interface {
	// History returns every attempt recorded for a record, oldest first.
	History(ctx context.Context, recordID string) ([]domain.DownloadResult, error)
}
