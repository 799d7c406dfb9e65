package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/ksteptoe/sfdump/internal/core/domain"
	"github.com/ksteptoe/sfdump/internal/core/ports/driven"
	"github.com/ksteptoe/sfdump/internal/core/ports/driving"
)

// Ensure HistoryService implements the interface.
var _ driving.HistoryReader = (*HistoryService)(nil)

// HistoryService reads the audit trail of a record from the ledger.
type HistoryService struct {
	results driven.ResultStore
}

// NewHistoryService creates a history service. results may be nil when
// the export has no ledger yet.
func NewHistoryService(results driven.ResultStore) *HistoryService {
	return &HistoryService{results: results}
}

// History returns every attempt for a record, oldest first.
func (s *HistoryService) History(ctx context.Context, recordID string) ([]domain.DownloadResult, error) {
	recordID = strings.TrimSpace(recordID)
	if recordID == "" {
		return nil, fmt.Errorf("%w: record ID is required", domain.ErrInvalidInput)
	}
	if s.results == nil {
		return nil, fmt.Errorf("history %s: no ledger: %w", recordID, domain.ErrNotFound)
	}
	results, err := s.results.History(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", recordID, err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("history %s: %w", recordID, domain.ErrNotFound)
	}
	return results, nil
}
