package memory

import (
	"context"
	"sync"

	"github.com/ksteptoe/sfdump/internal/core/domain"
	"github.com/ksteptoe/sfdump/internal/core/ports/driven"
)

// Ensure ResultStore implements the interface.
var _ driven.ResultStore = (*ResultStore)(nil)

// ResultStore is an in-memory implementation of driven.ResultStore.
// Used by estimate-only runs and tests.
type ResultStore struct {
	mu      sync.RWMutex
	results []domain.DownloadResult
}

// NewResultStore creates a new in-memory result store.
func NewResultStore() *ResultStore {
	return &ResultStore{}
}

// Append records results.
func (s *ResultStore) Append(_ context.Context, results ...domain.DownloadResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, results...)
	return nil
}

// History returns every result for a record in insertion order.
func (s *ResultStore) History(_ context.Context, recordID string) ([]domain.DownloadResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.DownloadResult
	for _, r := range s.results {
		if r.RecordID == recordID {
			out = append(out, r)
		}
	}
	return out, nil
}

// LatestChecksums returns the newest non-empty checksum per record of a kind.
func (s *ResultStore) LatestChecksums(_ context.Context, kind domain.SourceKind) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sums := make(map[string]string)
	for _, r := range s.results {
		if r.Kind == kind && r.Checksum != "" && r.OK() {
			sums[r.RecordID] = r.Checksum
		}
	}
	return sums, nil
}

// Stats counts results by status.
func (s *ResultStore) Stats(_ context.Context) (*driven.ResultStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := &driven.ResultStats{Results: len(s.results)}
	for _, r := range s.results {
		switch r.Status {
		case domain.StatusDownloaded:
			stats.Downloaded++
		case domain.StatusSkipped:
			stats.Skipped++
		case domain.StatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

// All returns a copy of every stored result.
func (s *ResultStore) All() []domain.DownloadResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.DownloadResult, len(s.results))
	copy(out, s.results)
	return out
}

// Close is a no-op.
func (s *ResultStore) Close() error {
	return nil
}
