package driving

import (
	"context"

	"github.com/ksteptoe/sfdump/internal/core/domain"
)

// Retrier re-attempts the records listed in the missing reports.
type Retrier interface {
	// Retry appends one outcome per missing entry to the retry reports.
	Retry(ctx context.Context, opts RetryOptions) (*RetrySummary, error)
}

// RetryOptions controls a retry pass.
type RetryOptions struct {
	// MaxWorkers bounds concurrent retries.
	MaxWorkers int
}

// RetrySummary reports a retry pass.
type RetrySummary struct {
	RunID    string
	Outcomes []domain.RetryOutcome
}

// Counts returns the number of outcomes per status.
func (s *RetrySummary) Counts() map[domain.RetryStatus]int {
	counts := make(map[domain.RetryStatus]int)
	for _, o := range s.Outcomes {
		counts[o.Status]++
	}
	return counts
}

// StillFailed returns the number of entries that were not recovered.
func (s *RetrySummary) StillFailed() int {
	n := 0
	for _, o := range s.Outcomes {
		if !o.Recovered() {
			n++
		}
	}
	return n
}
