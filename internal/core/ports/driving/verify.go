package driving

import (
	"context"

	"github.com/ksteptoe/sfdump/internal/core/domain"
)

// Verifier checks an export directory against its expected records.
type Verifier interface {
	// Verify rewrites the missing reports for every verified kind.
	Verify(ctx context.Context, opts VerifyOptions) (*VerifySummary, error)
}

// VerifyOptions controls a verification.
type VerifyOptions struct {
	// Requery lists records from the source instead of the cached manifests.
	Requery bool

	// VerifyChecksums compares files against checksums in the ledger.
	VerifyChecksums bool

	// Filters are the listing predicates used with Requery.
	Filters map[domain.SourceKind]domain.ListFilter
}

// VerifySummary reports the verification of each kind.
type VerifySummary struct {
	Kinds []KindVerification
}

// KindVerification reports one kind's verification.
type KindVerification struct {
	Kind     domain.SourceKind
	Expected int
	Present  int
	Missing  []domain.MissingEntry
}

// TotalMissing sums missing entries across kinds.
func (s *VerifySummary) TotalMissing() int {
	n := 0
	for _, k := range s.Kinds {
		n += len(k.Missing)
	}
	return n
}
