package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ksteptoe/sfdump/internal/core/domain"
	"github.com/ksteptoe/sfdump/internal/core/ports/driven"
	"github.com/ksteptoe/sfdump/internal/core/ports/driving"
	"github.com/ksteptoe/sfdump/internal/logger"
)

// Ensure VerifyService implements the interface.
var _ driving.Verifier = (*VerifyService)(nil)

// VerifyService recomputes which expected records lack a valid local copy.
// It reads only the expected set and the filesystem (plus the ledger for
// checksums), never the results of earlier download attempts.
type VerifyService struct {
	lister  *Lister
	blobs   driven.BlobStore
	results driven.ResultStore
	store   driven.ExportStore
}

// NewVerifyService creates a verify service.
// lister is only needed for re-querying and may be nil.
func NewVerifyService(lister *Lister, blobs driven.BlobStore, results driven.ResultStore, store driven.ExportStore) *VerifyService {
	return &VerifyService{lister: lister, blobs: blobs, results: results, store: store}
}

// Verify checks every kind with an expected set and replaces its missing report.
func (s *VerifyService) Verify(ctx context.Context, opts driving.VerifyOptions) (*driving.VerifySummary, error) {
	logger.Section("Verify")
	summary := &driving.VerifySummary{}

	for _, kind := range domain.AllKinds() {
		expected, err := s.expected(ctx, kind, opts)
		if errors.Is(err, domain.ErrNotFound) {
			logger.Info("No expected %s manifest; skipping", kind.Plural())
			continue
		}
		if err != nil {
			return nil, err
		}

		kv, err := s.verifyKind(ctx, kind, expected, opts.VerifyChecksums)
		if err != nil {
			return nil, err
		}
		summary.Kinds = append(summary.Kinds, *kv)
	}

	if len(summary.Kinds) == 0 {
		return nil, fmt.Errorf("verify: %w: no expected manifests found; run files-export or use --requery", domain.ErrNotFound)
	}
	return summary, nil
}

func (s *VerifyService) expected(ctx context.Context, kind domain.SourceKind, opts driving.VerifyOptions) ([]domain.FileRecord, error) {
	if !opts.Requery {
		records, err := s.store.ReadExpected(kind)
		if err != nil {
			return nil, fmt.Errorf("read expected %s: %w", kind.Plural(), err)
		}
		return records, nil
	}

	filter, ok := opts.Filters[kind]
	if opts.Filters != nil && !ok {
		return nil, domain.ErrNotFound
	}
	if s.lister == nil {
		return nil, fmt.Errorf("requery %s: %w: no source configured", kind.Plural(), domain.ErrSourceUnavailable)
	}
	return s.lister.List(ctx, kind, filter, domain.OrderAsc)
}

func (s *VerifyService) verifyKind(ctx context.Context, kind domain.SourceKind, expected []domain.FileRecord, withChecksums bool) (*driving.KindVerification, error) {
	var checksums map[string]string
	if withChecksums {
		var err error
		checksums, err = s.results.LatestChecksums(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("load checksums: %w", err)
		}
	}

	kv := &driving.KindVerification{Kind: kind, Expected: len(expected)}
	missing := []domain.MissingEntry{}
	for _, rec := range expected {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := LocalPath(rec)
		p, err := checkPresence(s.blobs, rec, path, checksums[rec.ID])
		if err != nil {
			return nil, fmt.Errorf("verify %s: %w", rec.ID, err)
		}
		if p.Present() {
			kv.Present++
			continue
		}
		missing = append(missing, domain.NewMissingEntry(rec, path, p.Reason))
	}

	sort.Slice(missing, func(i, j int) bool { return missing[i].RecordID < missing[j].RecordID })
	if err := s.store.WriteMissing(kind, missing); err != nil {
		return nil, fmt.Errorf("write missing %s: %w: %w", kind.Plural(), domain.ErrOutputUnwritable, err)
	}
	kv.Missing = missing

	logger.Info("%s: expected=%d present=%d missing=%d", kind.Plural(), kv.Expected, kv.Present, len(missing))
	return kv, nil
}
