package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ksteptoe/sfdump/internal/core/domain"
	"github.com/ksteptoe/sfdump/internal/core/ports/driven"
	"github.com/ksteptoe/sfdump/internal/logger"
)

// MaterializeConfig bounds the work done for one record.
type MaterializeConfig struct {
	// MaxAttempts is the number of fetches made before giving up.
	MaxAttempts int

	// Backoff is the delay before the second fetch; it doubles after each
	// further failure.
	Backoff time.Duration

	// FetchTimeout bounds a single fetch, including the write to disk.
	FetchTimeout time.Duration
}

// Materializer ensures a single record has a valid local copy.
// It is the one operation shared by the export and retry passes.
type Materializer struct {
	source  driven.FileSource
	blobs   driven.BlobStore
	metrics driven.Metrics
	cfg     MaterializeConfig
	locks   *pathLocks

	// sleep waits between attempts; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewMaterializer creates a materializer. metrics may be nil.
func NewMaterializer(source driven.FileSource, blobs driven.BlobStore, metrics driven.Metrics, cfg MaterializeConfig) *Materializer {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = domain.DefaultMaxAttempts
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = domain.DefaultFetchTimeout
	}
	return &Materializer{
		source:  source,
		blobs:   blobs,
		metrics: orNop(metrics),
		cfg:     cfg,
		locks:   newPathLocks(),
		sleep:   sleepContext,
		now:     time.Now,
	}
}

// Materialize makes sure rec has a valid local copy and reports what it
// did. When the copy is already valid no fetch is made. expectedChecksum,
// when non-empty, is part of the validity check.
//
// Materialize never returns an error: every failure is described by a
// result with StatusFailed, so one bad record never stops a batch.
func (m *Materializer) Materialize(ctx context.Context, rec domain.FileRecord, expectedChecksum string) domain.DownloadResult {
	start := time.Now()
	path := LocalPath(rec)

	unlock := m.locks.Lock(path)
	defer unlock()

	res := m.materialize(ctx, rec, path, expectedChecksum)
	res.AttemptedAt = m.now()
	m.metrics.ObserveResult(res, time.Since(start))
	return res
}

func (m *Materializer) materialize(ctx context.Context, rec domain.FileRecord, path, expectedChecksum string) domain.DownloadResult {
	res := domain.DownloadResult{
		RecordID:  rec.ID,
		Kind:      rec.Kind,
		LocalPath: path,
	}

	p, err := checkPresence(m.blobs, rec, path, expectedChecksum)
	if err != nil {
		return failed(res, fmt.Errorf("%w: %w", domain.ErrOutputUnwritable, err))
	}
	if p.Present() {
		logger.Debug("Skipping %s: already present at %s", rec.ID, path)
		res.Status = domain.StatusSkipped
		res.Bytes = p.Size
		res.Checksum = expectedChecksum
		return res
	}

	backoff := m.cfg.Backoff
	for attempt := 1; attempt <= m.cfg.MaxAttempts; attempt++ {
		res.Attempts = attempt

		info, err := m.fetch(ctx, rec, path)
		if err == nil {
			res.Status = domain.StatusDownloaded
			res.Bytes = info.Bytes
			res.Checksum = info.Checksum
			res.MimeType = info.MimeType
			logger.Debug("Downloaded %s (%d bytes) to %s", rec.ID, info.Bytes, path)
			return res
		}

		if ctx.Err() != nil {
			res.Status = domain.StatusFailed
			res.Reason = domain.ReasonCancelled
			res.Detail = ctx.Err().Error()
			return res
		}
		if !domain.IsRetryable(err) || attempt == m.cfg.MaxAttempts {
			logger.Warn("Failed to download %s %s after %d attempt(s): %v", rec.Kind, rec.ID, attempt, err)
			return failed(res, err)
		}

		logger.Debug("Attempt %d for %s failed, retrying in %s: %v", attempt, rec.ID, backoff, err)
		if err := m.sleep(ctx, backoff); err != nil {
			res.Status = domain.StatusFailed
			res.Reason = domain.ReasonCancelled
			res.Detail = err.Error()
			return res
		}
		backoff *= 2
	}

	// Unreachable: the loop always returns on its last attempt.
	return failed(res, errors.New("no attempts made"))
}

// fetch performs one bounded fetch-and-write.
func (m *Materializer) fetch(ctx context.Context, rec domain.FileRecord, path string) (*driven.BlobInfo, error) {
	fctx, cancel := context.WithTimeout(ctx, m.cfg.FetchTimeout)
	defer cancel()

	body, err := m.source.Fetch(fctx, rec)
	if err != nil {
		return nil, timeoutAsTransient(ctx, fctx, err)
	}
	defer body.Close()

	info, err := m.blobs.Write(fctx, path, body, rec.SizeBytes)
	if err != nil {
		return nil, timeoutAsTransient(ctx, fctx, err)
	}
	return info, nil
}

// timeoutAsTransient reclassifies the expiry of a per-fetch deadline as a
// transient failure, while the parent context is still live.
func timeoutAsTransient(parent, fetch context.Context, err error) error {
	if parent.Err() == nil && errors.Is(fetch.Err(), context.DeadlineExceeded) && !domain.IsRetryable(err) {
		return fmt.Errorf("%w: fetch timed out: %w", domain.ErrTransient, err)
	}
	return err
}

func failed(res domain.DownloadResult, err error) domain.DownloadResult {
	res.Status = domain.StatusFailed
	res.Reason = domain.ReasonFor(err)
	res.Detail = err.Error()
	return res
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
