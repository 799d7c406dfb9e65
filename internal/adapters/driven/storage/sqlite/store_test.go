package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksteptoe/sfdump/internal/core/domain"
)

// setupTestStore creates a ledger in a temporary directory.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	require.NotNil(t, store)
	t.Cleanup(func() { assert.NoError(t, store.Close()) })

	return store
}

func result(id string, status domain.DownloadStatus, checksum string) domain.DownloadResult {
	r := domain.DownloadResult{
		RecordID:    id,
		Kind:        domain.KindModernDocument,
		LocalPath:   "files/06/" + id + "_Quote.pdf",
		Status:      status,
		Checksum:    checksum,
		Bytes:       42,
		MimeType:    "application/pdf",
		Attempts:    1,
		Phase:       domain.PhaseExport,
		RunID:       "run-1",
		AttemptedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if status == domain.StatusFailed {
		r.Reason = domain.ReasonTransient
		r.Detail = "connection reset"
		r.Checksum = ""
	}
	return r
}

func TestNewStore_CreatesLedger(t *testing.T) {
	store := setupTestStore(t)
	assert.FileExists(t, store.Path())
}

func TestNewStore_ReopenKeepsRows(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, result("0681", domain.StatusDownloaded, "abc")))
	require.NoError(t, store.Close())

	reopened, err := NewStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	history, err := reopened.History(ctx, "0681")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestOpenExisting_Missing(t *testing.T) {
	_, err := OpenExisting(t.TempDir())
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestStore_HistoryIsAppendOnly(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	first := result("0683", domain.StatusFailed, "")
	first.Attempts = 2
	second := result("0683", domain.StatusDownloaded, "deadbeef")
	second.Phase = domain.PhaseRetry
	second.RunID = "run-2"

	require.NoError(t, store.Append(ctx, first))
	require.NoError(t, store.Append(ctx, second))

	history, err := store.History(ctx, "0683")
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, domain.StatusFailed, history[0].Status)
	assert.Equal(t, domain.ReasonTransient, history[0].Reason)
	assert.Equal(t, "connection reset", history[0].Detail)
	assert.Equal(t, 2, history[0].Attempts)
	assert.Equal(t, domain.StatusDownloaded, history[1].Status)
	assert.Equal(t, domain.PhaseRetry, history[1].Phase)
	assert.Equal(t, "deadbeef", history[1].Checksum)
	assert.True(t, second.AttemptedAt.Equal(history[1].AttemptedAt))
}

func TestStore_HistoryUnknownRecord(t *testing.T) {
	store := setupTestStore(t)

	history, err := store.History(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestStore_LatestChecksums(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	legacy := result("00P1", domain.StatusDownloaded, "legacy")
	legacy.Kind = domain.KindLegacyAttachment

	require.NoError(t, store.Append(ctx,
		result("0681", domain.StatusDownloaded, "old"),
		result("0681", domain.StatusDownloaded, "new"),
		result("0681", domain.StatusFailed, ""),
		result("0682", domain.StatusFailed, ""),
		legacy,
	))

	sums, err := store.LatestChecksums(ctx, domain.KindModernDocument)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"0681": "new"}, sums)
}

func TestStore_Stats(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx,
		result("1", domain.StatusDownloaded, "a"),
		result("2", domain.StatusSkipped, ""),
		result("3", domain.StatusFailed, ""),
		result("3", domain.StatusDownloaded, "c"),
	))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Results)
	assert.Equal(t, 2, stats.Downloaded)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, stats.Failed)
}

func TestStore_ConcurrentAppenders(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	// Two handles on one file, as two chunk processes would have.
	a, err := NewStore(dir)
	require.NoError(t, err)
	defer a.Close()
	b, err := NewStore(dir)
	require.NoError(t, err)
	defer b.Close()

	var wg sync.WaitGroup
	for i, s := range []*Store{a, b} {
		wg.Add(1)
		go func(i int, s *Store) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				assert.NoError(t, s.Append(ctx, result("rec", domain.StatusSkipped, "")))
			}
		}(i, s)
	}
	wg.Wait()

	history, err := a.History(ctx, "rec")
	require.NoError(t, err)
	assert.Len(t, history, 40)
}

func TestStore_AppendNothing(t *testing.T) {
	store := setupTestStore(t)
	assert.NoError(t, store.Append(context.Background()))
}
