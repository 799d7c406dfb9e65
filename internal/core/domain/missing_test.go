package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMissingEntry_RoundTripsRecord(t *testing.T) {
	rec := FileRecord{
		ID:         "068000000000003",
		DocumentID: "069000000000003",
		Kind:       KindModernDocument,
		ParentType: "Opportunity",
		ParentID:   "006000000000001",
		Title:      "Quote",
		Extension:  "pdf",
		SizeBytes:  1024,
	}

	entry := NewMissingEntry(rec, "files/06/068000000000003_Quote.pdf", MissingZeroSize)

	assert.Equal(t, MissingZeroSize, entry.Reason)
	assert.Equal(t, "files/06/068000000000003_Quote.pdf", entry.LocalPath)
	assert.Equal(t, rec, entry.Record())
}

func TestRetryStatusFor(t *testing.T) {
	tests := []struct {
		res  DownloadResult
		want RetryStatus
	}{
		{DownloadResult{Status: StatusDownloaded}, RetryRecovered},
		{DownloadResult{Status: StatusSkipped}, RetryRecovered},
		{DownloadResult{Status: StatusFailed, Reason: ReasonNotFound}, RetryNotFound},
		{DownloadResult{Status: StatusFailed, Reason: ReasonForbidden}, RetryForbidden},
		{DownloadResult{Status: StatusFailed, Reason: ReasonRateLimited}, RetryRateLimited},
		{DownloadResult{Status: StatusFailed, Reason: ReasonTransient}, RetryConnectionError},
		{DownloadResult{Status: StatusFailed, Reason: ReasonEmptyResponse}, RetryEmptyResponse},
		{DownloadResult{Status: StatusFailed, Reason: ReasonWriteError}, RetryUnknown},
	}

	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			assert.Equal(t, tt.want, RetryStatusFor(tt.res))
		})
	}
}

func TestRetryStatus_IsPermanent(t *testing.T) {
	assert.True(t, RetryNotFound.IsPermanent())
	assert.True(t, RetryForbidden.IsPermanent())
	assert.False(t, RetryConnectionError.IsPermanent())
	assert.False(t, RetryRecovered.IsPermanent())
}

func TestRetryOutcome_Recovered(t *testing.T) {
	assert.True(t, RetryOutcome{Status: RetryRecovered}.Recovered())
	assert.False(t, RetryOutcome{Status: RetryUnknown}.Recovered())
}
