package driven

import (
	"time"

	"github.com/ksteptoe/sfdump/internal/core/domain"
)

// Metrics records pipeline measurements.
type Metrics interface {
	// ObserveResult records the outcome and duration of one materialization.
	ObserveResult(res domain.DownloadResult, elapsed time.Duration)

	// ObserveListing records a completed listing.
	ObserveListing(kind domain.SourceKind, records int, elapsed time.Duration)

	// Flush writes the collected metrics out.
	Flush() error
}
