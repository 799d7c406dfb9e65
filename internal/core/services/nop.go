package services

import (
	"time"

	"github.com/ksteptoe/sfdump/internal/core/domain"
	"github.com/ksteptoe/sfdump/internal/core/ports/driven"
)

// nopMetrics discards measurements when no metrics sink is configured.
type nopMetrics struct{}

func (nopMetrics) ObserveResult(domain.DownloadResult, time.Duration)   {}
func (nopMetrics) ObserveListing(domain.SourceKind, int, time.Duration) {}
func (nopMetrics) Flush() error                                         { return nil }

func orNop(m driven.Metrics) driven.Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}
