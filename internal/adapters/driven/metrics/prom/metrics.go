// Package prom records export metrics in a Prometheus registry and writes
// them to a node-exporter textfile when a run ends.
package prom

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ksteptoe/sfdump/internal/core/domain"
	"github.com/ksteptoe/sfdump/internal/core/ports/driven"
)

// Verify interface compliance.
var _ driven.Metrics = (*Metrics)(nil)

// Metrics is a driven.Metrics backed by a private registry, so several
// runs in one process never share counters.
type Metrics struct {
	registry *prometheus.Registry
	path     string

	results       *prometheus.CounterVec
	bytes         *prometheus.CounterVec
	attempts      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	listed        *prometheus.GaugeVec
	listDuration  *prometheus.HistogramVec
	lastFlushTime prometheus.Gauge
}

// FileName returns the textfile name for a chunk label, e.g. "metrics-2of7.prom".
func FileName(chunk string) string {
	return "metrics-" + chunk + ".prom"
}

// New creates metrics flushed to path. The chunk label is attached to
// every series.
func New(path, chunk string) *Metrics {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"chunk": chunk}
	factory := promauto.With(prometheus.WrapRegistererWith(labels, reg))

	return &Metrics{
		registry: reg,
		path:     path,
		results: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sfdump_results_total",
			Help: "Materialization results by kind, status and failure reason",
		}, []string{"kind", "status", "reason"}),
		bytes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sfdump_downloaded_bytes_total",
			Help: "Bytes written by successful downloads",
		}, []string{"kind"}),
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sfdump_fetch_attempts_total",
			Help: "Fetches made against the source",
		}, []string{"kind"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sfdump_materialize_duration_seconds",
			Help:    "Time spent materializing one record",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"kind", "status"}),
		listed: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sfdump_listed_records",
			Help: "Records returned by the most recent listing",
		}, []string{"kind"}),
		listDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sfdump_listing_duration_seconds",
			Help:    "Time spent listing records",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		lastFlushTime: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sfdump_last_flush_timestamp_seconds",
			Help: "Unix time the metrics file was last written",
		}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Path returns the textfile path.
func (m *Metrics) Path() string {
	return m.path
}

// ObserveResult records one materialization.
func (m *Metrics) ObserveResult(res domain.DownloadResult, elapsed time.Duration) {
	kind := string(res.Kind)
	m.results.WithLabelValues(kind, string(res.Status), string(res.Reason)).Inc()
	m.attempts.WithLabelValues(kind).Add(float64(res.Attempts))
	m.duration.WithLabelValues(kind, string(res.Status)).Observe(elapsed.Seconds())
	if res.Status == domain.StatusDownloaded {
		m.bytes.WithLabelValues(kind).Add(float64(res.Bytes))
	}
}

// ObserveListing records one listing.
func (m *Metrics) ObserveListing(kind domain.SourceKind, n int, elapsed time.Duration) {
	m.listed.WithLabelValues(string(kind)).Set(float64(n))
	m.listDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

// Flush writes the registry to the textfile, replacing it atomically.
func (m *Metrics) Flush() error {
	if m.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("creating metrics dir: %w", err)
	}
	m.lastFlushTime.SetToCurrentTime()
	if err := prometheus.WriteToTextfile(m.path, m.registry); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(m.path), err)
	}
	return nil
}
