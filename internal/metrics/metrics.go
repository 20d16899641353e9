// Package metrics exposes pipeline counters and timings to Prometheus.
//
// Every method is safe to call on a nil *Collector so packages can be used
// without metrics in tests and tools.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stream labels.
const (
	StreamPublic    = "public"
	StreamProtected = "protected"
)

// Archive outcomes.
const (
	ArchivePublished = "published"
	ArchiveUnchanged = "unchanged"
	ArchiveFailed    = "failed"
)

// Collector holds all pipeline metrics.
type Collector struct {
	// Processing
	BatchesTotal         *prometheus.CounterVec
	BatchDuration        *prometheus.HistogramVec
	ObservationsStored   *prometheus.CounterVec
	ObservationsInvalid  *prometheus.CounterVec
	ObservationsDiffused *prometheus.CounterVec
	ActiveBatches        *prometheus.GaugeVec

	// Export
	ArchivesTotal  *prometheus.CounterVec
	ArchiveBuild   *prometheus.HistogramVec
	FragmentRows   *prometheus.CounterVec
	CycleDuration  prometheus.Histogram
	LastCycleEnded prometheus.Gauge

	// Reports
	ReportsTotal   *prometheus.CounterVec
	ReportDuration prometheus.Histogram
}

// NewCollector registers the pipeline metrics with reg.
func NewCollector(reg prometheus.Registerer, namespace string) *Collector {
	f := promauto.With(reg)
	return &Collector{
		BatchesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_total",
				Help:      "Processed verbatim batches by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		BatchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_duration_seconds",
				Help:      "Time to fetch, map, validate and store one batch",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"provider"},
		),
		ObservationsStored: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "observations_stored_total",
				Help:      "Stored observations by provider and stream",
			},
			[]string{"provider", "stream"},
		),
		ObservationsInvalid: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "observations_invalid_total",
				Help:      "Observations dropped by validation or mapping",
			},
			[]string{"provider"},
		),
		ObservationsDiffused: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "observations_diffused_total",
				Help:      "Protected observations diffused into the public stream",
			},
			[]string{"provider"},
		),
		ActiveBatches: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_batches",
				Help:      "Batches currently holding a processing slot",
			},
			[]string{"provider"},
		),
		ArchivesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "archives_total",
				Help:      "Built archives by identifier and outcome",
			},
			[]string{"archive", "outcome"},
		),
		ArchiveBuild: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "archive_build_seconds",
				Help:      "Time to merge fragments into an archive",
				Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"archive"},
		),
		FragmentRows: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fragment_rows_total",
				Help:      "Rows appended to archive fragments by part",
			},
			[]string{"part"},
		),
		CycleDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cycle_duration_seconds",
				Help:      "Duration of a full publishing cycle",
				Buckets:   []float64{10, 30, 60, 300, 600, 1800, 3600, 7200},
			},
		),
		LastCycleEnded: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_cycle_end_timestamp_seconds",
				Help:      "Unix time the last publishing cycle ended",
			},
		),
		ReportsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reports_total",
				Help:      "Validation reports by outcome",
			},
			[]string{"outcome"},
		),
		ReportDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "report_duration_seconds",
				Help:      "Time to build a validation report",
				Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
		),
	}
}

// RecordBatch records one finished batch.
func (c *Collector) RecordBatch(provider string, d time.Duration, err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	c.BatchesTotal.WithLabelValues(provider, outcome).Inc()
	c.BatchDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordStored adds n stored observations on a stream.
func (c *Collector) RecordStored(provider, stream string, n int) {
	if c == nil || n == 0 {
		return
	}
	c.ObservationsStored.WithLabelValues(provider, stream).Add(float64(n))
}

// RecordInvalid adds n dropped observations.
func (c *Collector) RecordInvalid(provider string, n int) {
	if c == nil || n == 0 {
		return
	}
	c.ObservationsInvalid.WithLabelValues(provider).Add(float64(n))
}

// RecordDiffused adds n diffused observations.
func (c *Collector) RecordDiffused(provider string, n int) {
	if c == nil || n == 0 {
		return
	}
	c.ObservationsDiffused.WithLabelValues(provider).Add(float64(n))
}

// SetActiveBatches sets the in-flight batch gauge.
func (c *Collector) SetActiveBatches(provider string, n int) {
	if c == nil {
		return
	}
	c.ActiveBatches.WithLabelValues(provider).Set(float64(n))
}

// RecordArchive records the outcome of one archive build.
func (c *Collector) RecordArchive(archive, outcome string, build time.Duration) {
	if c == nil {
		return
	}
	c.ArchivesTotal.WithLabelValues(archive, outcome).Inc()
	if build > 0 {
		c.ArchiveBuild.WithLabelValues(archive).Observe(build.Seconds())
	}
}

// RecordFragmentRows adds rows written to a fragment part.
func (c *Collector) RecordFragmentRows(part string, n int) {
	if c == nil || n == 0 {
		return
	}
	c.FragmentRows.WithLabelValues(part).Add(float64(n))
}

// RecordCycle records a finished publishing cycle.
func (c *Collector) RecordCycle(d time.Duration, end time.Time) {
	if c == nil {
		return
	}
	c.CycleDuration.Observe(d.Seconds())
	c.LastCycleEnded.Set(float64(end.Unix()))
}

// RecordReport records a finished report.
func (c *Collector) RecordReport(d time.Duration, err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	c.ReportsTotal.WithLabelValues(outcome).Inc()
	c.ReportDuration.Observe(d.Seconds())
}
