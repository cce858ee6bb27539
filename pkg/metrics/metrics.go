// Package metrics defines the Prometheus collectors recorded by an index
// build and writes them out in node-exporter textfile format, since a build
// is a batch job that exits before anything could scrape it.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Commit status label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Metrics holds all Prometheus collectors for a build.
type Metrics struct {
	DocsIndexedTotal  prometheus.Counter
	FilesSkippedTotal prometheus.Counter
	BuildDuration     prometheus.Histogram
	CommitsTotal      *prometheus.CounterVec
	SegmentTerms      prometheus.Gauge
	SegmentDocuments  prometheus.Gauge
	SegmentBytes      prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them on reg. A nil reg gets a
// fresh registry so repeated calls never collide.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "textindex_documents_indexed_total",
				Help: "Total documents submitted to the index builder.",
			},
		),
		FilesSkippedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "textindex_files_skipped_total",
				Help: "Total input files skipped because they could not be read.",
			},
		),
		BuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "textindex_build_duration_seconds",
				Help:    "Wall time of a complete index build in seconds.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
			},
		),
		CommitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "textindex_commits_total",
				Help: "Total segment commits by status (success, failure).",
			},
			[]string{"status"},
		),
		SegmentTerms: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "textindex_segment_terms",
				Help: "Number of distinct terms in the last committed segment.",
			},
		),
		SegmentDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "textindex_segment_documents",
				Help: "Number of documents in the last committed segment.",
			},
		),
		SegmentBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "textindex_segment_bytes",
				Help: "Size in bytes of the last committed segment file.",
			},
		),
		gatherer: reg,
	}

	reg.MustRegister(
		m.DocsIndexedTotal,
		m.FilesSkippedTotal,
		m.BuildDuration,
		m.CommitsTotal,
		m.SegmentTerms,
		m.SegmentDocuments,
		m.SegmentBytes,
	)

	return m
}

// ObserveCommit records a successful commit of a segment.
func (m *Metrics) ObserveCommit(docs, terms int, bytes int64) {
	m.CommitsTotal.WithLabelValues(StatusSuccess).Inc()
	m.SegmentDocuments.Set(float64(docs))
	m.SegmentTerms.Set(float64(terms))
	m.SegmentBytes.Set(float64(bytes))
}

// Gatherer exposes the registry the collectors live on.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.gatherer
}

// WriteTextfile writes every registered metric to path. The file is
// replaced atomically by the Prometheus client.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.gatherer); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
