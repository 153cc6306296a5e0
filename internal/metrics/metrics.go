// Package metrics counts pipeline activity with Prometheus collectors.
//
// A Recorder is a pipeline.Observer. Batch runs write its registry to a
// node-exporter textfile; nothing here serves HTTP.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "jemnorm"

// Recorder implements pipeline.Observer with Prometheus counters.
type Recorder struct {
	registry   *prometheus.Registry
	records    *prometheus.CounterVec
	rows       prometheus.Counter
	violations *prometheus.CounterVec
	issues     *prometheus.CounterVec
}

// NewRecorder creates a Recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Records processed, by outcome.",
		}, []string{"outcome"}),
		rows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Normalized rows produced.",
		}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "violations_total",
			Help:      "Schema violations, by record kind and field.",
		}, []string{"kind", "field"}),
		issues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issues_total",
			Help:      "Non-fatal record issues, by code.",
		}, []string{"code"}),
	}
	r.registry.MustRegister(r.records, r.rows, r.violations, r.issues)
	return r
}

// RecordProcessed counts one record and its rows.
func (r *Recorder) RecordProcessed(outcome string, rows int) {
	r.records.WithLabelValues(outcome).Inc()
	r.rows.Add(float64(rows))
}

// Violation counts one schema violation.
func (r *Recorder) Violation(kind, field string) {
	r.violations.WithLabelValues(kind, field).Inc()
}

// Issue counts one record issue.
func (r *Recorder) Issue(code string) {
	r.issues.WithLabelValues(code).Inc()
}

// Registry exposes the collectors, e.g. for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteFile writes the counters in text exposition format. The file is
// written to a temporary name and renamed, so collectors never read a
// partial file.
func (r *Recorder) WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
