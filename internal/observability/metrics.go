// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pdiddy/arxiv-digest/pkg/types"
)

// Metrics holds the Prometheus collectors for pipeline runs. A nil *Metrics
// is valid and records nothing, so stages can be used without a registry.
type Metrics struct {
	// RunsTotal counts finished runs by status.
	RunsTotal *prometheus.CounterVec

	// RunDuration observes end-to-end run duration in seconds.
	RunDuration prometheus.Histogram

	// PapersFetched counts descriptors returned by the search gateway.
	PapersFetched prometheus.Counter

	// EnrichResults counts enrichment outcomes by result (ok, error).
	EnrichResults *prometheus.CounterVec

	// Classifications counts affiliation outcomes by outcome
	// (classified, unknown, failed, skipped).
	Classifications *prometheus.CounterVec

	// ReasoningCalls counts reasoning-service calls by operation and result.
	ReasoningCalls *prometheus.CounterVec

	// Selected reports the size of the last selection by filter
	// (org, topic, combined).
	Selected *prometheus.GaugeVec

	// SchedulerRunning is 1 while a run is in progress.
	SchedulerRunning prometheus.Gauge
}

// NewMetrics registers the collectors under namespace on reg. Passing
// prometheus.DefaultRegisterer exposes them on the default /metrics handler.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by terminal status.",
		}, []string{"status"}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "End-to-end pipeline run duration.",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200, 2400, 3600},
		}),
		PapersFetched: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_fetched_total",
			Help:      "Descriptors returned by arXiv searches.",
		}),
		EnrichResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrich_results_total",
			Help:      "PDF download and extraction outcomes.",
		}, []string{"result"}),
		Classifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Affiliation classification outcomes.",
		}, []string{"outcome"}),
		ReasoningCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reasoning_calls_total",
			Help:      "Reasoning service calls by operation and result.",
		}, []string{"operation", "result"}),
		Selected: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "selected_papers",
			Help:      "Records selected by the last run, per filter.",
		}, []string{"filter"}),
		SchedulerRunning: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_running",
			Help:      "1 while a pipeline run is in progress.",
		}),
	}
}

// RecordRun records a finished run.
func (m *Metrics) RecordRun(s types.RunSummary) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(string(s.Status)).Inc()
	if d := s.Duration(); d > 0 {
		m.RunDuration.Observe(d.Seconds())
	}
}

// RecordFetched adds n fetched descriptors.
func (m *Metrics) RecordFetched(n int) {
	if m == nil {
		return
	}
	m.PapersFetched.Add(float64(n))
}

// RecordEnrich records one enrichment outcome.
func (m *Metrics) RecordEnrich(ok bool) {
	if m == nil {
		return
	}
	m.EnrichResults.WithLabelValues(resultLabel(ok)).Inc()
}

// RecordClassification records one affiliation outcome.
func (m *Metrics) RecordClassification(outcome string) {
	if m == nil {
		return
	}
	m.Classifications.WithLabelValues(outcome).Inc()
}

// RecordReasoningCall records one reasoning-service call.
func (m *Metrics) RecordReasoningCall(operation string, err error) {
	if m == nil {
		return
	}
	m.ReasoningCalls.WithLabelValues(operation, resultLabel(err == nil)).Inc()
}

// RecordSelected sets the selection size for filter.
func (m *Metrics) RecordSelected(filter string, n int) {
	if m == nil {
		return
	}
	m.Selected.WithLabelValues(filter).Set(float64(n))
}

// SetRunning flips the scheduler gauge.
func (m *Metrics) SetRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.SchedulerRunning.Set(1)
		return
	}
	m.SchedulerRunning.Set(0)
}

func resultLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
