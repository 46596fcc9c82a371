// Package metrics holds the Prometheus collectors for analysis jobs and queries.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups every collector the service exports. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	AttributeDecisions *prometheus.CounterVec
	FallbackCost       prometheus.Counter
	FallbackTokens     prometheus.Counter
	ModelCalls         *prometheus.CounterVec
	FramesProcessed    prometheus.Counter
	JobsTotal          *prometheus.CounterVec
	JobDuration        prometheus.Histogram
	QueriesTotal       *prometheus.CounterVec
	QueryLatency       prometheus.Histogram
}

// New creates the collectors and registers them on registry.
func New(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{
		AttributeDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vsearch_attribute_decisions_total",
			Help: "Person attribute cascade outcomes by decision",
		}, []string{"decision"}),
		FallbackCost: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vsearch_fallback_cost_usd_total",
			Help: "Incremental spend on the fallback attribute model in USD",
		}),
		FallbackTokens: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vsearch_fallback_tokens_total",
			Help: "Tokens consumed by the fallback attribute model",
		}),
		ModelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vsearch_model_calls_total",
			Help: "External model calls by model and outcome",
		}, []string{"model", "outcome"}),
		FramesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vsearch_frames_processed_total",
			Help: "Frames run through the analysis pipeline",
		}),
		JobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vsearch_analysis_jobs_total",
			Help: "Finished analysis jobs by final status",
		}, []string{"status"}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vsearch_analysis_job_duration_seconds",
			Help:    "Wall time of analysis jobs",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		QueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vsearch_queries_total",
			Help: "Queries by primary intent and result status",
		}, []string{"intent", "status"}),
		QueryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vsearch_query_latency_seconds",
			Help:    "Query engine latency",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}

	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.AttributeDecisions, m.FallbackCost, m.FallbackTokens, m.ModelCalls,
		m.FramesProcessed, m.JobsTotal, m.JobDuration, m.QueriesTotal, m.QueryLatency,
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

func (m *Metrics) RecordDecision(decision string) {
	if m == nil {
		return
	}
	m.AttributeDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) RecordFallbackSpend(cost float64, tokens int) {
	if m == nil {
		return
	}
	m.FallbackCost.Add(cost)
	m.FallbackTokens.Add(float64(tokens))
}

func (m *Metrics) RecordModelCall(model string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ModelCalls.WithLabelValues(model, outcome).Inc()
}

func (m *Metrics) RecordFrame() {
	if m == nil {
		return
	}
	m.FramesProcessed.Inc()
}

func (m *Metrics) RecordJob(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.JobsTotal.WithLabelValues(status).Inc()
	m.JobDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) RecordQuery(intent, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(intent, status).Inc()
	m.QueryLatency.Observe(elapsed.Seconds())
}
