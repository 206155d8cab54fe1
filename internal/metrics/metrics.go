package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for the scheduling core.
//
// All metrics are prefixed with "chronos_":
//   - chronos_suggestions_total{source} - suggestions returned, by strategy
//   - chronos_ai_failures_total{class} - soft AI failures, by error class
//   - chronos_ai_duration_seconds - AI generator latency
//   - chronos_feedback_total - feedback events processed
//   - chronos_insights_total{type} - insights derived from feedback
//   - chronos_pattern_runs_total - pattern analysis runs
//   - chronos_persistence_failures_total{store} - failed writes
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	SuggestionsTotal         *prometheus.CounterVec
	AIFailuresTotal          *prometheus.CounterVec
	AIDuration               prometheus.Histogram
	FeedbackTotal            prometheus.Counter
	InsightsTotal            *prometheus.CounterVec
	PatternRunsTotal         prometheus.Counter
	PersistenceFailuresTotal *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SuggestionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chronos_suggestions_total",
				Help: "Total schedule suggestions returned, by strategy",
			},
			[]string{"source"}, // "ai" or "fallback"
		),
		AIFailuresTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chronos_ai_failures_total",
				Help: "Total soft failures of the AI suggestion generator",
			},
			[]string{"class"}, // "timeout", "unavailable", "malformed", "error"
		),
		AIDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chronos_ai_duration_seconds",
				Help:    "Duration of AI suggestion requests in seconds",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
			},
		),
		FeedbackTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "chronos_feedback_total",
				Help: "Total feedback events processed",
			},
		),
		InsightsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chronos_insights_total",
				Help: "Total insights derived from feedback",
			},
			[]string{"type"},
		),
		PatternRunsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "chronos_pattern_runs_total",
				Help: "Total pattern analysis runs",
			},
		),
		PersistenceFailuresTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chronos_persistence_failures_total",
				Help: "Total failed writes to the learning store or task store",
			},
			[]string{"store"}, // "patterns", "feedback", "insights", "tasks"
		),
	}
}

// RecordSuggestion counts a returned suggestion.
func (m *Metrics) RecordSuggestion(source string) {
	if m == nil {
		return
	}
	m.SuggestionsTotal.WithLabelValues(source).Inc()
}

// RecordAIFailure counts a soft AI failure.
func (m *Metrics) RecordAIFailure(class string) {
	if m == nil {
		return
	}
	m.AIFailuresTotal.WithLabelValues(class).Inc()
}

// ObserveAI records AI generator latency.
func (m *Metrics) ObserveAI(d time.Duration) {
	if m == nil {
		return
	}
	m.AIDuration.Observe(d.Seconds())
}

// RecordFeedback counts a processed feedback event and its insights.
func (m *Metrics) RecordFeedback(insightTypes []string) {
	if m == nil {
		return
	}
	m.FeedbackTotal.Inc()
	for _, t := range insightTypes {
		m.InsightsTotal.WithLabelValues(t).Inc()
	}
}

// RecordPatternRun counts a pattern analysis run.
func (m *Metrics) RecordPatternRun() {
	if m == nil {
		return
	}
	m.PatternRunsTotal.Inc()
}

// RecordPersistenceFailure counts a failed write.
func (m *Metrics) RecordPersistenceFailure(store string) {
	if m == nil {
		return
	}
	m.PersistenceFailuresTotal.WithLabelValues(store).Inc()
}
