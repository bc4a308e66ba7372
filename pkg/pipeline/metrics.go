package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the linking pipeline.
type Metrics struct {
	EmailsProcessedTotal    *prometheus.CounterVec
	ProcessingSeconds       prometheus.Histogram
	MatchCandidatesTotal    prometheus.Counter
	MatchConfidence         *prometheus.HistogramVec
	LinksWrittenTotal       *prometheus.CounterVec
	SuggestionsCreatedTotal *prometheus.CounterVec
	QueueDepth              *prometheus.GaugeVec
	DLQItemsTotal           *prometheus.CounterVec
}

// DefaultMetrics creates metrics registered on the default registerer.
func DefaultMetrics() *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer)
}

// NewMetrics creates a new set of linking pipeline metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EmailsProcessedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linking_emails_processed_total",
				Help: "Total emails run through the matcher",
			},
			[]string{"status"},
		),
		ProcessingSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "linking_processing_seconds",
				Help:    "Per-email processing latency",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
		),
		MatchCandidatesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "linking_match_candidates_total",
				Help: "Total match candidates produced",
			},
		),
		MatchConfidence: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "linking_match_confidence",
				Help:    "Match candidate confidence scores",
				Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 1.0},
			},
			[]string{"entity_type"},
		),
		LinksWrittenTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linking_links_written_total",
				Help: "Total email-to-entity links written",
			},
			[]string{"method"},
		),
		SuggestionsCreatedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linking_suggestions_created_total",
				Help: "Total field suggestions created",
			},
			[]string{"field"},
		),
		QueueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "linking_queue_depth",
				Help: "Current work queue depth",
			},
			[]string{"queue"},
		),
		DLQItemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linking_dlq_items_total",
				Help: "Total items moved to the dead letter queue",
			},
			[]string{"queue", "reason"},
		),
	}
}

// RecordProcessed records a processed email.
func (m *Metrics) RecordProcessed(status string, seconds float64) {
	m.EmailsProcessedTotal.WithLabelValues(status).Inc()
	m.ProcessingSeconds.Observe(seconds)
}

// RecordCandidate records one match candidate.
func (m *Metrics) RecordCandidate(entityType string, confidence float64) {
	m.MatchCandidatesTotal.Inc()
	m.MatchConfidence.WithLabelValues(entityType).Observe(confidence)
}

// RecordLink records a written link.
func (m *Metrics) RecordLink(method string) {
	m.LinksWrittenTotal.WithLabelValues(method).Inc()
}

// RecordSuggestion records a created suggestion.
func (m *Metrics) RecordSuggestion(field string) {
	m.SuggestionsCreatedTotal.WithLabelValues(field).Inc()
}

// SetQueueDepth sets the current depth for a queue.
func (m *Metrics) SetQueueDepth(queue string, depth float64) {
	m.QueueDepth.WithLabelValues(queue).Set(depth)
}

// RecordDLQItem records an item moved to the dead letter queue.
func (m *Metrics) RecordDLQItem(queue, reason string) {
	m.DLQItemsTotal.WithLabelValues(queue, reason).Inc()
}
