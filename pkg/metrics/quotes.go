package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	ConversionOutcomeCreated          = "created"
	ConversionOutcomeAlreadyConverted = "already_converted"
	ConversionOutcomeRejected         = "rejected"
)

// QuoteMetrics counts quote lifecycle activity.
type QuoteMetrics struct {
	transitions *prometheus.CounterVec
	conversions *prometheus.CounterVec
	revisions   prometheus.Counter
}

// NewQuoteMetrics registers the quote counters on the provided registerer.
func NewQuoteMetrics(reg prometheus.Registerer) *QuoteMetrics {
	if reg == nil {
		return &QuoteMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "quote_transitions_total",
		Help:      "Quote status transitions by source and target status.",
	}, []string{"from", "to"})
	conversions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "quote_conversions_total",
		Help:      "Quote to deal conversion attempts by outcome.",
	}, []string{"outcome"})
	revisions := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "quote_revisions_total",
		Help:      "Quote revisions created by cloning.",
	})
	reg.MustRegister(transitions, conversions, revisions)
	return &QuoteMetrics{
		transitions: transitions,
		conversions: conversions,
		revisions:   revisions,
	}
}

// ObserveTransition counts a committed status change.
func (q *QuoteMetrics) ObserveTransition(from, to string) {
	if q == nil || q.transitions == nil {
		return
	}
	q.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

// ObserveConversion counts a conversion attempt with the given outcome.
func (q *QuoteMetrics) ObserveConversion(outcome string) {
	if q == nil || q.conversions == nil {
		return
	}
	q.conversions.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncRevision counts a committed clone.
func (q *QuoteMetrics) IncRevision() {
	if q == nil || q.revisions == nil {
		return
	}
	q.revisions.Inc()
}
