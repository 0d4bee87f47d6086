package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutboxOutcomePublished    = "published"
	OutboxOutcomeRetry        = "retry"
	OutboxOutcomeDeadLettered = "dead_lettered"
)

// OutboxMetrics records what the outbox publisher did with each row.
type OutboxMetrics struct {
	events  *prometheus.CounterVec
	batches prometheus.Histogram
}

// NewOutboxMetrics registers the publisher metrics on reg. A nil registerer
// yields a recorder that drops every observation.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "outbox",
		Name:      "events_total",
		Help:      "Outbox rows handled by the publisher, by event type and outcome.",
	}, []string{"event_type", "outcome"})
	batches := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time spent locking, publishing and settling one batch.",
		Buckets:   prometheus.DefBuckets,
	})
	reg.MustRegister(events, batches)
	return &OutboxMetrics{events: events, batches: batches}
}

// ObserveEvent counts one settled row.
func (o *OutboxMetrics) ObserveEvent(eventType, outcome string) {
	if o == nil || o.events == nil {
		return
	}
	o.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// ObserveBatch records the wall time of a non-empty batch.
func (o *OutboxMetrics) ObserveBatch(d time.Duration) {
	if o == nil || o.batches == nil {
		return
	}
	o.batches.Observe(d.Seconds())
}
