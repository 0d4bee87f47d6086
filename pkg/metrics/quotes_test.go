package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestQuoteMetricsCountsTransitionsAndConversions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewQuoteMetrics(reg)

	m.ObserveTransition("sent", "accepted")
	m.ObserveTransition("sent", "accepted")
	m.ObserveConversion(ConversionOutcomeCreated)
	m.ObserveConversion(ConversionOutcomeAlreadyConverted)
	m.IncRevision()

	mfs, err := reg.Gather()
	require.NoError(t, err)

	mf := findMetricFamily(mfs, "portal_quote_transitions_total")
	require.NotNil(t, mf)
	require.Len(t, mf.GetMetric(), 1)
	metric := mf.GetMetric()[0]
	require.True(t, matchesLabel(metric.GetLabel(), "from", "sent"))
	require.True(t, matchesLabel(metric.GetLabel(), "to", "accepted"))
	require.Equal(t, float64(2), metric.GetCounter().GetValue())

	created, err := fetchCounterValue(mfs, "portal_quote_conversions_total", "outcome", ConversionOutcomeCreated)
	require.NoError(t, err)
	require.Equal(t, float64(1), created)

	repeated, err := fetchCounterValue(mfs, "portal_quote_conversions_total", "outcome", ConversionOutcomeAlreadyConverted)
	require.NoError(t, err)
	require.Equal(t, float64(1), repeated)

	revisions := findMetricFamily(mfs, "portal_quote_revisions_total")
	require.NotNil(t, revisions)
	require.Equal(t, float64(1), revisions.GetMetric()[0].GetCounter().GetValue())
}

func TestQuoteMetricsNilSafe(t *testing.T) {
	var m *QuoteMetrics
	m.ObserveTransition("draft", "sent")
	m.ObserveConversion(ConversionOutcomeRejected)
	m.IncRevision()

	unregistered := NewQuoteMetrics(nil)
	unregistered.ObserveTransition("draft", "sent")
}
