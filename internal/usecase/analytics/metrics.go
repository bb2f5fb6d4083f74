package analytics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsAggregated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_events_aggregated_total",
			Help: "Total number of delivery and engagement events aggregated by type",
		},
		[]string{"type"},
	)

	// eventsDropped counts events lost because the buffer was full.
	eventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "analytics_events_dropped_total",
			Help: "Total number of analytics events dropped because the buffer was full",
		},
	)

	samplesFlushed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "analytics_samples_flushed_total",
			Help: "Total number of analytics samples written",
		},
	)
)
