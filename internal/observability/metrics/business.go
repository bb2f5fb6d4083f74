package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PreferenceCacheTotal counts preference cache lookups by result (hit, miss, error).
	PreferenceCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preference_cache_lookups_total",
			Help: "Total number of preference cache lookups by result",
		},
		[]string{"result"},
	)

	// TemplatesSeededTotal counts system templates created from the embedded catalogue.
	TemplatesSeededTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "templates_seeded_total",
			Help: "Total number of system templates created at startup",
		},
	)

	// BuildInfo is always 1, labelled with the running version.
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notify_dispatch_build_info",
			Help: "Build information of the running worker",
		},
		[]string{"version"},
	)
)

// Preference cache lookup results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

func RecordPreferenceCache(result string) {
	PreferenceCacheTotal.WithLabelValues(result).Inc()
}

func RecordTemplatesSeeded(n int) {
	if n > 0 {
		TemplatesSeededTotal.Add(float64(n))
	}
}

func SetBuildInfo(version string) {
	BuildInfo.WithLabelValues(version).Set(1)
}
