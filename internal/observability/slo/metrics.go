// Package slo publishes delivery service level indicators computed from the
// analytics report of the trailing window.
package slo

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Targets.
const (
	// DeliverySLO is the minimum share of sent messages confirmed delivered.
	DeliverySLO = 0.98

	// FailureRateSLO is the maximum share of attempts that fail.
	FailureRateSLO = 0.02
)

var (
	// SLODeliveryRatio is delivered/sent over the trailing window.
	SLODeliveryRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slo_delivery_ratio",
			Help: "Delivered/sent ratio over the trailing window, target: 0.98",
		},
	)

	// SLOFailureRate is failed/(sent+failed) over the trailing window.
	SLOFailureRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slo_failure_rate_ratio",
			Help: "Failed/attempted ratio over the trailing window, target: 0.02",
		},
	)

	// SLOBreached is 1 while either indicator misses its target.
	SLOBreached = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "slo_breached",
			Help: "1 while the indicator misses its target",
		},
		[]string{"indicator"},
	)
)

// Indicators are the computed ratios of one window.
type Indicators struct {
	DeliveryRatio float64
	FailureRate   float64
	// Measured is false when nothing was attempted in the window.
	Measured bool
}

// Compute derives the indicators from window totals.
func Compute(sent, delivered, failed int64) Indicators {
	attempted := sent + failed
	if attempted == 0 {
		return Indicators{DeliveryRatio: 1}
	}
	ind := Indicators{
		FailureRate: float64(failed) / float64(attempted),
		Measured:    true,
	}
	if sent > 0 {
		ind.DeliveryRatio = float64(delivered) / float64(sent)
	}
	return ind
}

// Update publishes the indicators of one window. Windows with no traffic
// leave the ratios untouched and clear the breach flags.
func Update(sent, delivered, failed int64) Indicators {
	ind := Compute(sent, delivered, failed)
	if !ind.Measured {
		SLOBreached.WithLabelValues("delivery").Set(0)
		SLOBreached.WithLabelValues("failure_rate").Set(0)
		return ind
	}
	SLODeliveryRatio.Set(ind.DeliveryRatio)
	SLOFailureRate.Set(ind.FailureRate)
	SLOBreached.WithLabelValues("delivery").Set(flag(ind.DeliveryRatio < DeliverySLO))
	SLOBreached.WithLabelValues("failure_rate").Set(flag(ind.FailureRate > FailureRateSLO))
	return ind
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
