package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	armed      *prometheus.CounterVec
	fired      *prometheus.CounterVec
	aborted    *prometheus.CounterVec
	violations *prometheus.CounterVec
	live       prometheus.Gauge
}

// newMetrics registers the engine collectors with reg. A nil reg creates
// unregistered collectors.
func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		armed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "abstriker",
			Name:      "monitors_armed_total",
			Help:      "Monitors armed, by side.",
		}, []string{"side"}),
		fired: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "abstriker",
			Name:      "monitors_fired_total",
			Help:      "Monitors that reached their terminal signal and ran the closure check, by side.",
		}, []string{"side"}),
		aborted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "abstriker",
			Name:      "monitors_aborted_total",
			Help:      "Monitors detached by an unrelated failure, by side.",
		}, []string{"side"}),
		violations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "abstriker",
			Name:      "violations_total",
			Help:      "Abstract member violations raised, by side.",
		}, []string{"side"}),
		live: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "abstriker",
			Name:      "live_monitors",
			Help:      "Monitors currently armed.",
		}),
	}
}
