package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Served       *prometheus.CounterVec
	ServedCached *prometheus.CounterVec
	Syntheses    *prometheus.CounterVec
}

func InitializeMetrics(registry prometheus.Registerer, constLabels prometheus.Labels) *Metrics {
	metrics := &Metrics{
		Served: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "images_served_total",
			Help:        "Number of image requests by outcome",
			ConstLabels: constLabels,
		}, []string{"source", "outcome"}), // source is path or frame, never the path itself
		ServedCached: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "variants_served_total",
			Help:        "Number of scaled variants served by cache place",
			ConstLabels: constLabels,
		}, []string{"place"}),
		Syntheses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "frame_syntheses_total",
			Help:        "Number of attempts to extract a missing frame from video",
			ConstLabels: constLabels,
		}, []string{"result"}),
	}

	registry.MustRegister(metrics.Served)
	registry.MustRegister(metrics.ServedCached)
	registry.MustRegister(metrics.Syntheses)

	return metrics
}

// Nop returns metrics registered against a throwaway registry.
func Nop() (*Metrics, *PerformanceMetrics) {
	registry := prometheus.NewRegistry()
	return InitializeMetrics(registry, nil), InitializePerformanceMetrics(registry, nil)
}
