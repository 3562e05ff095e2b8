package apply

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	applyTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chirop_apply_total",
			Help: "Total number of manifest apply attempts",
		},
		[]string{"outcome"}, // created, updated, unchanged or error
	)

	applyDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chirop_apply_duration_seconds",
			Help:    "Duration of a single manifest apply in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)
)
