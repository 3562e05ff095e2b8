package diagnose

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chirop_diagnose_checks_total",
			Help: "Total number of diagnostic checks by verdict",
		},
		[]string{"verdict"}, // passed, failed or skipped
	)

	runDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chirop_diagnose_run_duration_seconds",
			Help:    "Duration of a full diagnostic run in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120},
		},
	)
)
