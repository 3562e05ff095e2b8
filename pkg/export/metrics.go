package export

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recordsExported = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chirop_export_records_total",
			Help: "Total number of power samples written to CSV files",
		},
	)

	exportDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chirop_export_duration_seconds",
			Help:    "Duration of an export run in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30},
		},
	)
)
