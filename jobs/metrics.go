package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProcessedJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bridge",
		Subsystem: "jobs",
		Name:      "processed_total",
		Help:      "Processed jobs by kind and result.",
	}, []string{"kind", "result"})

	JobDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bridge",
		Subsystem: "jobs",
		Name:      "duration_seconds",
		Help:      "Job handler latency.",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"kind"})
)
