package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Failures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bridge",
		Name:      "failures_total",
		Help:      "Failure ledger rows by reason.",
	}, []string{"reason"})

	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bridge",
		Name:      "transitions_total",
		Help:      "Applied bridge request status changes by target status.",
	}, []string{"status"})
)
