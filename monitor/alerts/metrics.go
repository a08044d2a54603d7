package alerts

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AlertStuckRequests = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "alert",
		Subsystem: "bridge",
		Name:      "stuck_requests",
		Help:      "Shows the number of bridge requests sitting in a pending status for longer than the alert threshold.",
	}, []string{"status", "source_chain", "destination_chain"})
	AlertFailedRequests = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "alert",
		Subsystem: "bridge",
		Name:      "failed_requests",
		Help:      "Shows the number of failure ledger rows per reason within the alert threshold window.",
	}, []string{"failure_reason"})
)
