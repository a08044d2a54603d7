package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PollerHeadHeight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "bridge",
		Subsystem: "poller",
		Name:      "head_height",
		Help:      "Shows the last block height whose deposit events are fully ingested for the asset.",
	}, []string{"asset"})
	PollerIngestedRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bridge",
		Subsystem: "poller",
		Name:      "ingested_requests_total",
		Help:      "Deposit events upserted as bridge requests.",
	}, []string{"asset"})
	ConfirmationAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bridge",
		Subsystem: "confirmation",
		Name:      "attempts_total",
		Help:      "Receipt checks by job kind and outcome (pending, confirmed, failed).",
	}, []string{"kind", "outcome"})
	ConfirmationTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bridge",
		Subsystem: "confirmation",
		Name:      "timeouts_total",
		Help:      "Transactions still unconfirmed after the maximum number of receipt checks.",
	}, []string{"kind"})
)
