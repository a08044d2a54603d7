package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CommittedSequence = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "bridge",
		Subsystem: "relay",
		Name:      "committed_block_sequence",
		Help:      "Sequence of the last Iron Fish block committed to the bridge API.",
	})
	BufferedBlocks = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "bridge",
		Subsystem: "relay",
		Name:      "buffered_blocks",
		Help:      "Connected blocks waiting for enough confirmations.",
	})
	PostedItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bridge",
		Subsystem: "relay",
		Name:      "items_total",
		Help:      "Items posted to the bridge API, by kind.",
	}, []string{"kind"})
	BreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "bridge",
		Subsystem: "relay",
		Name:      "api_breaker_state",
		Help:      "Bridge API circuit breaker state: 0 closed, 1 half-open, 2 open.",
	})
)
