package tradesync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tradesUpserted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fueltracker",
		Subsystem: "tradesync",
		Name:      "trades_upserted_total",
		Help:      "Raw trade rows written by the sync engine.",
	})
	reconciliationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fueltracker",
		Subsystem: "tradesync",
		Name:      "reconciliation_failures_total",
		Help:      "Days rejected by the aggregate compare, by origin.",
	}, []string{"origin"})
)
