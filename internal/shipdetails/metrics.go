package shipdetails

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var scrapes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fueltracker",
	Subsystem: "shipdetails",
	Name:      "scrapes_total",
	Help:      "Registry scrape attempts by outcome.",
}, []string{"outcome"})
