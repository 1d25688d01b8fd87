package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var primaryHits = promauto.NewCounter(prometheus.CounterOpts{
	Name: "screener_store_primary_hits",
	Help: "Number of reads served by the primary tier",
})

var primaryMisses = promauto.NewCounter(prometheus.CounterOpts{
	Name: "screener_store_primary_misses",
	Help: "Number of reads that fell through the primary tier",
})

var durableHits = promauto.NewCounter(prometheus.CounterOpts{
	Name: "screener_store_durable_hits",
	Help: "Number of reads served by the durable tier",
})

var durableMisses = promauto.NewCounter(prometheus.CounterOpts{
	Name: "screener_store_durable_misses",
	Help: "Number of reads that found nothing in either tier",
})

var primaryWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "screener_store_primary_write_failures",
	Help: "Number of swallowed primary tier write failures",
})
