package enrich

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var batches = promauto.NewCounter(prometheus.CounterOpts{
	Name: "screener_enrich_batches",
	Help: "Number of enrichment batches processed",
})

var earlyExits = promauto.NewCounter(prometheus.CounterOpts{
	Name: "screener_enrich_early_exits",
	Help: "Number of runs stopped before the end of their input",
})

var failedTokens = promauto.NewCounter(prometheus.CounterOpts{
	Name: "screener_enrich_failed_tokens",
	Help: "Number of tokens for which no upstream returned data",
})
