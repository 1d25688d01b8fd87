package fetcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var modified = promauto.NewCounter(prometheus.CounterOpts{
	Name: "screener_listing_modified",
	Help: "Number of listing fetches that downloaded a new body",
})

var notModified = promauto.NewCounter(prometheus.CounterOpts{
	Name: "screener_listing_not_modified",
	Help: "Number of listing fetches answered with 304",
})
