package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var recentHits = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "screener_coordinator_recent_hits",
	Help: "Number of lookups answered by a recent result",
}, []string{"name"})

var lockAcquired = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "screener_coordinator_locks_acquired",
	Help: "Number of fetches performed while holding the lock",
}, []string{"name"})

var waits = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "screener_coordinator_waits",
	Help: "Number of callers that waited for another lock holder",
}, []string{"name"})

var waitTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "screener_coordinator_wait_timeouts",
	Help: "Number of waiters that gave up without a result",
}, []string{"name"})

var coalesced = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "screener_coordinator_coalesced",
	Help: "Number of in-process callers sharing another call's fetch",
}, []string{"name"})

var swrHits = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "screener_swr_hits",
	Help: "Number of reads served from cache",
}, []string{"name"})

var swrMisses = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "screener_swr_misses",
	Help: "Number of reads fetched synchronously",
}, []string{"name"})

var refreshes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "screener_swr_refreshes",
	Help: "Number of background refreshes started",
}, []string{"name"})

var refreshSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "screener_swr_refresh_skipped",
	Help: "Number of reads that found a refresh already running",
}, []string{"name"})
