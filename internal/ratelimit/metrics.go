package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var scheduled = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "screener_upstream_calls",
	Help: "Number of upstream calls started through a limiter",
}, []string{"upstream"})

var rateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "screener_upstream_rate_limited",
	Help: "Number of rate limit signals received from an upstream",
}, []string{"upstream"})

var pausedWaits = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "screener_upstream_paused_waits",
	Help: "Number of calls held back by a retry-after pause",
}, []string{"upstream"})
