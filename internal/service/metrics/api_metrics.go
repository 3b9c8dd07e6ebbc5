package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	APILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "polyedge",
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Latency of strategy endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	APIErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "polyedge",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Errors by strategy endpoint",
		},
		[]string{"endpoint"},
	)

	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "polyedge",
			Subsystem: "api",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		},
		[]string{"endpoint"},
	)

	FeedClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "polyedge",
			Subsystem: "feed",
			Name:      "clients",
			Help:      "Connected decision feed websocket clients",
		},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(APILatency, APIErrors, RateLimited, FeedClients)
	})
}
