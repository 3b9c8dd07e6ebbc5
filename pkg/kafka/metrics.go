package kafka

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type clientMetrics struct {
	published    *prometheus.CounterVec
	publishBytes *prometheus.CounterVec
	publishTime  *prometheus.HistogramVec

	consumed   *prometheus.CounterVec
	handleTime *prometheus.HistogramVec
	backlog    *prometheus.GaugeVec
}

var (
	metricsOnce sync.Once
	metrics     *clientMetrics
)

// sharedMetrics registers the Kafka collectors on the default registry the
// first time a producer or consumer is built.
func sharedMetrics() *clientMetrics {
	metricsOnce.Do(func() { metrics = newClientMetrics(prometheus.DefaultRegisterer) })
	return metrics
}

func newClientMetrics(reg prometheus.Registerer) *clientMetrics {
	f := promauto.With(reg)
	return &clientMetrics{
		published: f.NewCounterVec(prometheus.CounterOpts{
			Name: "polyedge_kafka_published_total",
			Help: "Messages written to Kafka by topic and result.",
		}, []string{"topic", "result"}),
		publishBytes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "polyedge_kafka_published_bytes_total",
			Help: "Payload bytes written to Kafka.",
		}, []string{"topic"}),
		publishTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "polyedge_kafka_publish_seconds",
			Help:    "Kafka write latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"}),
		consumed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "polyedge_kafka_consumed_total",
			Help: "Messages consumed by topic and outcome (ok, dead_lettered, failed).",
		}, []string{"topic", "outcome"}),
		handleTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "polyedge_kafka_handle_seconds",
			Help:    "Time spent handling one message, retries included.",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"}),
		backlog: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "polyedge_kafka_worker_backlog",
			Help: "Fetched messages waiting for a worker.",
		}, []string{"worker"}),
	}
}

func (m *clientMetrics) observePublish(topic string, bytes, count int, took time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.published.WithLabelValues(topic, result).Add(float64(count))
	m.publishBytes.WithLabelValues(topic).Add(float64(bytes))
	m.publishTime.WithLabelValues(topic).Observe(took.Seconds())
}
