package kafka

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultOK      = "ok"
	resultFailed  = "failed"
	resultSkipped = "skipped"
)

var (
	consumedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_consumed_messages_total",
			Help: "Kafka messages handled by a consumer, by result",
		},
		[]string{"topic", "group", "result"},
	)

	publishedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_published_messages_total",
			Help: "Kafka publish attempts, by result",
		},
		[]string{"topic", "result"},
	)

	handleSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_operation_duration_seconds",
			Help:    "Time spent publishing or handling a Kafka message",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"topic", "operation"},
	)
)

func observeConsumed(topic, group, result string, started time.Time) {
	consumedMessages.WithLabelValues(topic, group, result).Inc()
	handleSeconds.WithLabelValues(topic, "consume").Observe(time.Since(started).Seconds())
}

func observePublished(topic, result string, started time.Time) {
	publishedMessages.WithLabelValues(topic, result).Inc()
	handleSeconds.WithLabelValues(topic, "publish").Observe(time.Since(started).Seconds())
}
