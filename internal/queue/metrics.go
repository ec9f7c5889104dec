package queue

import "github.com/prometheus/client_golang/prometheus"

var (
	publishedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_pipeline",
		Subsystem: "queue",
		Name:      "publishes_total",
		Help:      "Publishes grouped by queue and outcome (confirmed, failed).",
	}, []string{"queue", "outcome"})

	publishDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "activity_pipeline",
		Subsystem: "queue",
		Name:      "publish_duration_seconds",
		Help:      "Time from channel checkout to broker confirmation.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"queue"})

	settledCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_pipeline",
		Subsystem: "queue",
		Name:      "deliveries_settled_total",
		Help:      "Deliveries settled by this process grouped by queue and settlement.",
	}, []string{"queue", "settlement"})

	reconnectCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_pipeline",
		Subsystem: "queue",
		Name:      "consumer_reconnects_total",
		Help:      "Number of times the consume loop re-established its broker session.",
	}, []string{"queue"})
)

func init() {
	prometheus.MustRegister(publishedCounter, publishDuration, settledCounter, reconnectCounter)
}
