package consumer

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeAcked     = "acked"
	outcomeRequeued  = "requeued"
	outcomeParked    = "parked"
	outcomeAckFailed = "ack_failed"
)

var messagesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "activity_pipeline",
	Subsystem: "consumer",
	Name:      "messages_total",
	Help:      "Deliveries handled by the consumer grouped by outcome.",
}, []string{"outcome"})

func init() {
	prometheus.MustRegister(messagesCounter)
}

func recordOutcome(outcome string) {
	messagesCounter.WithLabelValues(outcome).Inc()
}
