package producer

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeAccepted = "accepted"
	outcomeRejected = "rejected"
	outcomeFailed   = "publish_failed"
)

var eventsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "activity_pipeline",
	Subsystem: "producer",
	Name:      "events_total",
	Help:      "Tracked events grouped by outcome (accepted, rejected, publish_failed).",
}, []string{"outcome"})

func init() {
	prometheus.MustRegister(eventsCounter)
}
