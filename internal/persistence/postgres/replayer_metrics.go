package postgres

import "github.com/prometheus/client_golang/prometheus"

var (
	replayedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "activity_pipeline",
		Subsystem: "dead_letters",
		Name:      "replayed_total",
		Help:      "Number of parked messages republished to the activity queue.",
	})

	quarantinedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "activity_pipeline",
		Subsystem: "dead_letters",
		Name:      "quarantined_total",
		Help:      "Number of parked messages quarantined after exhausting replays.",
	})

	replayFailedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "activity_pipeline",
		Subsystem: "dead_letters",
		Name:      "replay_failures_total",
		Help:      "Number of replay attempts that failed and will be retried next pass.",
	})

	backlogGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "activity_pipeline",
		Subsystem: "dead_letters",
		Name:      "pending",
		Help:      "Parked messages neither replayed nor quarantined.",
	})
)

func init() {
	prometheus.MustRegister(replayedCounter, quarantinedCounter, replayFailedCounter, backlogGauge)
}
