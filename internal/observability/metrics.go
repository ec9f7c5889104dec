// Package observability holds process-wide watermark gauges and tracing
// setup shared by the pipeline services.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activityPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "activity_pipeline",
		Subsystem: "persistence",
		Name:      "last_activity_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity committed to Postgres.",
	})
	activityEventTimeGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "activity_pipeline",
		Subsystem: "persistence",
		Name:      "last_activity_event_timestamp_seconds",
		Help:      "Event timestamp carried by the most recently committed activity.",
	})
	deadLetterParkedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "activity_pipeline",
		Subsystem: "persistence",
		Name:      "last_dead_letter_parked_timestamp_seconds",
		Help:      "Unix timestamp of the most recent message parked as a dead letter.",
	})
)

func init() {
	prometheus.MustRegister(activityPersistGauge, activityEventTimeGauge, deadLetterParkedGauge)
}

// RecordActivityPersisted updates the persistence watermarks with the commit
// time and the event's own timestamp.
func RecordActivityPersisted(committedAt, eventTime time.Time) {
	if !committedAt.IsZero() {
		activityPersistGauge.Set(float64(committedAt.Unix()))
	}
	if !eventTime.IsZero() {
		activityEventTimeGauge.Set(float64(eventTime.Unix()))
	}
}

// RecordDeadLetterParked updates the parked watermark gauge.
func RecordDeadLetterParked(ts time.Time) {
	if ts.IsZero() {
		return
	}
	deadLetterParkedGauge.Set(float64(ts.Unix()))
}
