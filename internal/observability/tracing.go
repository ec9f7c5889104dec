package observability

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// InstallPropagator registers the W3C trace-context and baggage propagators so
// spans started by the producer continue in the consumer through AMQP headers.
// No exporter is installed; spans stay no-op until the process configures one.
func InstallPropagator() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}
