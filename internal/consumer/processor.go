// Package consumer turns queued activity messages into stored rows. Each
// delivery is acknowledged only after its row is committed; every failure is
// either requeued or, under the park policy, moved to the dead-letter table.
package consumer

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/domain"
	"github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/persistence/postgres"
	"github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/queue"
)

// Dead-letter policies.
const (
	PolicyRequeue = "requeue"
	PolicyPark    = "park"
)

var tracer = otel.Tracer("github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/consumer")

// Sink stores decoded events.
type Sink interface {
	Insert(ctx context.Context, event domain.ActivityEvent) (int64, error)
}

// DeadLetterSink parks messages that can never be stored.
type DeadLetterSink interface {
	Park(ctx context.Context, letter postgres.DeadLetter) (int64, error)
}

// Consumer is the blocking delivery loop the processor attaches to.
type Consumer interface {
	Consume(ctx context.Context, queueName string, prefetch int, handler queue.Handler) error
}

// ProcessingError reports why a message could not be stored. Permanent
// failures will fail again on redelivery; transient ones may not.
type ProcessingError struct {
	Permanent bool
	Err       error
}

func (e *ProcessingError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("%s processing failure: %v", kind, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// IsPermanent reports whether err carries a permanent ProcessingError.
func IsPermanent(err error) bool {
	var perr *ProcessingError
	return errors.As(err, &perr) && perr.Permanent
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithPrefetch sets how many unacknowledged deliveries the broker may push.
func WithPrefetch(prefetch int) Option {
	return func(p *Processor) {
		if prefetch > 0 {
			p.prefetch = prefetch
		}
	}
}

// WithDeadLetters enables the park policy: permanent failures are written to
// sink and then acknowledged instead of being requeued.
func WithDeadLetters(sink DeadLetterSink) Option {
	return func(p *Processor) {
		p.deadLetters = sink
	}
}

// Processor consumes one queue and writes every message to the sink.
type Processor struct {
	sink        Sink
	deadLetters DeadLetterSink
	queueName   string
	prefetch    int
	logger      zerolog.Logger
}

// NewProcessor constructs a Processor reading queueName into sink.
func NewProcessor(sink Sink, queueName string, opts ...Option) *Processor {
	p := &Processor{
		sink:      sink,
		queueName: queueName,
		prefetch:  queue.DefaultPrefetch,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Policy returns the dead-letter policy in effect.
func (p *Processor) Policy() string {
	if p.deadLetters != nil {
		return PolicyPark
	}
	return PolicyRequeue
}

// Run blocks consuming the processor's queue until ctx is cancelled.
func (p *Processor) Run(ctx context.Context, consumer Consumer) error {
	p.logger.Info().Str("queue", p.queueName).Int("prefetch", p.prefetch).Str("dead_letter_policy", p.Policy()).
		Msg("starting activity consumer")
	return consumer.Consume(ctx, p.queueName, p.prefetch, p.Handle)
}

// Handle processes and settles one delivery. Database work runs on a
// context detached from cancellation so shutdown never tears a commit; if the
// acknowledgement is lost the broker redelivers and a duplicate row results.
func (p *Processor) Handle(ctx context.Context, msg *queue.Message) {
	ctx, span := tracer.Start(ctx, "consumer.handle",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.source.name", msg.Queue),
			attribute.Bool("messaging.rabbitmq.redelivered", msg.Redelivered),
		))
	defer span.End()

	log := p.logger.With().Str("queue", msg.Queue).Uint64("delivery_tag", msg.DeliveryTag).Logger()
	work := context.WithoutCancel(ctx)

	id, event, err := p.Process(work, msg.Body)
	if err == nil {
		if ackErr := msg.Ack(); ackErr != nil {
			// row is committed; the broker will redeliver and store it again
			log.Error().Err(ackErr).Int64("activity_id", id).Msg("ack failed after commit")
			recordOutcome(outcomeAckFailed)
			return
		}
		log.Info().Int64("activity_id", id).Int64("user_id", event.UserID).Str("event_type", event.EventType).
			Bool("redelivered", msg.Redelivered).Msg("activity stored")
		recordOutcome(outcomeAcked)
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if IsPermanent(err) && p.deadLetters != nil {
		letter := postgres.DeadLetter{
			Payload:     msg.Body,
			Reason:      err.Error(),
			ReplayCount: msg.HeaderInt(queue.ReplayCountHeader),
		}
		parkedID, parkErr := p.deadLetters.Park(work, letter)
		if parkErr == nil {
			log.Warn().Err(err).Int64("dead_letter_id", parkedID).Msg("message parked")
			if ackErr := msg.Ack(); ackErr != nil {
				log.Error().Err(ackErr).Msg("ack failed after parking")
			}
			recordOutcome(outcomeParked)
			return
		}
		log.Error().Err(parkErr).Msg("parking failed, requeueing")
	}

	log.Error().Err(err).Bool("permanent", IsPermanent(err)).Msg("processing failed, requeueing")
	if nackErr := msg.Nack(true); nackErr != nil {
		log.Error().Err(nackErr).Msg("nack failed")
	}
	recordOutcome(outcomeRequeued)
}

// Process decodes body and inserts it, returning the new row id.
func (p *Processor) Process(ctx context.Context, body []byte) (int64, domain.ActivityEvent, error) {
	event, err := domain.DecodeEvent(body)
	if err != nil {
		return 0, event, &ProcessingError{Permanent: true, Err: err}
	}
	id, err := p.sink.Insert(ctx, event)
	if err != nil {
		var verr *domain.ValidationError
		return 0, event, &ProcessingError{Permanent: errors.As(err, &verr), Err: err}
	}
	return id, event, nil
}
