// Package producer validates incoming activity events and hands them to the
// broker.
package producer

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/domain"
	"github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/queue"
)

// DefaultPublishTimeout bounds how long a request waits for a broker confirm.
const DefaultPublishTimeout = 5 * time.Second

// Publisher hands a payload to the broker.
type Publisher interface {
	Publish(ctx context.Context, queueName string, payload []byte, persistent bool, opts ...queue.PublishOption) error
}

// Option configures optional behaviour for the Service.
type Option func(*Service)

// WithLogger overrides the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithPublishTimeout overrides the publish timeout.
func WithPublishTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// Service turns raw request bodies into queued events.
type Service struct {
	publisher Publisher
	queueName string
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewService constructs a Service publishing to queueName.
func NewService(publisher Publisher, queueName string, opts ...Option) *Service {
	s := &Service{
		publisher: publisher,
		queueName: queueName,
		timeout:   DefaultPublishTimeout,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TrackEvent validates raw and publishes its canonical form as a persistent
// message. It returns *domain.ValidationError for bad input, in which case
// nothing is published, and *queue.PublishError when the broker did not
// accept the message. A nil error means the broker confirmed the message.
func (s *Service) TrackEvent(ctx context.Context, raw []byte) (domain.ActivityEvent, error) {
	event, err := domain.ParseActivityEvent(raw)
	if err != nil {
		eventsCounter.WithLabelValues(outcomeRejected).Inc()
		return domain.ActivityEvent{}, err
	}

	payload, err := domain.EncodeEvent(event)
	if err != nil {
		eventsCounter.WithLabelValues(outcomeFailed).Inc()
		return domain.ActivityEvent{}, &queue.PublishError{Queue: s.queueName, Err: err}
	}

	publishCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.publisher.Publish(publishCtx, s.queueName, payload, true); err != nil {
		eventsCounter.WithLabelValues(outcomeFailed).Inc()
		s.logger.Error().Err(err).
			Int64("user_id", event.UserID).
			Str("event_type", event.EventType).
			Msg("failed to publish event")

		var publishErr *queue.PublishError
		if !errors.As(err, &publishErr) {
			err = &queue.PublishError{Queue: s.queueName, Err: err}
		}
		return domain.ActivityEvent{}, err
	}

	eventsCounter.WithLabelValues(outcomeAccepted).Inc()
	s.logger.Info().
		Int64("user_id", event.UserID).
		Str("event_type", event.EventType).
		Msg("event published")
	return event, nil
}
