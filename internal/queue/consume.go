package queue

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"

	"github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/retry"
)

// DefaultPrefetch keeps at most one unacknowledged message per consumer.
const DefaultPrefetch = 1

// Handler processes one delivery and must settle it with Ack or Nack. A
// handler that returns without settling has its message requeued.
type Handler func(ctx context.Context, msg *Message)

// Consume blocks delivering messages from queue to handler one at a time until
// ctx is cancelled. Each broker session uses a dedicated connection; when the
// session fails for any reason the client waits according to its retry policy
// and reconnects, indefinitely. The returned error is always ctx.Err().
func (c *Client) Consume(ctx context.Context, queue string, prefetch int, handler Handler) error {
	if prefetch <= 0 {
		prefetch = DefaultPrefetch
	}
	schedule := c.cfg.Retry.BackOff()

	for {
		established, err := c.consumeSession(ctx, queue, prefetch, handler)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if established {
			schedule.Reset()
		}

		delay := schedule.NextBackOff()
		reconnectCounter.WithLabelValues(queue).Inc()
		c.logger.Error().Err(err).Str("queue", queue).Dur("retry_in", delay).Msg("consumer error, reconnecting")

		if err := retry.Wait(ctx, delay); err != nil {
			return err
		}
	}
}

// consumeSession runs one broker session. established reports whether the
// consumer was registered before the session ended.
func (c *Client) consumeSession(ctx context.Context, queue string, prefetch int, handler Handler) (established bool, err error) {
	conn, err := c.dial(c.cfg.URL, c.cfg.Name+"-consumer")
	if err != nil {
		return false, &ConnectionError{Err: err}
	}
	defer func() {
		if !conn.IsClosed() {
			_ = conn.Close()
		}
	}()

	ch, err := conn.Channel()
	if err != nil {
		return false, fmt.Errorf("open channel: %w", err)
	}
	defer func() {
		if !ch.IsClosed() {
			_ = ch.Close()
		}
	}()

	if err := ch.DeclareQueue(queue); err != nil {
		return false, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := ch.Qos(prefetch); err != nil {
		return false, fmt.Errorf("set prefetch: %w", err)
	}

	closed := ch.NotifyClose(make(chan *amqp.Error, 1))
	deliveries, err := ch.Consume(ctx, queue, c.cfg.Name)
	if err != nil {
		return false, fmt.Errorf("consume %s: %w", queue, err)
	}

	c.logger.Info().Str("queue", queue).Int("prefetch", prefetch).Msg("consumer started, waiting for messages")

	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case amqpErr, ok := <-closed:
			if ok && amqpErr != nil {
				return true, fmt.Errorf("%w: %v", ErrConnectionLost, amqpErr)
			}
			return true, ErrConnectionLost
		case d, ok := <-deliveries:
			if !ok {
				return true, ErrConnectionLost
			}
			c.dispatch(ctx, queue, d, handler)
		}
	}
}

func (c *Client) dispatch(ctx context.Context, queue string, d amqp.Delivery, handler Handler) {
	msg := NewMessage(queue, d)
	ctx = otel.GetTextMapPropagator().Extract(ctx, headerCarrier(d.Headers))

	handler(ctx, msg)

	if msg.Settled() {
		return
	}
	c.logger.Warn().Str("queue", queue).Uint64("delivery_tag", d.DeliveryTag).Msg("handler returned without settling delivery, requeueing")
	if err := msg.Nack(true); err != nil && !errors.Is(err, ErrAlreadySettled) {
		c.logger.Error().Err(err).Uint64("delivery_tag", d.DeliveryTag).Msg("nack failed")
	}
}
