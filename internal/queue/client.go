// Package queue is the RabbitMQ transport for activity events: durable queue
// declaration, confirmed persistent publishing over a pooled set of channels,
// and a manually acknowledged consume loop that reconnects indefinitely.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/retry"
)

// DefaultPoolSize bounds the number of publish channels open at once.
const DefaultPoolSize = 8

// Config describes how the client reaches the broker.
type Config struct {
	URL string
	// Name identifies the connection in the broker management UI.
	Name     string
	PoolSize int
	Retry    retry.Policy
}

// Option configures optional behaviour for the Client.
type Option func(*Client)

// WithLogger overrides the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDialer overrides how connections are opened.
func WithDialer(dial Dialer) Option {
	return func(c *Client) {
		c.dial = dial
	}
}

// PublishOption adjusts a single publish.
type PublishOption func(*amqp.Publishing)

// WithHeader attaches an application header to the published message.
func WithHeader(key string, value any) PublishOption {
	return func(p *amqp.Publishing) {
		p.Headers[key] = value
	}
}

// Client owns one publishing connection and a pool of confirm-mode channels.
// It is safe for concurrent use.
type Client struct {
	cfg    Config
	dial   Dialer
	logger zerolog.Logger
	tracer trace.Tracer

	mu     sync.Mutex
	conn   Connection
	closed bool
	idle   chan Channel
	// slots holds one token per checked-out channel.
	slots chan struct{}
}

// New constructs a Client. No connection is opened until first use.
func New(cfg Config, opts ...Option) *Client {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultPoolSize
	}
	if cfg.Retry == (retry.Policy{}) {
		cfg.Retry = retry.DefaultPolicy()
	}
	c := &Client{
		cfg:    cfg,
		dial:   DialAMQP,
		logger: zerolog.Nop(),
		tracer: otel.Tracer("github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/queue"),
		idle:   make(chan Channel, cfg.PoolSize),
		slots:  make(chan struct{}, cfg.PoolSize),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnsureQueue declares name as a durable queue. Declaring an existing durable
// queue is a no-op on the broker.
func (c *Client) EnsureQueue(name string) error {
	ch, err := c.checkout(context.Background())
	if err != nil {
		return err
	}
	if err := ch.DeclareQueue(name); err != nil {
		c.checkin(ch, false)
		return err
	}
	c.checkin(ch, true)
	return nil
}

// Publish sends payload to queue through the default exchange and waits for
// the broker to confirm it. persistent marks the message to survive a broker
// restart. Every failure is reported as *PublishError.
func (c *Client) Publish(ctx context.Context, queue string, payload []byte, persistent bool, opts ...PublishOption) (err error) {
	ctx, span := c.tracer.Start(ctx, "queue.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination.name", queue),
		))
	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			publishedCounter.WithLabelValues(queue, "failed").Inc()
			err = &PublishError{Queue: queue, Err: err}
		} else {
			publishedCounter.WithLabelValues(queue, "confirmed").Inc()
			publishDuration.WithLabelValues(queue).Observe(time.Since(start).Seconds())
		}
		span.End()
	}()

	ch, err := c.checkout(ctx)
	if err != nil {
		return err
	}

	if err = ch.DeclareQueue(queue); err != nil {
		c.checkin(ch, false)
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Headers:      amqp.Table{},
		Body:         payload,
	}
	if persistent {
		msg.DeliveryMode = amqp.Persistent
	}
	for _, opt := range opts {
		opt(&msg)
	}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier(msg.Headers))
	span.SetAttributes(attribute.String("messaging.message.id", msg.MessageId))

	if err = ch.Publish(ctx, queue, msg); err != nil {
		c.checkin(ch, false)
		return err
	}
	c.checkin(ch, true)
	return nil
}

// Close releases pooled channels and the publishing connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
drain:
	for {
		select {
		case ch := <-c.idle:
			if !ch.IsClosed() {
				errs = append(errs, ch.Close())
			}
		default:
			break drain
		}
	}
	if c.conn != nil && !c.conn.IsClosed() {
		errs = append(errs, c.conn.Close())
	}
	c.conn = nil
	return errors.Join(errs...)
}

// checkout returns an idle channel or opens a new confirm-mode channel. At
// most PoolSize channels are checked out at once; further callers wait for a
// checkin or for ctx to end. A missing or broken connection is dialled exactly
// once; callers on the request path must not wait on the reconnect loop.
func (c *Client) checkout(ctx context.Context) (ch Channel, err error) {
	select {
	case c.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() {
		if err != nil {
			<-c.slots
		}
	}()

reuse:
	for {
		select {
		case pooled := <-c.idle:
			if !pooled.IsClosed() {
				return pooled, nil
			}
		default:
			break reuse
		}
	}

	conn, err := c.connection()
	if err != nil {
		return nil, err
	}
	ch, err = conn.Channel()
	if err != nil {
		return nil, err
	}
	if err = ch.EnableConfirms(); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return ch, nil
}

// checkin returns a healthy channel to the pool; anything else is closed.
// Either way the caller's slot is released.
func (c *Client) checkin(ch Channel, healthy bool) {
	defer func() { <-c.slots }()

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()

	if !healthy || closed || ch.IsClosed() {
		if !ch.IsClosed() {
			_ = ch.Close()
		}
		return
	}
	select {
	case c.idle <- ch:
	default:
		_ = ch.Close()
	}
}

func (c *Client) connection() (Connection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClientClosed
	}
	if c.conn != nil && !c.conn.IsClosed() {
		return c.conn, nil
	}

	conn, err := c.dial(c.cfg.URL, c.cfg.Name)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}
	c.conn = conn
	c.logger.Info().Str("connection", c.cfg.Name).Msg("connected to broker")
	return conn, nil
}
