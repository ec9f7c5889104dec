package queue

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Connection is the subset of *amqp.Connection used by the client.
type Connection interface {
	Channel() (Channel, error)
	NotifyClose(chan *amqp.Error) chan *amqp.Error
	IsClosed() bool
	Close() error
}

// Channel narrows *amqp.Channel to the operations the pipeline needs. Publish
// blocks until the broker confirms the message when confirms are enabled.
type Channel interface {
	DeclareQueue(name string) error
	Qos(prefetch int) error
	EnableConfirms() error
	Publish(ctx context.Context, queue string, msg amqp.Publishing) error
	Consume(ctx context.Context, queue, consumerTag string) (<-chan amqp.Delivery, error)
	NotifyClose(chan *amqp.Error) chan *amqp.Error
	IsClosed() bool
	Close() error
}

// Dialer opens a broker connection.
type Dialer func(url, name string) (Connection, error)

// DialAMQP is the production Dialer.
func DialAMQP(url, name string) (Connection, error) {
	props := amqp.NewConnectionProperties()
	if name != "" {
		props.SetClientConnectionName(name)
	}
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat:  10 * time.Second,
		Locale:     "en_US",
		Properties: props,
	})
	if err != nil {
		return nil, err
	}
	return &amqpConnection{conn: conn}, nil
}

type amqpConnection struct {
	conn *amqp.Connection
}

func (c *amqpConnection) Channel() (Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}
	return &amqpChannel{ch: ch}, nil
}

func (c *amqpConnection) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	return c.conn.NotifyClose(receiver)
}

func (c *amqpConnection) IsClosed() bool { return c.conn.IsClosed() }

func (c *amqpConnection) Close() error { return c.conn.Close() }

type amqpChannel struct {
	ch *amqp.Channel
}

// DeclareQueue declares a durable, non-exclusive queue without arguments so
// repeated declarations from any service are accepted by the broker.
func (c *amqpChannel) DeclareQueue(name string) error {
	_, err := c.ch.QueueDeclare(name, true, false, false, false, nil)
	return err
}

func (c *amqpChannel) Qos(prefetch int) error {
	return c.ch.Qos(prefetch, 0, false)
}

func (c *amqpChannel) EnableConfirms() error {
	return c.ch.Confirm(false)
}

func (c *amqpChannel) Publish(ctx context.Context, queue string, msg amqp.Publishing) error {
	confirmation, err := c.ch.PublishWithDeferredConfirmWithContext(ctx, "", queue, false, false, msg)
	if err != nil {
		return err
	}
	if confirmation == nil {
		return nil
	}
	acked, err := confirmation.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !acked {
		return ErrPublishNacked
	}
	return nil
}

func (c *amqpChannel) Consume(ctx context.Context, queue, consumerTag string) (<-chan amqp.Delivery, error) {
	return c.ch.ConsumeWithContext(ctx, queue, consumerTag, false, false, false, false, nil)
}

func (c *amqpChannel) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	return c.ch.NotifyClose(receiver)
}

func (c *amqpChannel) IsClosed() bool { return c.ch.IsClosed() }

func (c *amqpChannel) Close() error { return c.ch.Close() }
