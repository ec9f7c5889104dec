package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// fakeBroker scripts connection, channel and delivery behaviour for tests.
type fakeBroker struct {
	mu             sync.Mutex
	dials          int
	dialErrs       []error
	declared       map[string]int
	published      []amqp.Publishing
	publishErrs    []error
	channelsOpened int
	sessions       []chan amqp.Delivery
	prefetch       []int
	log            []string
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{declared: make(map[string]int)}
}

func (b *fakeBroker) dial(_, _ string) (Connection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dials++
	if len(b.dialErrs) > 0 {
		err := b.dialErrs[0]
		b.dialErrs = b.dialErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &fakeConnection{broker: b}, nil
}

func (b *fakeBroker) record(entry string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log = append(b.log, entry)
}

func (b *fakeBroker) delivery(tag uint64, body string) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: &fakeAcker{broker: b},
		DeliveryTag:  tag,
		DeliveryMode: amqp.Persistent,
		Body:         []byte(body),
	}
}

type fakeConnection struct {
	broker *fakeBroker
	closed bool
}

func (c *fakeConnection) Channel() (Channel, error) {
	if c.closed {
		return nil, amqp.ErrClosed
	}
	c.broker.mu.Lock()
	c.broker.channelsOpened++
	c.broker.mu.Unlock()
	return &fakeChannel{broker: c.broker, conn: c}, nil
}

func (c *fakeConnection) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error { return receiver }

func (c *fakeConnection) IsClosed() bool { return c.closed }

func (c *fakeConnection) Close() error {
	c.closed = true
	return nil
}

type fakeChannel struct {
	broker   *fakeBroker
	conn     *fakeConnection
	closed   bool
	confirms bool
}

func (c *fakeChannel) DeclareQueue(name string) error {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	c.broker.declared[name]++
	return nil
}

func (c *fakeChannel) Qos(prefetch int) error {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	c.broker.prefetch = append(c.broker.prefetch, prefetch)
	return nil
}

func (c *fakeChannel) EnableConfirms() error {
	c.confirms = true
	return nil
}

func (c *fakeChannel) Publish(_ context.Context, queue string, msg amqp.Publishing) error {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	if !c.confirms {
		return errors.New("channel not in confirm mode")
	}
	if len(c.broker.publishErrs) > 0 {
		err := c.broker.publishErrs[0]
		c.broker.publishErrs = c.broker.publishErrs[1:]
		if err != nil {
			c.closed = true
			return err
		}
	}
	c.broker.published = append(c.broker.published, msg)
	return nil
}

func (c *fakeChannel) Consume(context.Context, string, string) (<-chan amqp.Delivery, error) {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	if len(c.broker.sessions) == 0 {
		return nil, fmt.Errorf("no session scripted")
	}
	session := c.broker.sessions[0]
	c.broker.sessions = c.broker.sessions[1:]
	return session, nil
}

func (c *fakeChannel) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error { return receiver }

func (c *fakeChannel) IsClosed() bool { return c.closed || c.conn.closed }

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

type fakeAcker struct {
	broker *fakeBroker
}

func (a *fakeAcker) Ack(tag uint64, _ bool) error {
	a.broker.record(fmt.Sprintf("ack:%d", tag))
	return nil
}

func (a *fakeAcker) Nack(tag uint64, _ bool, requeue bool) error {
	a.broker.record(fmt.Sprintf("nack:%d:requeue=%t", tag, requeue))
	return nil
}

func (a *fakeAcker) Reject(tag uint64, requeue bool) error {
	a.broker.record(fmt.Sprintf("reject:%d:requeue=%t", tag, requeue))
	return nil
}
