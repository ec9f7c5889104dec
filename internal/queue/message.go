package queue

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// ReplayCountHeader carries how many times a parked message has been replayed.
const ReplayCountHeader = "x-activity-replays"

// Message is one broker delivery. Ack and Nack settle exactly this delivery,
// identified by its delivery tag.
type Message struct {
	Queue       string
	Body        []byte
	DeliveryTag uint64
	Persistent  bool
	Redelivered bool
	MessageID   string
	Headers     amqp.Table

	delivery amqp.Delivery
	settled  bool
}

// NewMessage wraps a delivery received from queue.
func NewMessage(queue string, d amqp.Delivery) *Message {
	return &Message{
		Queue:       queue,
		Body:        d.Body,
		DeliveryTag: d.DeliveryTag,
		Persistent:  d.DeliveryMode == amqp.Persistent,
		Redelivered: d.Redelivered,
		MessageID:   d.MessageId,
		Headers:     d.Headers,
		delivery:    d,
	}
}

// Ack removes the message from the queue.
func (m *Message) Ack() error {
	if m.settled {
		return ErrAlreadySettled
	}
	m.settled = true
	settledCounter.WithLabelValues(m.Queue, "ack").Inc()
	return m.delivery.Ack(false)
}

// Nack rejects the message. With requeue the broker redelivers it to any
// consumer of the queue, this one included.
func (m *Message) Nack(requeue bool) error {
	if m.settled {
		return ErrAlreadySettled
	}
	m.settled = true
	outcome := "nack_drop"
	if requeue {
		outcome = "nack_requeue"
	}
	settledCounter.WithLabelValues(m.Queue, outcome).Inc()
	return m.delivery.Nack(false, requeue)
}

// Settled reports whether Ack or Nack has been called.
func (m *Message) Settled() bool { return m.settled }

// HeaderInt returns an integer header value, or 0 when absent.
func (m *Message) HeaderInt(key string) int {
	switch v := m.Headers[key].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint8:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	default:
		return 0
	}
}
