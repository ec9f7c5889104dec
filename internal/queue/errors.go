package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrPublishNacked is returned when the broker negatively confirms a publish.
	ErrPublishNacked = errors.New("broker rejected publish")
	// ErrConnectionLost is returned when the delivery stream ends unexpectedly.
	ErrConnectionLost = errors.New("broker connection lost")
	// ErrClientClosed is returned by operations on a closed Client.
	ErrClientClosed = errors.New("queue client closed")
	// ErrAlreadySettled is returned when a delivery is acked or nacked twice.
	ErrAlreadySettled = errors.New("delivery already settled")
)

// PublishError reports that a message could not be handed to the broker.
type PublishError struct {
	Queue string
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %s: %v", e.Queue, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// ConnectionError reports that the broker could not be reached.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return "broker connection: " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error { return e.Err }
