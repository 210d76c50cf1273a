package queue

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by operations on a closed queue
var ErrClosed = errors.New("queue closed")

// Queue is the processing queue transport. It carries event ids only; workers load the event from the store.
type Queue interface {
	// Enqueue adds an event id to the tail of the queue
	Enqueue(ctx context.Context, eventID string) error

	// Dequeue waits up to wait for the next envelope; it returns nil, nil on timeout
	Dequeue(ctx context.Context, wait time.Duration) (*Envelope, error)

	// Close releases resources
	Close() error
}

// Envelope wraps a dequeued event id with acknowledgment callbacks
type Envelope struct {
	EventID string
	ack     func(context.Context) error
	nack    func(context.Context) error
}

// NewEnvelope creates a new message envelope
func NewEnvelope(eventID string, ack, nack func(context.Context) error) *Envelope {
	return &Envelope{
		EventID: eventID,
		ack:     ack,
		nack:    nack,
	}
}

// Ack acknowledges successful processing
func (e *Envelope) Ack(ctx context.Context) error {
	if e.ack != nil {
		return e.ack(ctx)
	}
	return nil
}

// Nack returns the message to the queue for redelivery
func (e *Envelope) Nack(ctx context.Context) error {
	if e.nack != nil {
		return e.nack(ctx)
	}
	return nil
}
