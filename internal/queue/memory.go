package queue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultNackTimeout bounds how long a nack waits for room in a full queue.
// An id that cannot be requeued stays pending and the pending sweep enqueues it again.
const DefaultNackTimeout = 5 * time.Second

// MemoryQueue is a bounded FIFO queue backed by a buffered channel
type MemoryQueue struct {
	items       chan string
	done        chan struct{}
	once        sync.Once
	nackTimeout time.Duration
}

// NewMemoryQueue creates a queue holding up to capacity ids
func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &MemoryQueue{
		items:       make(chan string, capacity),
		done:        make(chan struct{}),
		nackTimeout: DefaultNackTimeout,
	}
}

// Enqueue blocks while the queue is full until ctx is done
func (q *MemoryQueue) Enqueue(ctx context.Context, eventID string) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	select {
	case q.items <- eventID:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue pops the head of the queue. Nack puts the id back at the tail.
func (q *MemoryQueue) Dequeue(ctx context.Context, wait time.Duration) (*Envelope, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case id := <-q.items:
		nack := func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, q.nackTimeout)
			defer cancel()
			if err := q.Enqueue(ctx, id); err != nil {
				return fmt.Errorf("failed to requeue event %s: %w", id, err)
			}
			return nil
		}
		return NewEnvelope(id, nil, nack), nil
	case <-timer.C:
		return nil, nil
	case <-q.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len reports the number of queued ids
func (q *MemoryQueue) Len() int {
	return len(q.items)
}

// Close wakes blocked consumers; queued ids are discarded
func (q *MemoryQueue) Close() error {
	q.once.Do(func() { close(q.done) })
	return nil
}
