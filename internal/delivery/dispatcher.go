package delivery

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/BarkinBalci/event-sourcing-service/internal/metrics"
)

// Dispatcher runs deliveries on background workers so callers never block on a subscriber
type Dispatcher struct {
	deliverer Deliverer
	metrics   *metrics.Metrics
	log       *zap.Logger

	jobs chan Request
	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewDispatcher creates a dispatcher with a bounded job buffer
func NewDispatcher(deliverer Deliverer, bufferSize int, m *metrics.Metrics, log *zap.Logger) *Dispatcher {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Dispatcher{
		deliverer: deliverer,
		metrics:   m,
		log:       log,
		jobs:      make(chan Request, bufferSize),
		done:      make(chan struct{}),
	}
}

// Start launches the delivery workers
func (d *Dispatcher) Start(workers int) {
	if workers < 1 {
		workers = 1
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer d.wg.Done()
			d.run()
		}()
	}
}

// DeliverAsync queues a delivery and reports whether it was accepted
func (d *Dispatcher) DeliverAsync(req Request) bool {
	select {
	case <-d.done:
		d.drop(req, "dispatcher stopped")
		return false
	default:
	}

	select {
	case d.jobs <- req:
		return true
	default:
		d.drop(req, "buffer full")
		return false
	}
}

// Stop finishes queued deliveries and waits for the workers
func (d *Dispatcher) Stop() {
	d.once.Do(func() { close(d.done) })
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	for {
		select {
		case req := <-d.jobs:
			d.deliver(req)
		case <-d.done:
			for {
				select {
				case req := <-d.jobs:
					d.deliver(req)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(req Request) {
	if err := d.deliverer.Deliver(context.Background(), req); err != nil {
		d.log.Warn("Delivery failed",
			zap.String("event_id", req.Event.EventID),
			zap.String("subscription_id", req.SubscriptionID),
			zap.String("target", req.Target),
			zap.Error(err))
	}
}

func (d *Dispatcher) drop(req Request, reason string) {
	d.metrics.Deliveries.WithLabelValues("dropped").Inc()
	d.log.Warn("Dropping delivery",
		zap.String("event_id", req.Event.EventID),
		zap.String("subscription_id", req.SubscriptionID),
		zap.String("reason", reason))
}
