package signal

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BarkinBalci/event-sourcing-service/internal/metrics"
)

const publishTimeout = 5 * time.Second

// Dispatcher is an Emitter that hands signals to a background publisher through a buffered channel
type Dispatcher struct {
	publisher Publisher
	metrics   *metrics.Metrics
	log       *zap.Logger

	queue chan Signal
	done  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

var _ Emitter = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher with the given buffer size
func NewDispatcher(publisher Publisher, bufferSize int, m *metrics.Metrics, log *zap.Logger) *Dispatcher {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Dispatcher{
		publisher: publisher,
		metrics:   m,
		log:       log,
		queue:     make(chan Signal, bufferSize),
		done:      make(chan struct{}),
	}
}

// Start launches the publishing goroutine
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run()
	}()
}

// Emit queues the signal; a full buffer drops it
func (d *Dispatcher) Emit(ctx context.Context, s Signal) {
	select {
	case <-d.done:
		d.drop(s, "dispatcher stopped")
		return
	default:
	}

	select {
	case d.queue <- s:
	default:
		d.drop(s, "buffer full")
	}
}

// Stop publishes what is already buffered and then returns
func (d *Dispatcher) Stop() {
	d.once.Do(func() { close(d.done) })
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	for {
		select {
		case s := <-d.queue:
			d.publish(s)
		case <-d.done:
			for {
				select {
				case s := <-d.queue:
					d.publish(s)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) publish(s Signal) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := d.publisher.Publish(ctx, s); err != nil {
		d.metrics.Signals.WithLabelValues(string(s.Type), "failed").Inc()
		d.log.Warn("Failed to publish signal",
			zap.String("type", string(s.Type)),
			zap.String("subject", s.Subject),
			zap.Error(err))
		return
	}
	d.metrics.Signals.WithLabelValues(string(s.Type), "published").Inc()
}

func (d *Dispatcher) drop(s Signal, reason string) {
	d.metrics.Signals.WithLabelValues(string(s.Type), "dropped").Inc()
	d.log.Warn("Dropping signal",
		zap.String("type", string(s.Type)),
		zap.String("subject", s.Subject),
		zap.String("reason", reason))
}
