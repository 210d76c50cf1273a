// Package signaltest provides an in-memory signal emitter for tests.
package signaltest

import (
	"context"
	"sync"

	"github.com/BarkinBalci/event-sourcing-service/internal/signal"
)

// Recorder captures emitted signals
type Recorder struct {
	mu      sync.Mutex
	signals []signal.Signal
}

func (r *Recorder) Emit(ctx context.Context, s signal.Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, s)
}

// Signals returns a copy of everything emitted so far
func (r *Recorder) Signals() []signal.Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]signal.Signal(nil), r.signals...)
}

// Count returns how many signals of type t were emitted
func (r *Recorder) Count(t signal.Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, s := range r.signals {
		if s.Type == t {
			n++
		}
	}
	return n
}
