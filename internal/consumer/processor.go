package consumer

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BarkinBalci/event-sourcing-service/internal/apperrors"
	"github.com/BarkinBalci/event-sourcing-service/internal/domain"
)

// Processor handles one event and reports a disposition.
// A returned error turns the disposition into failed.
type Processor interface {
	Process(ctx context.Context, event *domain.Event) (domain.ResultStatus, error)
}

// ProcessorFunc adapts a function to Processor
type ProcessorFunc func(ctx context.Context, event *domain.Event) (domain.ResultStatus, error)

func (f ProcessorFunc) Process(ctx context.Context, event *domain.Event) (domain.ResultStatus, error) {
	return f(ctx, event)
}

// Registration binds a processor to the events it handles.
// Empty EventTypes or EventSources accept any value.
type Registration struct {
	Name         string
	Processor    Processor
	EventTypes   []string
	EventSources []domain.Source
	// Timeout overrides the consumer default when positive
	Timeout time.Duration

	enabled bool
}

// Enabled reports whether the registration currently runs
func (r Registration) Enabled() bool {
	return r.enabled
}

func (r Registration) accepts(event *domain.Event) bool {
	if len(r.EventTypes) > 0 && !slices.Contains(r.EventTypes, event.EventType) {
		return false
	}
	if len(r.EventSources) > 0 && !slices.Contains(r.EventSources, event.Source) {
		return false
	}
	return true
}

// Registry holds processors in registration order
type Registry struct {
	mu            sync.RWMutex
	registrations []*Registration
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds an enabled processor. Names must be unique.
func (r *Registry) Register(reg Registration) error {
	reg.Name = strings.TrimSpace(reg.Name)
	if reg.Name == "" {
		return apperrors.Validation("processor name is required")
	}
	if reg.Processor == nil {
		return apperrors.Validation("processor %s has no implementation", reg.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.registrations {
		if existing.Name == reg.Name {
			return apperrors.Conflict("processor %s already registered", reg.Name)
		}
	}
	reg.enabled = true
	r.registrations = append(r.registrations, &reg)
	return nil
}

// Enable turns a processor on
func (r *Registry) Enable(name string) error {
	return r.setEnabled(name, true)
}

// Disable turns a processor off without removing it
func (r *Registry) Disable(name string) error {
	return r.setEnabled(name, false)
}

// Active returns the enabled processors accepting the event, in registration order
func (r *Registry) Active(event *domain.Event) []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Registration, 0, len(r.registrations))
	for _, reg := range r.registrations {
		if reg.enabled && reg.accepts(event) {
			out = append(out, *reg)
		}
	}
	return out
}

// All returns every registration, enabled or not
func (r *Registry) All() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Registration, 0, len(r.registrations))
	for _, reg := range r.registrations {
		out = append(out, *reg)
	}
	return out
}

func (r *Registry) setEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, reg := range r.registrations {
		if reg.Name == name {
			reg.enabled = enabled
			return nil
		}
	}
	return apperrors.NotFound("processor %s not found", name)
}

// LoggingProcessor records every event it sees at debug level
func LoggingProcessor(log *zap.Logger) Processor {
	return ProcessorFunc(func(ctx context.Context, event *domain.Event) (domain.ResultStatus, error) {
		log.Debug("Processing event",
			zap.String("event_id", event.EventID),
			zap.String("event_type", event.EventType),
			zap.String("source", string(event.Source)),
			zap.Int("retry_count", event.RetryCount))
		return domain.ResultSuccess, nil
	})
}
