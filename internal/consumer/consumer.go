// Package consumer runs the processing workers that drain the queue and the retry sweeps that refill it.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BarkinBalci/event-sourcing-service/internal/apperrors"
	"github.com/BarkinBalci/event-sourcing-service/internal/domain"
	"github.com/BarkinBalci/event-sourcing-service/internal/metrics"
	"github.com/BarkinBalci/event-sourcing-service/internal/queue"
	"github.com/BarkinBalci/event-sourcing-service/internal/repository"
	"github.com/BarkinBalci/event-sourcing-service/internal/signal"
)

// ProcessedHandler is notified after an event reaches processed
type ProcessedHandler interface {
	HandleProcessed(ctx context.Context, event *domain.Event)
}

// Config configures the worker pool
type Config struct {
	Workers          int
	PollTimeout      time.Duration
	ProcessorTimeout time.Duration
}

// Outcome describes what one processing attempt did
type Outcome struct {
	// Claimed is false when another worker already owned the event
	Claimed bool
	Status  domain.EventStatus
	Results []domain.ProcessingResult
}

// Consumer runs a pool of workers that claim, process and finalize queued events
type Consumer struct {
	config   Config
	queue    queue.Queue
	repo     repository.EventRepository
	registry *Registry
	emitter  signal.Emitter
	handlers []ProcessedHandler
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	log      *zap.Logger
	now      func() time.Time
}

// NewConsumer creates a consumer; handlers run in order for every processed event
func NewConsumer(cfg Config, q queue.Queue, repo repository.EventRepository, registry *Registry, emitter signal.Emitter, m *metrics.Metrics, log *zap.Logger, handlers ...ProcessedHandler) *Consumer {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = time.Second
	}
	if cfg.ProcessorTimeout <= 0 {
		cfg.ProcessorTimeout = 30 * time.Second
	}

	return &Consumer{
		config:   cfg,
		queue:    q,
		repo:     repo,
		registry: registry,
		emitter:  emitter,
		handlers: handlers,
		metrics:  m,
		tracer:   otel.Tracer("event-sourcing-service/consumer"),
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start runs the workers until ctx is cancelled.
// An event already claimed is finished before its worker exits.
func (c *Consumer) Start(ctx context.Context) error {
	c.log.Info("Starting workers", zap.Int("workers", c.config.Workers))

	var wg sync.WaitGroup
	wg.Add(c.config.Workers)
	for i := 0; i < c.config.Workers; i++ {
		go func(worker int) {
			defer wg.Done()
			c.work(ctx, worker)
		}(i)
	}

	wg.Wait()
	c.log.Info("Workers stopped")
	return nil
}

func (c *Consumer) work(ctx context.Context, worker int) {
	log := c.log.With(zap.Int("worker", worker))

	for {
		if ctx.Err() != nil {
			return
		}

		envelope, err := c.queue.Dequeue(ctx, c.config.PollTimeout)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) || ctx.Err() != nil {
				return
			}
			log.Error("Error dequeuing event", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if envelope == nil {
			continue
		}

		// Shutdown is observed between events only.
		c.handle(context.WithoutCancel(ctx), envelope, log)
	}
}

func (c *Consumer) handle(ctx context.Context, envelope *queue.Envelope, log *zap.Logger) {
	_, err := c.Process(ctx, envelope.EventID)
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrNotFound):
		log.Warn("Dropping message for unknown event", zap.String("event_id", envelope.EventID))
	default:
		log.Error("Failed to process event", zap.String("event_id", envelope.EventID), zap.Error(err))
		if nackErr := envelope.Nack(ctx); nackErr != nil {
			log.Error("Failed to nack envelope", zap.Error(nackErr))
		}
		return
	}

	if ackErr := envelope.Ack(ctx); ackErr != nil {
		log.Error("Failed to ack envelope", zap.Error(ackErr))
	}
}

// Process claims one pending event, runs its processors and records the outcome
func (c *Consumer) Process(ctx context.Context, eventID string) (*Outcome, error) {
	ctx, span := c.tracer.Start(ctx, "consumer.process",
		trace.WithAttributes(attribute.String("event.id", eventID)))
	defer span.End()

	claimed, err := c.repo.ClaimAndMark(ctx, eventID, repository.Transition{
		From: domain.StatusPending,
		To:   domain.StatusProcessing,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "claim failed")
		return nil, err
	}
	if !claimed {
		c.metrics.ClaimsLost.Inc()
		span.SetAttributes(attribute.Bool("event.claimed", false))
		return &Outcome{Claimed: false}, nil
	}

	c.metrics.WorkersBusy.Inc()
	defer c.metrics.WorkersBusy.Dec()

	event, err := c.repo.Get(ctx, eventID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("event.type", event.EventType),
		attribute.String("event.source", string(event.Source)),
		attribute.Int("event.retry_count", event.RetryCount),
	)

	registrations := c.registry.Active(event)
	results := make([]domain.ProcessingResult, 0, len(registrations))
	names := make([]string, 0, len(registrations))
	for _, reg := range registrations {
		results = append(results, c.runProcessor(ctx, reg, event))
		names = append(names, reg.Name)
	}

	status, errorMessage := aggregate(results)
	transition := repository.Transition{
		From:         domain.StatusProcessing,
		To:           status,
		Processors:   names,
		ErrorMessage: &errorMessage,
	}
	now := c.now()
	if status == domain.StatusProcessed {
		transition.ProcessedAt = &now
	}

	marked, err := c.repo.ClaimAndMark(ctx, eventID, transition)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "mark failed")
		c.markFailed(ctx, eventID, fmt.Sprintf("failed to record outcome %s: %v", status, err))
		return nil, fmt.Errorf("failed to mark event %s %s: %w", eventID, status, err)
	}
	if !marked {
		c.log.Warn("Event left processing before it was finalized", zap.String("event_id", eventID))
	}

	if len(results) > 0 {
		if err := c.repo.SaveResults(ctx, eventID, results); err != nil {
			c.log.Error("Failed to save processing results", zap.String("event_id", eventID), zap.Error(err))
		}
	}

	c.metrics.EventsProcessed.WithLabelValues(string(status)).Inc()
	span.SetAttributes(attribute.String("event.status", string(status)))

	event.Status = status
	event.Processors = append(event.Processors, names...)
	event.UpdatedAt = now
	event.ErrorMessage = errorMessage
	if status == domain.StatusProcessed {
		event.ProcessedAt = &now
		c.emitter.Emit(ctx, signal.New(signal.TypeProcessed, eventID, map[string]any{
			"event_type": event.EventType,
			"processors": names,
		}))
		for _, h := range c.handlers {
			h.HandleProcessed(ctx, event)
		}
	} else {
		span.SetStatus(codes.Error, errorMessage)
		c.emitter.Emit(ctx, signal.New(signal.TypeFailed, eventID, map[string]any{
			"event_type":  event.EventType,
			"retry_count": event.RetryCount,
			"error":       errorMessage,
		}))
	}

	c.log.Info("Event processed",
		zap.String("event_id", eventID),
		zap.String("status", string(status)),
		zap.Int("processors", len(names)))

	return &Outcome{Claimed: true, Status: status, Results: results}, nil
}

// markFailed moves a claimed event to failed so the retry sweep can pick it up.
// If this write fails too, the processing lease sweep recovers the event.
func (c *Consumer) markFailed(ctx context.Context, eventID, reason string) {
	if _, err := c.repo.ClaimAndMark(ctx, eventID, repository.Transition{
		From:         domain.StatusProcessing,
		To:           domain.StatusFailed,
		ErrorMessage: &reason,
	}); err != nil {
		c.log.Error("Failed to release claimed event", zap.String("event_id", eventID), zap.Error(err))
	}
}

type processorReturn struct {
	status domain.ResultStatus
	err    error
}

// runProcessor isolates one processor behind a timeout and a panic guard
func (c *Consumer) runProcessor(ctx context.Context, reg Registration, event *domain.Event) domain.ProcessingResult {
	timeout := c.config.ProcessorTimeout
	if reg.Timeout > 0 {
		timeout = reg.Timeout
	}

	ctx, span := c.tracer.Start(ctx, "consumer.processor",
		trace.WithAttributes(attribute.String("processor", reg.Name)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan processorReturn, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- processorReturn{status: domain.ResultFailed, err: fmt.Errorf("panic: %v", r)}
			}
		}()
		status, err := reg.Processor.Process(ctx, event.Clone())
		done <- processorReturn{status: status, err: err}
	}()

	var ret processorReturn
	select {
	case ret = <-done:
	case <-ctx.Done():
		ret = processorReturn{status: domain.ResultFailed, err: fmt.Errorf("timed out after %s", timeout)}
	}

	result := domain.ProcessingResult{
		EventID:   event.EventID,
		Processor: reg.Name,
		Status:    ret.status,
		Duration:  time.Since(start),
		CreatedAt: c.now(),
	}
	switch {
	case ret.err != nil:
		if !result.Status.Failed() {
			result.Status = domain.ResultFailed
		}
		result.ErrorMessage = ret.err.Error()
		span.RecordError(ret.err)
	case result.Status == "":
		result.Status = domain.ResultSuccess
	}

	c.metrics.ProcessorResults.WithLabelValues(reg.Name, string(result.Status)).Inc()
	c.metrics.ProcessorDuration.WithLabelValues(reg.Name).Observe(result.Duration.Seconds())
	return result
}

// aggregate reduces processor results to the final event status
func aggregate(results []domain.ProcessingResult) (domain.EventStatus, string) {
	var failures []string
	for _, r := range results {
		if r.Status.Failed() {
			msg := r.ErrorMessage
			if msg == "" {
				msg = string(r.Status)
			}
			failures = append(failures, r.Processor+": "+msg)
		}
	}
	if len(failures) > 0 {
		return domain.StatusFailed, strings.Join(failures, "; ")
	}
	return domain.StatusProcessed, ""
}
