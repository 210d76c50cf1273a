package consumer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BarkinBalci/event-sourcing-service/internal/apperrors"
	"github.com/BarkinBalci/event-sourcing-service/internal/domain"
	"github.com/BarkinBalci/event-sourcing-service/internal/metrics"
	"github.com/BarkinBalci/event-sourcing-service/internal/repository"
)

// DefaultMaxRetries bounds retries when the caller does not choose
const DefaultMaxRetries = 3

// DefaultProcessingLease bounds how long a claimed event may go without an outcome
const DefaultProcessingLease = 5 * time.Minute

// Enqueuer puts event ids back on the processing queue
type Enqueuer interface {
	Enqueue(ctx context.Context, eventID string) error
}

// RetrierConfig configures the periodic sweep
type RetrierConfig struct {
	Interval     time.Duration
	MaxRetries   int
	BatchSize    int
	PendingGrace time.Duration
	// ProcessingLease is how long an event may stay claimed before it is released as failed
	ProcessingLease time.Duration
}

// Retrier moves failed events back to pending and re-enqueues lost pending events
type Retrier struct {
	repo    repository.EventRepository
	queue   Enqueuer
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

// NewRetrier creates a retrier
func NewRetrier(repo repository.EventRepository, q Enqueuer, m *metrics.Metrics, log *zap.Logger) *Retrier {
	return &Retrier{
		repo:    repo,
		queue:   q,
		metrics: m,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RetryFailed resets failed events with retry_count below maxRetries to pending and re-enqueues them.
// It returns how many events were reset.
func (r *Retrier) RetryFailed(ctx context.Context, maxRetries, batchSize int) (int, error) {
	if maxRetries < 1 {
		return 0, apperrors.Validation("max_retries must be at least 1, got %d", maxRetries)
	}
	if batchSize < 1 {
		return 0, apperrors.Validation("batch_size must be at least 1, got %d", batchSize)
	}

	events, err := r.repo.ListRetryable(ctx, maxRetries, batchSize)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, event := range events {
		reset, err := r.repo.ClaimAndMark(ctx, event.EventID, repository.Transition{
			From:           domain.StatusFailed,
			To:             domain.StatusPending,
			IncrementRetry: true,
		})
		if err != nil {
			return count, err
		}
		if !reset {
			continue
		}
		count++

		if err := r.queue.Enqueue(ctx, event.EventID); err != nil {
			r.log.Warn("Failed to enqueue retried event; pending sweep will recover it",
				zap.String("event_id", event.EventID),
				zap.Error(err))
		}
	}

	if count > 0 {
		r.metrics.EventsRetried.Add(float64(count))
		r.log.Info("Retried failed events",
			zap.Int("count", count),
			zap.Int("max_retries", maxRetries))
	}
	return count, nil
}

// RequeuePending enqueues pending events not touched within grace.
// A duplicate enqueue is harmless because workers claim before processing.
func (r *Retrier) RequeuePending(ctx context.Context, grace time.Duration, limit int) (int, error) {
	if limit < 1 {
		return 0, apperrors.Validation("limit must be at least 1, got %d", limit)
	}

	events, err := r.repo.ListByStatus(ctx, domain.StatusPending, r.now().Add(-grace), limit)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, event := range events {
		if err := r.queue.Enqueue(ctx, event.EventID); err != nil {
			return count, apperrors.Infrastructure("failed to requeue pending event", err)
		}
		count++
	}

	if count > 0 {
		r.metrics.EventsRequeued.Add(float64(count))
		r.log.Info("Requeued pending events", zap.Int("count", count))
	}
	return count, nil
}

// ReleaseStale marks events claimed longer than lease as failed. A worker that died or could
// not record its outcome leaves the event in processing, where no queue message reaches it again.
// RetryFailed then resets it within the retry bound.
func (r *Retrier) ReleaseStale(ctx context.Context, lease time.Duration, limit int) (int, error) {
	if lease <= 0 {
		return 0, apperrors.Validation("processing lease must be positive, got %s", lease)
	}
	if limit < 1 {
		return 0, apperrors.Validation("limit must be at least 1, got %d", limit)
	}

	events, err := r.repo.ListByStatus(ctx, domain.StatusProcessing, r.now().Add(-lease), limit)
	if err != nil {
		return 0, err
	}

	reason := fmt.Sprintf("processing lease of %s expired", lease)
	count := 0
	for _, event := range events {
		released, err := r.repo.ClaimAndMark(ctx, event.EventID, repository.Transition{
			From:         domain.StatusProcessing,
			To:           domain.StatusFailed,
			ErrorMessage: &reason,
		})
		if err != nil {
			return count, err
		}
		if released {
			count++
		}
	}

	if count > 0 {
		r.metrics.EventsReleased.Add(float64(count))
		r.log.Warn("Released events stuck in processing",
			zap.Int("count", count),
			zap.Duration("lease", lease))
	}
	return count, nil
}

// Run sweeps on every interval until ctx is cancelled
func (r *Retrier) Run(ctx context.Context, cfg RetrierConfig) error {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = repository.DefaultLimit
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.ProcessingLease <= 0 {
		cfg.ProcessingLease = DefaultProcessingLease
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("Retrier shutting down")
			return nil
		case <-ticker.C:
			if _, err := r.ReleaseStale(ctx, cfg.ProcessingLease, cfg.BatchSize); err != nil {
				r.log.Error("Processing lease sweep failed", zap.Error(err))
			}
			if _, err := r.RequeuePending(ctx, cfg.PendingGrace, cfg.BatchSize); err != nil {
				r.log.Error("Pending sweep failed", zap.Error(err))
			}
			if _, err := r.RetryFailed(ctx, cfg.MaxRetries, cfg.BatchSize); err != nil {
				r.log.Error("Retry sweep failed", zap.Error(err))
			}
		}
	}
}
