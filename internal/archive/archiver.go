// Package archive moves processed events past their retention window into cold storage.
package archive

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BarkinBalci/event-sourcing-service/internal/apperrors"
	"github.com/BarkinBalci/event-sourcing-service/internal/domain"
	"github.com/BarkinBalci/event-sourcing-service/internal/metrics"
	"github.com/BarkinBalci/event-sourcing-service/internal/repository"
)

// Sink receives batches of events to archive
type Sink interface {
	InsertBatch(ctx context.Context, events []*domain.Event) (int, error)
}

// Config configures the archive sweep
type Config struct {
	Retention time.Duration
	Interval  time.Duration
	BatchSize int
}

// Archiver copies old processed events to the sink, then marks them archived
type Archiver struct {
	repo    repository.EventRepository
	sink    Sink
	config  Config
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

// NewArchiver creates an archiver
func NewArchiver(repo repository.EventRepository, sink Sink, cfg Config, m *metrics.Metrics, log *zap.Logger) *Archiver {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 500
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	return &Archiver{
		repo:    repo,
		sink:    sink,
		config:  cfg,
		metrics: m,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Sweep archives one batch and returns how many events were marked archived.
// Nothing is marked unless the whole batch reached the sink.
func (a *Archiver) Sweep(ctx context.Context) (int, error) {
	cutoff := a.now().Add(-a.config.Retention)
	events, err := a.repo.ListByStatus(ctx, domain.StatusProcessed, cutoff, a.config.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	inserted, err := a.sink.InsertBatch(ctx, events)
	if err != nil {
		a.log.Error("Failed to archive batch", zap.Error(err), zap.Int("event_count", len(events)))
		return 0, apperrors.Infrastructure("failed to write archive batch", err)
	}
	if inserted != len(events) {
		a.log.Warn("Partial archive write",
			zap.Int("inserted", inserted),
			zap.Int("expected", len(events)))
		return 0, apperrors.Infrastructure("partial archive write", nil)
	}

	marked := a.markAll(ctx, events)
	a.metrics.EventsArchived.Add(float64(marked))
	a.log.Info("Archived events", zap.Int("count", marked))
	return marked, nil
}

// markAll moves each event processed→archived. An event that changed status meanwhile is skipped.
func (a *Archiver) markAll(ctx context.Context, events []*domain.Event) int {
	marked := 0
	for _, event := range events {
		ok, err := a.repo.ClaimAndMark(ctx, event.EventID, repository.Transition{
			From: domain.StatusProcessed,
			To:   domain.StatusArchived,
		})
		if err != nil {
			a.log.Error("Failed to mark event archived", zap.String("event_id", event.EventID), zap.Error(err))
			continue
		}
		if ok {
			marked++
		}
	}
	return marked
}

// Run sweeps on every interval until ctx is cancelled.
// A full batch triggers another sweep immediately.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.log.Info("Archiver shutting down")
			return nil
		case <-ticker.C:
			for {
				n, err := a.Sweep(ctx)
				if err != nil {
					a.log.Error("Archive sweep failed", zap.Error(err))
					break
				}
				if n < a.config.BatchSize || ctx.Err() != nil {
					break
				}
			}
		}
	}
}
