// Package projection maintains per-stream read models folded from stored events.
package projection

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BarkinBalci/event-sourcing-service/internal/apperrors"
	"github.com/BarkinBalci/event-sourcing-service/internal/domain"
	"github.com/BarkinBalci/event-sourcing-service/internal/metrics"
	"github.com/BarkinBalci/event-sourcing-service/internal/repository"
	"github.com/BarkinBalci/event-sourcing-service/internal/signal"
)

// Engine builds, caches and incrementally updates projections
type Engine struct {
	events      repository.EventRepository
	projections repository.ProjectionRepository
	cache       Cache
	emitter     signal.Emitter
	metrics     *metrics.Metrics
	log         *zap.Logger
	locks       *keyedMutex
	now         func() time.Time
}

// NewEngine creates a projection engine
func NewEngine(events repository.EventRepository, projections repository.ProjectionRepository, cache Cache, emitter signal.Emitter, m *metrics.Metrics, log *zap.Logger) *Engine {
	return &Engine{
		events:      events,
		projections: projections,
		cache:       cache,
		emitter:     emitter,
		metrics:     m,
		log:         log,
		locks:       newKeyedMutex(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Apply folds one event into the projection
func Apply(p *domain.Projection, event *domain.Event, now time.Time) {
	if p.State == nil {
		p.State = make(map[string]map[string]any)
	}
	p.State[event.EventType] = domain.CloneMap(event.Payload)
	p.Version++
	p.LastAppliedEventID = event.EventID
	p.UpdatedAt = now
}

// Create builds the projection of one stream. An existing projection is returned caught up.
func (e *Engine) Create(ctx context.Context, entityType, entityID string) (*domain.Projection, error) {
	entityType = strings.TrimSpace(entityType)
	entityID = strings.TrimSpace(entityID)
	if entityType == "" || entityID == "" {
		return nil, apperrors.Validation("entity_type and entity_id are required")
	}
	if strings.Contains(entityType, ":") {
		return nil, apperrors.Validation("entity_type must not contain ':'")
	}

	id := domain.NewStreamID(entityType, entityID)
	unlock := e.locks.Lock(id.String())
	defer unlock()

	existing, err := e.projections.GetProjection(ctx, id.String())
	switch {
	case err == nil:
		return e.catchUp(ctx, existing)
	case !errors.Is(err, apperrors.ErrNotFound):
		return nil, err
	}

	now := e.now()
	p := &domain.Projection{
		ID:         id.String(),
		EntityType: entityType,
		EntityID:   entityID,
		State:      make(map[string]map[string]any),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.fold(ctx, p, 0); err != nil {
		return nil, err
	}
	if err := e.store(ctx, p); err != nil {
		return nil, err
	}

	e.emitter.Emit(ctx, signal.New(signal.TypeProjectionCreated, p.ID, map[string]any{
		"version": p.Version,
	}))

	e.log.Info("Projection created",
		zap.String("projection_id", p.ID),
		zap.Int("version", p.Version))

	return p, nil
}

// Get returns a projection from the cache, falling back to the repository
func (e *Engine) Get(ctx context.Context, id string) (*domain.Projection, error) {
	cached, ok, err := e.cache.Get(ctx, id)
	switch {
	case err != nil:
		e.metrics.ProjectionCache.WithLabelValues("error").Inc()
		e.log.Warn("Projection cache read failed", zap.String("projection_id", id), zap.Error(err))
	case ok:
		e.metrics.ProjectionCache.WithLabelValues("hit").Inc()
		return cached, nil
	default:
		e.metrics.ProjectionCache.WithLabelValues("miss").Inc()
	}

	p, err := e.projections.GetProjection(ctx, id)
	if err != nil {
		return nil, err
	}
	e.cacheSet(ctx, p)
	return p, nil
}

// Rebuild discards the cached state and folds the stream again from version 0
func (e *Engine) Rebuild(ctx context.Context, id string) (*domain.Projection, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	existing, err := e.projections.GetProjection(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := e.cache.Delete(ctx, id); err != nil {
		e.log.Warn("Projection cache eviction failed", zap.String("projection_id", id), zap.Error(err))
	}

	p := &domain.Projection{
		ID:         existing.ID,
		EntityType: existing.EntityType,
		EntityID:   existing.EntityID,
		State:      make(map[string]map[string]any),
		CreatedAt:  existing.CreatedAt,
		UpdatedAt:  e.now(),
	}
	if err := e.fold(ctx, p, 0); err != nil {
		return nil, err
	}
	if err := e.store(ctx, p); err != nil {
		return nil, err
	}

	e.log.Info("Projection rebuilt",
		zap.String("projection_id", p.ID),
		zap.Int("version", p.Version))

	return p, nil
}

// HandleProcessed advances the projection of the event's stream, if one exists.
// It reads the stream from the projection's cursor so out-of-order completions still apply in order.
func (e *Engine) HandleProcessed(ctx context.Context, event *domain.Event) {
	if !event.HasStream() {
		return
	}
	id := event.StreamID().String()

	unlock := e.locks.Lock(id)
	defer unlock()

	p, err := e.projections.GetProjection(ctx, id)
	if errors.Is(err, apperrors.ErrNotFound) {
		return
	}
	if err != nil {
		e.log.Error("Failed to load projection", zap.String("projection_id", id), zap.Error(err))
		return
	}

	if _, err := e.catchUp(ctx, p); err != nil {
		e.log.Error("Failed to update projection",
			zap.String("projection_id", id),
			zap.String("event_id", event.EventID),
			zap.Error(err))
	}
}

// catchUp applies every stream event past the projection's version. Callers hold the key lock.
func (e *Engine) catchUp(ctx context.Context, p *domain.Projection) (*domain.Projection, error) {
	before := p.Version
	if err := e.fold(ctx, p, p.Version); err != nil {
		return nil, err
	}
	if p.Version == before {
		return p, nil
	}
	if err := e.store(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (e *Engine) fold(ctx context.Context, p *domain.Projection, fromVersion int) error {
	stream, err := e.events.GetStream(ctx, domain.StreamID(p.ID), fromVersion)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, event := range stream.Events {
		Apply(p, event, e.now())
	}
	e.metrics.ProjectionsApplied.Add(float64(len(stream.Events)))
	return nil
}

func (e *Engine) store(ctx context.Context, p *domain.Projection) error {
	if err := e.projections.SaveProjection(ctx, p); err != nil {
		return err
	}
	e.cacheSet(ctx, p)
	return nil
}

func (e *Engine) cacheSet(ctx context.Context, p *domain.Projection) {
	if err := e.cache.Set(ctx, p); err != nil {
		e.log.Warn("Projection cache write failed", zap.String("projection_id", p.ID), zap.Error(err))
	}
}
