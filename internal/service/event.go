package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BarkinBalci/event-sourcing-service/internal/apperrors"
	"github.com/BarkinBalci/event-sourcing-service/internal/domain"
	"github.com/BarkinBalci/event-sourcing-service/internal/dto"
	"github.com/BarkinBalci/event-sourcing-service/internal/metrics"
	"github.com/BarkinBalci/event-sourcing-service/internal/repository"
	"github.com/BarkinBalci/event-sourcing-service/internal/signal"
)

// maxClockSkew is how far in the future a client timestamp may be
const maxClockSkew = 5 * time.Second

// EventService represents event service
type EventService struct {
	repository repository.EventRepository
	queue      Enqueuer
	emitter    signal.Emitter
	rules      CategoryRules
	metrics    *metrics.Metrics
	log        *zap.Logger
	now        func() time.Time
}

var _ EventServicer = (*EventService)(nil)

// NewEventService creates a new event service
func NewEventService(repo repository.EventRepository, queue Enqueuer, emitter signal.Emitter, m *metrics.Metrics, log *zap.Logger) *EventService {
	return &EventService{
		repository: repo,
		queue:      queue,
		emitter:    emitter,
		rules:      DefaultCategoryRules(),
		metrics:    m,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithCategoryRules replaces the category derivation table
func (s *EventService) WithCategoryRules(rules CategoryRules) *EventService {
	s.rules = rules
	return s
}

// Ingest validates, normalizes and appends a single event, then enqueues it for processing
func (s *EventService) Ingest(ctx context.Context, req *dto.IngestEventRequest) (string, error) {
	if req == nil {
		s.metrics.IngestErrors.WithLabelValues(string(apperrors.CodeValidation)).Inc()
		return "", apperrors.Validation("request body is required")
	}

	event, err := s.normalize(req)
	if err != nil {
		s.metrics.IngestErrors.WithLabelValues(string(apperrors.CodeOf(err))).Inc()
		s.log.Warn("Event validation failed",
			zap.String("event_type", req.EventType),
			zap.String("event_source", req.Source),
			zap.Error(err))
		return "", err
	}

	eventID, err := s.repository.Append(ctx, event)
	if err != nil {
		s.metrics.IngestErrors.WithLabelValues(string(apperrors.CodeOf(err))).Inc()
		s.log.Error("Failed to append event",
			zap.String("event_type", event.EventType),
			zap.Error(err))
		return "", err
	}

	// The event is durable at this point; a lost enqueue is recovered by the pending sweep.
	if err := s.queue.Enqueue(ctx, eventID); err != nil {
		s.log.Warn("Failed to enqueue event, leaving it pending",
			zap.String("event_id", eventID),
			zap.Error(err))
	}

	s.emitter.Emit(ctx, signal.New(signal.TypeStored, eventID, map[string]any{
		"event_type":     event.EventType,
		"event_source":   string(event.Source),
		"event_category": string(event.Category),
		"stream_id":      streamOf(event),
		"version":        event.Version,
	}))

	s.metrics.EventsIngested.WithLabelValues(string(event.Source), string(event.Category)).Inc()
	s.log.Debug("Event ingested",
		zap.String("event_id", eventID),
		zap.String("event_type", event.EventType),
		zap.String("event_category", string(event.Category)))

	return eventID, nil
}

// IngestBulk ingests each event independently and reports per-item failures
func (s *EventService) IngestBulk(ctx context.Context, reqs []dto.IngestEventRequest) ([]string, []string) {
	eventIDs := make([]string, 0, len(reqs))
	var errs []string

	for i := range reqs {
		eventID, err := s.Ingest(ctx, &reqs[i])
		if err != nil {
			errs = append(errs, fmt.Sprintf("event %d: %s", i, err.Error()))
			s.log.Warn("Failed to ingest event in bulk",
				zap.Int("index", i),
				zap.Error(err),
				zap.String("event_type", reqs[i].EventType))
			continue
		}
		eventIDs = append(eventIDs, eventID)
	}

	return eventIDs, errs
}

// GetEvent returns one event
func (s *EventService) GetEvent(ctx context.Context, eventID string) (*domain.Event, error) {
	return s.repository.Get(ctx, eventID)
}

// QueryEvents validates the filter and page and returns one page of events
func (s *EventService) QueryEvents(ctx context.Context, req *dto.QueryEventsRequest) (*dto.QueryEventsResponse, error) {
	filter, err := toFilter(req)
	if err != nil {
		return nil, err
	}

	page := repository.Page{Limit: repository.DefaultLimit, Offset: req.Offset}
	if req.Limit != nil {
		page.Limit = *req.Limit
	}
	if err := page.Validate(); err != nil {
		return nil, err
	}

	result, err := s.repository.Query(ctx, filter, page)
	if err != nil {
		return nil, err
	}

	return &dto.QueryEventsResponse{
		Items:   result.Items,
		Total:   result.Total,
		Limit:   page.Limit,
		Offset:  page.Offset,
		HasMore: result.HasMore,
	}, nil
}

// GetStream returns the events of a stream after fromVersion
func (s *EventService) GetStream(ctx context.Context, streamID string, fromVersion int) (*domain.Stream, error) {
	if fromVersion < 0 {
		return nil, apperrors.Validation("from_version must be non-negative, got %d", fromVersion)
	}
	id, _, _, err := domain.ParseStreamID(streamID)
	if err != nil {
		return nil, apperrors.Validation("%s", err.Error())
	}
	return s.repository.GetStream(ctx, id, fromVersion)
}

// GetResults returns the processor outcomes recorded for an event
func (s *EventService) GetResults(ctx context.Context, eventID string) ([]domain.ProcessingResult, error) {
	return s.repository.GetResults(ctx, eventID)
}

// Ping checks the event store
func (s *EventService) Ping(ctx context.Context) error {
	return s.repository.Ping(ctx)
}

func (s *EventService) normalize(req *dto.IngestEventRequest) (*domain.Event, error) {
	if req == nil {
		return nil, apperrors.Validation("request body is required")
	}

	eventType := strings.TrimSpace(req.EventType)
	if eventType == "" {
		return nil, apperrors.Validation("event_type is required")
	}

	source := domain.Source(strings.TrimSpace(req.Source))
	if source == "" {
		return nil, apperrors.Validation("event_source is required")
	}
	if !source.Valid() {
		return nil, apperrors.Validation("unknown event_source %q", req.Source)
	}

	category := domain.Category(strings.TrimSpace(req.Category))
	if category == "" {
		category = s.rules.Derive(source, eventType)
	} else if !category.Valid() {
		return nil, apperrors.Validation("unknown event_category %q", req.Category)
	}

	entityType := strings.TrimSpace(req.EntityType)
	entityID := strings.TrimSpace(req.EntityID)
	if (entityType == "") != (entityID == "") {
		return nil, apperrors.Validation("entity_type and entity_id must be provided together")
	}
	if strings.Contains(entityType, ":") {
		return nil, apperrors.Validation("entity_type must not contain ':'")
	}

	event := &domain.Event{
		EventType:     eventType,
		Source:        source,
		Category:      category,
		UserID:        strings.TrimSpace(req.UserID),
		EntityType:    entityType,
		EntityID:      entityID,
		CorrelationID: strings.TrimSpace(req.CorrelationID),
		Payload:       domain.CloneMap(req.Payload),
		Metadata:      domain.CloneMap(req.Metadata),
		Context:       domain.CloneMap(req.Context),
		SchemaVersion: strings.TrimSpace(req.SchemaVersion),
	}

	if req.Timestamp != 0 {
		ts := time.Unix(req.Timestamp, 0).UTC()
		if now := s.now(); ts.After(now.Add(maxClockSkew)) {
			return nil, apperrors.Validation("timestamp cannot be in the future: %d > %d", req.Timestamp, now.Unix())
		}
		event.CreatedAt = ts
	}

	return event, nil
}

func toFilter(req *dto.QueryEventsRequest) (repository.EventFilter, error) {
	filter := repository.EventFilter{
		UserID:        req.UserID,
		EntityType:    req.EntityType,
		EntityID:      req.EntityID,
		EventType:     req.EventType,
		Source:        domain.Source(req.Source),
		Category:      domain.Category(req.Category),
		Status:        domain.EventStatus(req.Status),
		CorrelationID: req.CorrelationID,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
	}

	if filter.Source != "" && !filter.Source.Valid() {
		return filter, apperrors.Validation("unknown event_source %q", req.Source)
	}
	if filter.Category != "" && !filter.Category.Valid() {
		return filter, apperrors.Validation("unknown event_category %q", req.Category)
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return filter, apperrors.Validation("unknown status %q", req.Status)
	}
	if filter.StartTime != nil && filter.EndTime != nil && filter.StartTime.After(*filter.EndTime) {
		return filter, apperrors.Validation("start_time must not be after end_time")
	}
	return filter, nil
}

func streamOf(event *domain.Event) string {
	if !event.HasStream() {
		return ""
	}
	return string(event.StreamID())
}
