// Package memory implements the repositories in process, guarded by a single lock.
// It backs tests and single-node development runs.
package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BarkinBalci/event-sourcing-service/internal/apperrors"
	"github.com/BarkinBalci/event-sourcing-service/internal/domain"
	"github.com/BarkinBalci/event-sourcing-service/internal/repository"
)

// Store implements repository.Store in memory
type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	seq           int64
	events        map[string]*domain.Event
	ordered       []*domain.Event
	streams       map[domain.StreamID][]*domain.Event
	byStatus      map[domain.EventStatus]map[string]*domain.Event
	byCorrelation map[string][]*domain.Event
	results       map[string][]domain.ProcessingResult

	subscriptions map[string]*domain.Subscription
	projections   map[string]*domain.Projection
}

var _ repository.Store = (*Store)(nil)

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{
		now:           func() time.Time { return time.Now().UTC() },
		events:        make(map[string]*domain.Event),
		streams:       make(map[domain.StreamID][]*domain.Event),
		byStatus:      make(map[domain.EventStatus]map[string]*domain.Event),
		byCorrelation: make(map[string][]*domain.Event),
		results:       make(map[string][]domain.ProcessingResult),
		subscriptions: make(map[string]*domain.Subscription),
		projections:   make(map[string]*domain.Projection),
	}
}

// WithClock overrides the time source, used by tests
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Append stores a copy of the event and returns its id
func (s *Store) Append(ctx context.Context, event *domain.Event) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if event == nil || strings.TrimSpace(event.EventType) == "" {
		return "", apperrors.Validation("event_type is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if event.EventID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return "", apperrors.Infrastructure("failed to generate event id", err)
		}
		event.EventID = id.String()
	}
	if _, exists := s.events[event.EventID]; exists {
		return "", apperrors.Conflict("event %s already exists", event.EventID)
	}

	now := s.now()
	s.seq++
	event.Sequence = s.seq
	event.Status = domain.StatusPending
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
	if event.SchemaVersion == "" {
		event.SchemaVersion = domain.DefaultSchemaVersion
	}
	event.Version = 0
	if event.HasStream() {
		event.Version = len(s.streams[event.StreamID()]) + 1
	}

	stored := event.Clone()
	s.events[stored.EventID] = stored
	s.ordered = append(s.ordered, stored)
	if stored.HasStream() {
		s.streams[stored.StreamID()] = append(s.streams[stored.StreamID()], stored)
	}
	s.indexStatus(stored)
	if stored.CorrelationID != "" {
		s.byCorrelation[stored.CorrelationID] = append(s.byCorrelation[stored.CorrelationID], stored)
	}

	return stored.EventID, nil
}

// Get returns a copy of a single event
func (s *Store) Get(ctx context.Context, eventID string) (*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, ok := s.events[eventID]
	if !ok {
		return nil, apperrors.NotFound("event %s not found", eventID)
	}
	return event.Clone(), nil
}

// Query filters events using the narrowest available index
func (s *Store) Query(ctx context.Context, filter repository.EventFilter, page repository.Page) (*repository.QueryResult, error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*domain.Event, 0)
	for _, event := range s.candidates(filter) {
		if matches(filter, event) {
			matched = append(matched, event)
		}
	}

	slices.SortFunc(matched, func(a, b *domain.Event) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.Sequence, a.Sequence)
	})

	total := len(matched)
	start := min(page.Offset, total)
	end := min(start+page.Limit, total)

	items := make([]*domain.Event, 0, end-start)
	for _, event := range matched[start:end] {
		items = append(items, event.Clone())
	}

	return &repository.QueryResult{
		Items:   items,
		Total:   total,
		HasMore: page.HasMore(total),
	}, nil
}

// GetStream returns stream events after fromVersion in append order
func (s *Store) GetStream(ctx context.Context, streamID domain.StreamID, fromVersion int) (*domain.Stream, error) {
	id, entityType, entityID, err := domain.ParseStreamID(string(streamID))
	if err != nil {
		return nil, apperrors.Validation("%s", err.Error())
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	events, ok := s.streams[id]
	if !ok {
		return nil, apperrors.NotFound("stream %s not found", id)
	}

	stream := &domain.Stream{
		StreamID:   id,
		EntityType: entityType,
		EntityID:   entityID,
		Events:     make([]*domain.Event, 0, len(events)),
		Version:    len(events),
	}
	for _, event := range events {
		if event.Version > fromVersion {
			stream.Events = append(stream.Events, event.Clone())
		}
	}
	return stream, nil
}

// ClaimAndMark applies a transition while holding the write lock
func (s *Store) ClaimAndMark(ctx context.Context, eventID string, transition repository.Transition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[eventID]
	if !ok {
		return false, apperrors.NotFound("event %s not found", eventID)
	}
	if event.Status != transition.From {
		return false, nil
	}

	delete(s.byStatus[event.Status], event.EventID)
	event.Status = transition.To
	event.UpdatedAt = s.now()
	event.Processors = append(event.Processors, transition.Processors...)
	if transition.ErrorMessage != nil {
		event.ErrorMessage = *transition.ErrorMessage
	}
	if transition.IncrementRetry {
		event.RetryCount++
	}
	if transition.ProcessedAt != nil {
		processedAt := *transition.ProcessedAt
		event.ProcessedAt = &processedAt
	}
	s.indexStatus(event)

	return true, nil
}

// ListRetryable returns failed events below the retry bound, oldest first
func (s *Store) ListRetryable(ctx context.Context, maxRetries, limit int) ([]*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	failed := sortedBySequence(s.byStatus[domain.StatusFailed])
	out := make([]*domain.Event, 0, min(limit, len(failed)))
	for _, event := range failed {
		if len(out) >= limit {
			break
		}
		if event.RetryCount < maxRetries {
			out = append(out, event.Clone())
		}
	}
	return out, nil
}

// ListByStatus returns events in a status last updated before olderThan, oldest first
func (s *Store) ListByStatus(ctx context.Context, status domain.EventStatus, olderThan time.Time, limit int) ([]*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Event, 0)
	for _, event := range sortedBySequence(s.byStatus[status]) {
		if len(out) >= limit {
			break
		}
		if event.UpdatedAt.Before(olderThan) {
			out = append(out, event.Clone())
		}
	}
	return out, nil
}

// ListByTimeRange returns events within [from, to] by ascending time, ties broken by sequence
func (s *Store) ListByTimeRange(ctx context.Context, from, to time.Time) ([]*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Event, 0)
	for _, event := range s.ordered {
		if !event.CreatedAt.Before(from) && !event.CreatedAt.After(to) {
			out = append(out, event.Clone())
		}
	}
	slices.SortStableFunc(out, func(a, b *domain.Event) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Sequence, b.Sequence)
	})
	return out, nil
}

// SaveResults appends processor outcomes for an event
func (s *Store) SaveResults(ctx context.Context, eventID string, results []domain.ProcessingResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[eventID]; !ok {
		return apperrors.NotFound("event %s not found", eventID)
	}
	s.results[eventID] = append(s.results[eventID], results...)
	return nil
}

// GetResults returns recorded processor outcomes
func (s *Store) GetResults(ctx context.Context, eventID string) ([]domain.ProcessingResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.events[eventID]; !ok {
		return nil, apperrors.NotFound("event %s not found", eventID)
	}
	return slices.Clone(s.results[eventID]), nil
}

// Ping always succeeds for the in-memory store
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store
func (s *Store) Close() error {
	return nil
}

func (s *Store) indexStatus(event *domain.Event) {
	set, ok := s.byStatus[event.Status]
	if !ok {
		set = make(map[string]*domain.Event)
		s.byStatus[event.Status] = set
	}
	set[event.EventID] = event
}

// candidates picks the smallest index covering the filter
func (s *Store) candidates(filter repository.EventFilter) []*domain.Event {
	if filter.EntityType != "" && filter.EntityID != "" {
		return s.streams[domain.NewStreamID(filter.EntityType, filter.EntityID)]
	}
	if filter.CorrelationID != "" {
		return s.byCorrelation[filter.CorrelationID]
	}
	if filter.Status != "" {
		return sortedBySequence(s.byStatus[filter.Status])
	}
	return s.ordered
}

func matches(filter repository.EventFilter, event *domain.Event) bool {
	switch {
	case filter.UserID != "" && event.UserID != filter.UserID:
		return false
	case filter.EntityType != "" && event.EntityType != filter.EntityType:
		return false
	case filter.EntityID != "" && event.EntityID != filter.EntityID:
		return false
	case filter.EventType != "" && event.EventType != filter.EventType:
		return false
	case filter.Source != "" && event.Source != filter.Source:
		return false
	case filter.Category != "" && event.Category != filter.Category:
		return false
	case filter.Status != "" && event.Status != filter.Status:
		return false
	case filter.CorrelationID != "" && event.CorrelationID != filter.CorrelationID:
		return false
	case filter.StartTime != nil && event.CreatedAt.Before(*filter.StartTime):
		return false
	case filter.EndTime != nil && event.CreatedAt.After(*filter.EndTime):
		return false
	}
	return true
}

func sortedBySequence(set map[string]*domain.Event) []*domain.Event {
	out := make([]*domain.Event, 0, len(set))
	for _, event := range set {
		out = append(out, event)
	}
	slices.SortFunc(out, func(a, b *domain.Event) int {
		return cmp.Compare(a.Sequence, b.Sequence)
	})
	return out
}
