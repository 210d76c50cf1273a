package repository

import (
	"context"
	"time"

	"github.com/BarkinBalci/event-sourcing-service/internal/domain"
)

// EventFilter narrows an event query. Populated fields combine with AND.
type EventFilter struct {
	UserID        string
	EntityType    string
	EntityID      string
	EventType     string
	Source        domain.Source
	Category      domain.Category
	Status        domain.EventStatus
	CorrelationID string
	StartTime     *time.Time
	EndTime       *time.Time
}

// QueryResult is one page of events ordered by created_at descending.
type QueryResult struct {
	Items   []*domain.Event
	Total   int
	HasMore bool
}

// Transition describes an atomic conditional status change.
// It is applied only when the stored status equals From.
type Transition struct {
	From           domain.EventStatus
	To             domain.EventStatus
	Processors     []string
	ErrorMessage   *string
	IncrementRetry bool
	ProcessedAt    *time.Time
}

// EventRepository defines the interface for the append-only event store
type EventRepository interface {
	// Append assigns id, sequence and stream version, persists the event and returns its id
	Append(ctx context.Context, event *domain.Event) (string, error)

	// Get returns a single event or a not found error
	Get(ctx context.Context, eventID string) (*domain.Event, error)

	// Query returns a filtered page of events, newest first
	Query(ctx context.Context, filter EventFilter, page Page) (*QueryResult, error)

	// GetStream returns the events of a stream with version greater than fromVersion
	GetStream(ctx context.Context, streamID domain.StreamID, fromVersion int) (*domain.Stream, error)

	// ClaimAndMark applies the transition if the current status matches; false means another caller won
	ClaimAndMark(ctx context.Context, eventID string, transition Transition) (bool, error)

	// ListRetryable returns failed events whose retry count is below maxRetries
	ListRetryable(ctx context.Context, maxRetries, limit int) ([]*domain.Event, error)

	// ListByStatus returns events in the given status, oldest first
	ListByStatus(ctx context.Context, status domain.EventStatus, olderThan time.Time, limit int) ([]*domain.Event, error)

	// ListByTimeRange returns events created within [from, to], ascending by time then sequence
	ListByTimeRange(ctx context.Context, from, to time.Time) ([]*domain.Event, error)

	// SaveResults records processor outcomes for an event
	SaveResults(ctx context.Context, eventID string, results []domain.ProcessingResult) error

	// GetResults returns every recorded processor outcome for an event
	GetResults(ctx context.Context, eventID string) ([]domain.ProcessingResult, error)

	// Ping checks if the storage backend is reachable
	Ping(ctx context.Context) error

	// Close releases resources
	Close() error
}

// SubscriptionRepository persists subscriptions
type SubscriptionRepository interface {
	SaveSubscription(ctx context.Context, sub *domain.Subscription) error
	GetSubscription(ctx context.Context, id string) (*domain.Subscription, error)
	ListSubscriptions(ctx context.Context) ([]*domain.Subscription, error)
	SetSubscriptionEnabled(ctx context.Context, id string, enabled bool, updatedAt time.Time) (*domain.Subscription, error)
}

// ProjectionRepository persists projection read models
type ProjectionRepository interface {
	SaveProjection(ctx context.Context, projection *domain.Projection) error
	GetProjection(ctx context.Context, id string) (*domain.Projection, error)
}

// Store bundles every repository a storage backend provides
type Store interface {
	EventRepository
	SubscriptionRepository
	ProjectionRepository
}
