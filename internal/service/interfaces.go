package service

import (
	"context"

	"github.com/BarkinBalci/event-sourcing-service/internal/domain"
	"github.com/BarkinBalci/event-sourcing-service/internal/dto"
)

// EventServicer defines the interface for event service operations
type EventServicer interface {
	Ingest(ctx context.Context, req *dto.IngestEventRequest) (string, error)
	IngestBulk(ctx context.Context, reqs []dto.IngestEventRequest) ([]string, []string)
	GetEvent(ctx context.Context, eventID string) (*domain.Event, error)
	QueryEvents(ctx context.Context, req *dto.QueryEventsRequest) (*dto.QueryEventsResponse, error)
	GetStream(ctx context.Context, streamID string, fromVersion int) (*domain.Stream, error)
	GetResults(ctx context.Context, eventID string) ([]domain.ProcessingResult, error)
	Ping(ctx context.Context) error
}

// Enqueuer hands event ids to the processing queue
type Enqueuer interface {
	Enqueue(ctx context.Context, eventID string) error
}
