package dto

import "github.com/BarkinBalci/event-sourcing-service/internal/domain"

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error" example:"validation_error"`
	Message string `json:"message,omitempty" example:"event_type is required"`
}

// IngestEventResponse represents a successful event ingestion response
type IngestEventResponse struct {
	EventID string `json:"event_id" example:"0190b6f2-7c1e-7d3a-9b1f-2c3d4e5f6a7b"`
	Status  string `json:"status" example:"accepted"`
}

// IngestBulkResponse represents a bulk event ingestion response
type IngestBulkResponse struct {
	Accepted int      `json:"accepted" example:"5"`
	Rejected int      `json:"rejected" example:"0"`
	EventIDs []string `json:"event_ids,omitempty"`
	Errors   []string `json:"errors,omitempty" example:"event 3: event_type is required"`
}

// QueryEventsResponse represents one page of events
type QueryEventsResponse struct {
	Items   []*domain.Event `json:"items"`
	Total   int             `json:"total" example:"250"`
	Limit   int             `json:"limit" example:"100"`
	Offset  int             `json:"offset" example:"0"`
	HasMore bool            `json:"has_more" example:"true"`
}

// ResultsResponse lists processor outcomes for an event
type ResultsResponse struct {
	EventID string                    `json:"event_id"`
	Results []domain.ProcessingResult `json:"results"`
}

// SubscriptionListResponse lists subscriptions
type SubscriptionListResponse struct {
	Items []*domain.Subscription `json:"items"`
	Total int                    `json:"total"`
}

// ReplayResponse reports the outcome of a replay or dry run
type ReplayResponse struct {
	DryRun   bool     `json:"dry_run"`
	Count    int      `json:"count" example:"5"`
	EventIDs []string `json:"event_ids,omitempty"`
	Replayed int      `json:"replayed" example:"5"`
	Failed   int      `json:"failed" example:"0"`
	Missing  []string `json:"missing,omitempty"`
}

// RetryResponse reports how many failed events were moved back to pending
type RetryResponse struct {
	Retried int `json:"retried" example:"3"`
}

// HealthResponse represents the health check body
type HealthResponse struct {
	Status  string `json:"status" example:"healthy"`
	Storage string `json:"storage" example:"ok"`
}
