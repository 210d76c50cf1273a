package dto

import "time"

// IngestEventRequest represents a single event submission
type IngestEventRequest struct {
	EventType     string         `json:"event_type" binding:"required" example:"order.created"`
	Source        string         `json:"event_source" binding:"required" example:"backend"`
	Category      string         `json:"event_category,omitempty" example:"order"`
	UserID        string         `json:"user_id,omitempty" example:"user_123"`
	EntityType    string         `json:"entity_type,omitempty" example:"order"`
	EntityID      string         `json:"entity_id,omitempty" example:"123"`
	CorrelationID string         `json:"correlation_id,omitempty" example:"req-42"`
	Timestamp     int64          `json:"timestamp,omitempty" example:"1723475612"`
	SchemaVersion string         `json:"schema_version,omitempty" example:"1.0"`
	Payload       map[string]any `json:"payload,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Context       map[string]any `json:"context,omitempty"`
}

// IngestBulkRequest represents a bulk event submission
type IngestBulkRequest struct {
	Events []IngestEventRequest `json:"events" binding:"required,min=1,max=1000,dive"`
}

// QueryEventsRequest represents an event query; a nil Limit means the default page size
type QueryEventsRequest struct {
	UserID        string     `form:"user_id"`
	EntityType    string     `form:"entity_type"`
	EntityID      string     `form:"entity_id"`
	EventType     string     `form:"event_type"`
	Source        string     `form:"event_source"`
	Category      string     `form:"event_category"`
	Status        string     `form:"status"`
	CorrelationID string     `form:"correlation_id"`
	StartTime     *time.Time `form:"start_time" time_format:"2006-01-02T15:04:05Z07:00"`
	EndTime       *time.Time `form:"end_time" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit         *int       `form:"limit" example:"100"`
	Offset        int        `form:"offset" example:"0"`
}

// GetStreamRequest represents a stream read
type GetStreamRequest struct {
	FromVersion int `form:"from_version" example:"0"`
}

// CreateSubscriptionRequest represents a subscription registration
type CreateSubscriptionRequest struct {
	Name            string   `json:"name" example:"order-webhook"`
	EventTypes      []string `json:"event_types" binding:"required,min=1" example:"order.created"`
	EventSources    []string `json:"event_sources,omitempty" example:"backend"`
	EventCategories []string `json:"event_categories,omitempty" example:"order"`
	Target          string   `json:"target" binding:"required" example:"https://hooks.example.com/orders"`
	Enabled         *bool    `json:"enabled,omitempty" example:"true"`
}

// CreateProjectionRequest represents a projection build for one stream
type CreateProjectionRequest struct {
	EntityType string `json:"entity_type" binding:"required" example:"order"`
	EntityID   string `json:"entity_id" binding:"required" example:"123"`
}

// ReplayRequest selects events by id list, stream or time range. Exactly one selector must be set.
type ReplayRequest struct {
	EventIDs []string   `json:"event_ids,omitempty"`
	StreamID string     `json:"stream_id,omitempty" example:"user:7"`
	From     *time.Time `json:"from,omitempty"`
	To       *time.Time `json:"to,omitempty"`
	Target   string     `json:"target,omitempty" example:"https://hooks.example.com/replay"`
	DryRun   bool       `json:"dry_run" example:"true"`
}

// RetryRequest represents a manual retry of failed events
type RetryRequest struct {
	MaxRetries *int `json:"max_retries,omitempty" example:"3"`
	BatchSize  *int `json:"batch_size,omitempty" example:"100"`
}
