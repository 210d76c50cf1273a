package domain

import (
	"slices"
	"strings"
	"time"
)

// DefaultSchemaVersion is stamped on events that do not declare one.
const DefaultSchemaVersion = "1.0"

// Source identifies where an event originated.
type Source string

const (
	SourceFrontend    Source = "frontend"
	SourceBackend     Source = "backend"
	SourceSystem      Source = "system"
	SourceIoTDevice   Source = "iot_device"
	SourceExternalAPI Source = "external_api"
	SourceScheduled   Source = "scheduled"
)

// Sources lists every accepted source.
var Sources = []Source{SourceFrontend, SourceBackend, SourceSystem, SourceIoTDevice, SourceExternalAPI, SourceScheduled}

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	return slices.Contains(Sources, s)
}

// Category is the derived or supplied classification of an event.
type Category string

const (
	CategoryUserAction    Category = "user_action"
	CategoryPageView      Category = "page_view"
	CategoryFormSubmit    Category = "form_submit"
	CategoryClick         Category = "click"
	CategoryUserLifecycle Category = "user_lifecycle"
	CategoryPayment       Category = "payment"
	CategoryOrder         Category = "order"
	CategoryTask          Category = "task"
	CategoryDeviceStatus  Category = "device_status"
	CategorySystem        Category = "system"
)

// Categories lists every accepted category.
var Categories = []Category{
	CategoryUserAction, CategoryPageView, CategoryFormSubmit, CategoryClick, CategoryUserLifecycle,
	CategoryPayment, CategoryOrder, CategoryTask, CategoryDeviceStatus, CategorySystem,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return slices.Contains(Categories, c)
}

// EventStatus is the processing state of an event.
type EventStatus string

const (
	StatusPending    EventStatus = "pending"
	StatusProcessing EventStatus = "processing"
	StatusProcessed  EventStatus = "processed"
	StatusFailed     EventStatus = "failed"
	StatusArchived   EventStatus = "archived"
)

// Valid reports whether s is a known status.
func (s EventStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusProcessed, StatusFailed, StatusArchived:
		return true
	}
	return false
}

// Event is a stored record of something that happened.
// Payload, type, source, category, created_at and entity identity never change after append.
type Event struct {
	EventID       string         `json:"event_id"`
	EventType     string         `json:"event_type"`
	Source        Source         `json:"event_source"`
	Category      Category       `json:"event_category"`
	UserID        string         `json:"user_id,omitempty"`
	EntityType    string         `json:"entity_type,omitempty"`
	EntityID      string         `json:"entity_id,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Context       map[string]any `json:"context,omitempty"`
	Status        EventStatus    `json:"status"`
	RetryCount    int            `json:"retry_count"`
	Processors    []string       `json:"processors,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	ProcessedAt   *time.Time     `json:"processed_at,omitempty"`
	Version       int            `json:"version"`
	SchemaVersion string         `json:"schema_version"`
	Sequence      int64          `json:"sequence"`
}

// HasStream reports whether the event belongs to an entity stream.
func (e *Event) HasStream() bool {
	return strings.TrimSpace(e.EntityType) != "" && strings.TrimSpace(e.EntityID) != ""
}

// StreamID returns the id of the stream owning the event.
func (e *Event) StreamID() StreamID {
	return NewStreamID(e.EntityType, e.EntityID)
}

// Clone returns a deep copy so callers never share mutable state with a store.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	c := *e
	c.Payload = CloneMap(e.Payload)
	c.Metadata = CloneMap(e.Metadata)
	c.Context = CloneMap(e.Context)
	if e.Processors != nil {
		c.Processors = slices.Clone(e.Processors)
	}
	if e.ProcessedAt != nil {
		t := *e.ProcessedAt
		c.ProcessedAt = &t
	}
	return &c
}

// CloneMap deep-copies a JSON-like map.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return slices.Clone(t)
	default:
		return v
	}
}
