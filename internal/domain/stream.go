package domain

import (
	"fmt"
	"strings"
)

// StreamID identifies the ordered events of one entity, formatted as "{entity_type}:{entity_id}".
type StreamID string

// NewStreamID builds a stream id from an entity identity.
func NewStreamID(entityType, entityID string) StreamID {
	return StreamID(entityType + ":" + entityID)
}

// ParseStreamID splits a stream id on its first colon.
func ParseStreamID(raw string) (StreamID, string, string, error) {
	entityType, entityID, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok || strings.TrimSpace(entityType) == "" || strings.TrimSpace(entityID) == "" {
		return "", "", "", fmt.Errorf("stream id %q must have the form entity_type:entity_id", raw)
	}
	return NewStreamID(entityType, entityID), entityType, entityID, nil
}

func (s StreamID) String() string {
	return string(s)
}

// Stream is the ordered sequence of events sharing one entity identity.
// Version equals the total number of events in the stream.
type Stream struct {
	StreamID   StreamID `json:"stream_id"`
	EntityType string   `json:"entity_type"`
	EntityID   string   `json:"entity_id"`
	Events     []*Event `json:"events"`
	Version    int      `json:"version"`
}
