package domain

import (
	"slices"
	"time"
)

// Subscription is a standing registration that triggers delivery of matching processed events.
type Subscription struct {
	ID              string     `json:"id"`
	Name            string     `json:"name,omitempty"`
	EventTypes      []string   `json:"event_types"`
	EventSources    []Source   `json:"event_sources,omitempty"`
	EventCategories []Category `json:"event_categories,omitempty"`
	Target          string     `json:"target"`
	Enabled         bool       `json:"enabled"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Clone returns a copy safe to hand out of a cache.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	c := *s
	c.EventTypes = slices.Clone(s.EventTypes)
	c.EventSources = slices.Clone(s.EventSources)
	c.EventCategories = slices.Clone(s.EventCategories)
	return &c
}
