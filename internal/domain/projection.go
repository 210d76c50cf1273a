package domain

import "time"

// Projection is a read model folded from the events of one stream.
// State maps each event type to the payload of the last event of that type.
type Projection struct {
	ID                 string                    `json:"id"`
	EntityType         string                    `json:"entity_type"`
	EntityID           string                    `json:"entity_id"`
	State              map[string]map[string]any `json:"state"`
	Version            int                       `json:"version"`
	LastAppliedEventID string                    `json:"last_applied_event_id,omitempty"`
	CreatedAt          time.Time                 `json:"created_at"`
	UpdatedAt          time.Time                 `json:"updated_at"`
}

// Clone returns a deep copy of the projection.
func (p *Projection) Clone() *Projection {
	if p == nil {
		return nil
	}
	c := *p
	c.State = make(map[string]map[string]any, len(p.State))
	for k, v := range p.State {
		c.State[k] = CloneMap(v)
	}
	return &c
}
