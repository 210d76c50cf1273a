// Package subscription manages standing registrations and matches processed events to them.
package subscription

import (
	"sync"

	"github.com/BarkinBalci/event-sourcing-service/internal/domain"
)

// Index caches subscriptions keyed by event type. Every write goes through Put or Remove.
type Index struct {
	mu     sync.RWMutex
	byID   map[string]*domain.Subscription
	byType map[string]map[string]*domain.Subscription
}

// NewIndex creates an empty index
func NewIndex() *Index {
	return &Index{
		byID:   make(map[string]*domain.Subscription),
		byType: make(map[string]map[string]*domain.Subscription),
	}
}

// Load merges a repository listing into the index. Subscriptions are never deleted,
// so entries missing from subs were created after the listing and stay.
func (i *Index) Load(subs []*domain.Subscription) {
	i.mu.Lock()
	defer i.mu.Unlock()

	for _, sub := range subs {
		i.replace(sub)
	}
}

// Put inserts or replaces a subscription. A copy older than the indexed one is
// ignored and Put reports false.
func (i *Index) Put(sub *domain.Subscription) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	return i.replace(sub)
}

// Remove drops a subscription
func (i *Index) Remove(id string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.remove(id)
}

// Candidates returns copies of the subscriptions registered for an event type
func (i *Index) Candidates(eventType string) []*domain.Subscription {
	i.mu.RLock()
	defer i.mu.RUnlock()

	set := i.byType[eventType]
	out := make([]*domain.Subscription, 0, len(set))
	for _, sub := range set {
		out = append(out, sub.Clone())
	}
	return out
}

// Len returns the number of indexed subscriptions
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.byID)
}

func (i *Index) replace(sub *domain.Subscription) bool {
	if old, ok := i.byID[sub.ID]; ok && old.UpdatedAt.After(sub.UpdatedAt) {
		return false
	}
	i.remove(sub.ID)
	i.put(sub.Clone())
	return true
}

func (i *Index) put(sub *domain.Subscription) {
	i.byID[sub.ID] = sub
	for _, eventType := range sub.EventTypes {
		set, ok := i.byType[eventType]
		if !ok {
			set = make(map[string]*domain.Subscription)
			i.byType[eventType] = set
		}
		set[sub.ID] = sub
	}
}

func (i *Index) remove(id string) {
	old, ok := i.byID[id]
	if !ok {
		return
	}
	delete(i.byID, id)
	for _, eventType := range old.EventTypes {
		delete(i.byType[eventType], id)
		if len(i.byType[eventType]) == 0 {
			delete(i.byType, eventType)
		}
	}
}
