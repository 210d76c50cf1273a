package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/BarkinBalci/event-sourcing-service/internal/apperrors"
	"github.com/BarkinBalci/event-sourcing-service/internal/domain"
)

// SaveSubscription inserts or replaces a subscription
func (s *Store) SaveSubscription(ctx context.Context, sub *domain.Subscription) error {
	if sub == nil || sub.ID == "" {
		return apperrors.Validation("subscription id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscriptions[sub.ID] = sub.Clone()
	return nil
}

// GetSubscription returns a copy of one subscription
func (s *Store) GetSubscription(ctx context.Context, id string) (*domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[id]
	if !ok {
		return nil, apperrors.NotFound("subscription %s not found", id)
	}
	return sub.Clone(), nil
}

// ListSubscriptions returns all subscriptions ordered by creation time
func (s *Store) ListSubscriptions(ctx context.Context) ([]*domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Subscription, 0, len(s.subscriptions))
	for _, sub := range s.subscriptions {
		out = append(out, sub.Clone())
	}
	slices.SortFunc(out, func(a, b *domain.Subscription) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

// SetSubscriptionEnabled toggles the enabled flag
func (s *Store) SetSubscriptionEnabled(ctx context.Context, id string, enabled bool, updatedAt time.Time) (*domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[id]
	if !ok {
		return nil, apperrors.NotFound("subscription %s not found", id)
	}
	sub.Enabled = enabled
	sub.UpdatedAt = updatedAt
	return sub.Clone(), nil
}
