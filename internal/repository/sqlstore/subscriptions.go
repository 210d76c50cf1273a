package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/BarkinBalci/event-sourcing-service/internal/apperrors"
	"github.com/BarkinBalci/event-sourcing-service/internal/domain"
)

const subscriptionColumns = `id, name, event_types, event_sources, event_categories, target, enabled, created_at, updated_at`

// SaveSubscription inserts or replaces a subscription
func (s *Store) SaveSubscription(ctx context.Context, sub *domain.Subscription) error {
	if sub == nil || sub.ID == "" {
		return apperrors.Validation("subscription id is required")
	}

	types, err := json.Marshal(nonNilStrings(sub.EventTypes))
	if err != nil {
		return apperrors.Validation("invalid event types: %v", err)
	}
	sources := sub.EventSources
	if sources == nil {
		sources = []domain.Source{}
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return apperrors.Validation("invalid event sources: %v", err)
	}
	categories := sub.EventCategories
	if categories == nil {
		categories = []domain.Category{}
	}
	categoriesJSON, err := json.Marshal(categories)
	if err != nil {
		return apperrors.Validation("invalid event categories: %v", err)
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			event_types = excluded.event_types,
			event_sources = excluded.event_sources,
			event_categories = excluded.event_categories,
			target = excluded.target,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at`),
		sub.ID, sub.Name, string(types), string(sourcesJSON), string(categoriesJSON), sub.Target,
		sub.Enabled, toMicros(sub.CreatedAt), toMicros(sub.UpdatedAt))
	if err != nil {
		return apperrors.Infrastructure("failed to save subscription", err)
	}
	return nil
}

// GetSubscription returns one subscription
func (s *Store) GetSubscription(ctx context.Context, id string) (*domain.Subscription, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`), id)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("subscription %s not found", id)
	}
	if err != nil {
		return nil, apperrors.Infrastructure("failed to read subscription", err)
	}
	return sub, nil
}

// ListSubscriptions returns all subscriptions ordered by creation time
func (s *Store) ListSubscriptions(ctx context.Context) ([]*domain.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions ORDER BY created_at, id`)
	if err != nil {
		return nil, apperrors.Infrastructure("failed to list subscriptions", err)
	}
	defer rows.Close()

	subs := make([]*domain.Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, apperrors.Infrastructure("failed to scan subscription", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Infrastructure("failed to list subscriptions", err)
	}
	return subs, nil
}

// SetSubscriptionEnabled toggles the enabled flag and returns the updated row
func (s *Store) SetSubscriptionEnabled(ctx context.Context, id string, enabled bool, updatedAt time.Time) (*domain.Subscription, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE subscriptions SET enabled = ?, updated_at = ? WHERE id = ?`),
		enabled, toMicros(updatedAt), id)
	if err != nil {
		return nil, apperrors.Infrastructure("failed to update subscription", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, apperrors.Infrastructure("failed to update subscription", err)
	}
	if n == 0 {
		return nil, apperrors.NotFound("subscription %s not found", id)
	}
	return s.GetSubscription(ctx, id)
}

func scanSubscription(row rowScanner) (*domain.Subscription, error) {
	var (
		sub                        domain.Subscription
		types, sources, categories string
		createdAt, updatedAt       int64
	)
	if err := row.Scan(&sub.ID, &sub.Name, &types, &sources, &categories, &sub.Target,
		&sub.Enabled, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(types), &sub.EventTypes); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(sources), &sub.EventSources); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(categories), &sub.EventCategories); err != nil {
		return nil, err
	}
	sub.CreatedAt = fromMicros(createdAt)
	sub.UpdatedAt = fromMicros(updatedAt)
	return &sub, nil
}
