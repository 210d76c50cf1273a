package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/BarkinBalci/event-sourcing-service/internal/apperrors"
	"github.com/BarkinBalci/event-sourcing-service/internal/domain"
)

// SaveProjection inserts or replaces a projection
func (s *Store) SaveProjection(ctx context.Context, projection *domain.Projection) error {
	if projection == nil || projection.ID == "" {
		return apperrors.Validation("projection id is required")
	}

	state := projection.State
	if state == nil {
		state = map[string]map[string]any{}
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return apperrors.Validation("projection state is not serializable: %v", err)
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`INSERT INTO projections
		(id, entity_type, entity_id, state, version, last_applied_event_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			state = excluded.state,
			version = excluded.version,
			last_applied_event_id = excluded.last_applied_event_id,
			updated_at = excluded.updated_at`),
		projection.ID, projection.EntityType, projection.EntityID, string(raw), projection.Version,
		projection.LastAppliedEventID, toMicros(projection.CreatedAt), toMicros(projection.UpdatedAt))
	if err != nil {
		return apperrors.Infrastructure("failed to save projection", err)
	}
	return nil
}

// GetProjection returns one projection
func (s *Store) GetProjection(ctx context.Context, id string) (*domain.Projection, error) {
	var (
		p                    domain.Projection
		state                string
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT id, entity_type, entity_id, state, version,
		last_applied_event_id, created_at, updated_at FROM projections WHERE id = ?`), id).
		Scan(&p.ID, &p.EntityType, &p.EntityID, &state, &p.Version, &p.LastAppliedEventID, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("projection %s not found", id)
	}
	if err != nil {
		return nil, apperrors.Infrastructure("failed to read projection", err)
	}

	if err := json.Unmarshal([]byte(state), &p.State); err != nil {
		return nil, apperrors.Infrastructure("failed to decode projection state", err)
	}
	p.CreatedAt = fromMicros(createdAt)
	p.UpdatedAt = fromMicros(updatedAt)
	return &p, nil
}
