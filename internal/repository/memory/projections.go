package memory

import (
	"context"

	"github.com/BarkinBalci/event-sourcing-service/internal/apperrors"
	"github.com/BarkinBalci/event-sourcing-service/internal/domain"
)

// SaveProjection inserts or replaces a projection
func (s *Store) SaveProjection(ctx context.Context, projection *domain.Projection) error {
	if projection == nil || projection.ID == "" {
		return apperrors.Validation("projection id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.projections[projection.ID] = projection.Clone()
	return nil
}

// GetProjection returns a copy of one projection
func (s *Store) GetProjection(ctx context.Context, id string) (*domain.Projection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	projection, ok := s.projections[id]
	if !ok {
		return nil, apperrors.NotFound("projection %s not found", id)
	}
	return projection.Clone(), nil
}
