package repository

import "github.com/BarkinBalci/event-sourcing-service/internal/apperrors"

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Page bounds a query result.
type Page struct {
	Limit  int
	Offset int
}

// Validate rejects limits outside [1, MaxLimit] and negative offsets.
func (p Page) Validate() error {
	if p.Limit < 1 || p.Limit > MaxLimit {
		return apperrors.Validation("limit must be between 1 and %d, got %d", MaxLimit, p.Limit)
	}
	if p.Offset < 0 {
		return apperrors.Validation("offset must be non-negative, got %d", p.Offset)
	}
	return nil
}

// HasMore reports whether rows exist past this page.
func (p Page) HasMore(total int) bool {
	return p.Offset+p.Limit < total
}
