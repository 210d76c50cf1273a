package subscription

import (
	"slices"

	"github.com/BarkinBalci/event-sourcing-service/internal/domain"
)

// Matches reports whether an enabled subscription selects the event.
// Empty source or category lists accept any value.
func Matches(sub *domain.Subscription, event *domain.Event) bool {
	if sub == nil || event == nil || !sub.Enabled {
		return false
	}
	if !slices.Contains(sub.EventTypes, event.EventType) {
		return false
	}
	if len(sub.EventSources) > 0 && !slices.Contains(sub.EventSources, event.Source) {
		return false
	}
	if len(sub.EventCategories) > 0 && !slices.Contains(sub.EventCategories, event.Category) {
		return false
	}
	return true
}
