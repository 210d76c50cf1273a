package service

import (
	"strings"

	"github.com/BarkinBalci/event-sourcing-service/internal/domain"
)

// CategoryRule maps event types accepted by Match to Category
type CategoryRule struct {
	Match    func(eventType string) bool
	Category domain.Category
}

// CategoryRuleSet is evaluated top to bottom; the first match wins, else Default
type CategoryRuleSet struct {
	Rules   []CategoryRule
	Default domain.Category
}

// CategoryRules holds one rule set per source
type CategoryRules map[domain.Source]CategoryRuleSet

// DefaultCategoryRules returns the built-in derivation table
func DefaultCategoryRules() CategoryRules {
	return CategoryRules{
		domain.SourceFrontend: {
			Rules: []CategoryRule{
				{Match: HasPrefix("page"), Category: domain.CategoryPageView},
				{Match: Contains("form"), Category: domain.CategoryFormSubmit},
				{Match: Contains("click"), Category: domain.CategoryClick},
			},
			Default: domain.CategoryUserAction,
		},
		domain.SourceBackend: {
			Rules: []CategoryRule{
				{Match: Contains("user"), Category: domain.CategoryUserLifecycle},
				{Match: Contains("payment"), Category: domain.CategoryPayment},
				{Match: Contains("order"), Category: domain.CategoryOrder},
				{Match: Contains("task"), Category: domain.CategoryTask},
				{Match: Contains("device"), Category: domain.CategoryDeviceStatus},
			},
			Default: domain.CategorySystem,
		},
		domain.SourceIoTDevice:   {Default: domain.CategoryDeviceStatus},
		domain.SourceScheduled:   {Default: domain.CategoryTask},
		domain.SourceSystem:      {Default: domain.CategorySystem},
		domain.SourceExternalAPI: {Default: domain.CategorySystem},
	}
}

// Derive picks the category for an event type from the given source
func (r CategoryRules) Derive(source domain.Source, eventType string) domain.Category {
	set, ok := r[source]
	if !ok {
		return domain.CategorySystem
	}

	normalized := strings.ToLower(strings.TrimSpace(eventType))
	for _, rule := range set.Rules {
		if rule.Match(normalized) {
			return rule.Category
		}
	}
	return set.Default
}

// HasPrefix matches event types starting with prefix
func HasPrefix(prefix string) func(string) bool {
	return func(eventType string) bool {
		return strings.HasPrefix(eventType, prefix)
	}
}

// Contains matches event types containing substr
func Contains(substr string) func(string) bool {
	return func(eventType string) bool {
		return strings.Contains(eventType, substr)
	}
}
