package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BarkinBalci/event-sourcing-service/internal/domain"
)

func TestCategoryRules_Derive(t *testing.T) {
	rules := DefaultCategoryRules()

	tests := []struct {
		source    domain.Source
		eventType string
		want      domain.Category
	}{
		{domain.SourceFrontend, "page", domain.CategoryPageView},
		{domain.SourceFrontend, "page_view", domain.CategoryPageView},
		{domain.SourceFrontend, "signup_form_submitted", domain.CategoryFormSubmit},
		{domain.SourceFrontend, "Button.Click", domain.CategoryClick},
		{domain.SourceFrontend, "scroll", domain.CategoryUserAction},
		{domain.SourceBackend, "user.created", domain.CategoryUserLifecycle},
		{domain.SourceBackend, "payment.captured", domain.CategoryPayment},
		{domain.SourceBackend, "order.created", domain.CategoryOrder},
		{domain.SourceBackend, "task.finished", domain.CategoryTask},
		{domain.SourceBackend, "device.offline", domain.CategoryDeviceStatus},
		{domain.SourceBackend, "cache.flushed", domain.CategorySystem},
		// first match wins
		{domain.SourceBackend, "user.order.created", domain.CategoryUserLifecycle},
		{domain.SourceIoTDevice, "temperature", domain.CategoryDeviceStatus},
		{domain.SourceScheduled, "nightly", domain.CategoryTask},
		{domain.SourceSystem, "boot", domain.CategorySystem},
		{domain.SourceExternalAPI, "stripe.webhook", domain.CategorySystem},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, rules.Derive(tt.source, tt.eventType), "%s/%s", tt.source, tt.eventType)
	}
}

func TestCategoryRules_Custom(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	svc.WithCategoryRules(CategoryRules{
		domain.SourceBackend: {
			Rules:   []CategoryRule{{Match: Contains("invoice"), Category: domain.CategoryPayment}},
			Default: domain.CategoryOrder,
		},
	})

	assert.Equal(t, domain.CategoryPayment, svc.rules.Derive(domain.SourceBackend, "invoice.sent"))
	assert.Equal(t, domain.CategoryOrder, svc.rules.Derive(domain.SourceBackend, "anything"))
	assert.Equal(t, domain.CategorySystem, svc.rules.Derive(domain.SourceFrontend, "page"))
}
