package repository

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BarkinBalci/event-sourcing-service/internal/apperrors"
)

func TestPage_Validate(t *testing.T) {
	tests := []struct {
		name    string
		page    Page
		wantErr bool
	}{
		{name: "minimum", page: Page{Limit: 1}},
		{name: "maximum", page: Page{Limit: 1000, Offset: 5}},
		{name: "zero limit", page: Page{Limit: 0}, wantErr: true},
		{name: "limit too large", page: Page{Limit: 1001}, wantErr: true},
		{name: "negative offset", page: Page{Limit: 10, Offset: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.page.Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, apperrors.ErrValidation))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestPage_HasMore(t *testing.T) {
	assert.True(t, Page{Limit: 10, Offset: 0}.HasMore(11))
	assert.False(t, Page{Limit: 10, Offset: 0}.HasMore(10))
	assert.False(t, Page{Limit: 10, Offset: 5}.HasMore(15))
	assert.True(t, Page{Limit: 10, Offset: 5}.HasMore(16))
}
